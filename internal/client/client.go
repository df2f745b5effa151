package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/cruciblehq/lambdad/internal/protocol"
)

// Daemon client bound to a socket path.
type Client struct {
	socket string
}

// Creates a client for the daemon listening on socket.
func New(socket string) *Client {
	return &Client{socket: socket}
}

// Builds the functions named by req.
func (c *Client) Build(ctx context.Context, req *protocol.BuildRequest) (*protocol.BuildResult, error) {
	var result protocol.BuildResult
	if err := c.Call(ctx, protocol.CmdBuild, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Imports a build image from an OCI archive on the daemon's host.
func (c *Client) Import(ctx context.Context, req *protocol.ImportRequest) error {
	return c.Call(ctx, protocol.CmdImport, req, nil)
}

// Returns the daemon status.
func (c *Client) Status(ctx context.Context) (*protocol.StatusResult, error) {
	var result protocol.StatusResult
	if err := c.Call(ctx, protocol.CmdStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Asks the daemon to stop.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.Call(ctx, protocol.CmdShutdown, nil, nil)
}

// Sends one command and decodes the reply into result, which may be nil.
//
// A [protocol.CmdError] reply is returned as a *[protocol.ErrorResult].
func (c *Client) Call(ctx context.Context, cmd protocol.Command, payload, result any) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socket)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return c.connError(ctx, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return c.connError(ctx, err)
	}

	env, reply, err := protocol.Decode(line)
	if err != nil {
		return err
	}

	switch env.Command {
	case protocol.CmdOK:
		if result == nil || len(reply) == 0 {
			return nil
		}
		if err := json.Unmarshal(reply, result); err != nil {
			return fmt.Errorf("%w: %w", protocol.ErrDecode, err)
		}
		return nil
	case protocol.CmdError:
		failure, err := protocol.DecodePayload[protocol.ErrorResult](reply)
		if err != nil {
			return err
		}
		return failure
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedReply, env.Command)
	}
}

// Prefers the context's error when a connection failed because the call
// was cancelled.
func (c *Client) connError(ctx context.Context, err error) error {
	if ctxErr := context.Cause(ctx); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
