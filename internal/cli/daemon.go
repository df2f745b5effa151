package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cruciblehq/lambdad/internal/protocol"
)

// Represents the 'lambdad import' command.
type ImportCmd struct {
	Archive string `arg:"" help:"OCI image archive." type:"existingfile"`
	Ref     string `arg:"" help:"Reference to tag the image with, e.g. lambci/lambda:build-python3.7."`
}

// Executes the import command.
//
// The archive path is sent to the daemon, which reads it from the same host.
func (c *ImportCmd) Run(ctx context.Context) error {
	archive, err := filepath.Abs(c.Archive)
	if err != nil {
		return err
	}

	cl, err := dial()
	if err != nil {
		return err
	}

	if err := cl.Import(ctx, &protocol.ImportRequest{Path: archive, Ref: c.Ref}); err != nil {
		return err
	}

	slog.Info("image imported", "ref", c.Ref)
	return nil
}

// Represents the 'lambdad status' command.
type StatusCmd struct{}

// Executes the status command.
func (c *StatusCmd) Run(ctx context.Context) error {
	cl, err := dial()
	if err != nil {
		return err
	}

	status, err := cl.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("version:   %s\n", status.Version)
	fmt.Printf("pid:       %d\n", status.Pid)
	fmt.Printf("uptime:    %s\n", status.Uptime)
	fmt.Printf("builds:    %d\n", status.Builds)
	fmt.Printf("sandboxes: %d\n", status.Sandboxes)
	return nil
}

// Represents the 'lambdad stop' command.
type StopCmd struct{}

// Executes the stop command.
func (c *StopCmd) Run(ctx context.Context) error {
	cl, err := dial()
	if err != nil {
		return err
	}
	return cl.Shutdown(ctx)
}
