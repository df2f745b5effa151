package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/cruciblehq/lambdad/internal"
	"github.com/cruciblehq/lambdad/internal/build"
	"github.com/cruciblehq/lambdad/internal/image"
	"github.com/cruciblehq/lambdad/internal/pathmap"
	"github.com/cruciblehq/lambdad/internal/protocol"
	"github.com/cruciblehq/lambdad/internal/rpc"
	"github.com/cruciblehq/lambdad/internal/runtime"
	"github.com/cruciblehq/lambdad/internal/workflow"
)

// Handles a build command.
//
// Builds the selected functions of the inventory, one sandbox at a time.
func (s *Server) handleBuild(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.BuildRequest](payload)
	if err != nil {
		s.fail(conn, err)
		return
	}

	if req.Inventory == nil {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{
			Kind:    protocol.KindInvalidRequest,
			Message: "build request has no inventory",
		})
		return
	}

	if err := req.Inventory.Validate(); err != nil {
		s.fail(conn, err)
		return
	}

	functions, err := req.Inventory.Select(req.Target)
	if err != nil {
		s.fail(conn, err)
		return
	}

	result, err := build.Run(ctx, s.engine, s.buildOptions(req, functions))
	if err != nil {
		s.fail(conn, err)
		return
	}

	s.mu.Lock()
	s.builds++
	s.mu.Unlock()

	s.respond(conn, protocol.CmdOK, &protocol.BuildResult{Artifacts: result.Artifacts})
}

// Combines a build request with the daemon settings.
func (s *Server) buildOptions(req *protocol.BuildRequest, functions []build.Function) build.Options {
	cfg := s.settings
	return build.Options{
		Functions:       functions,
		ProjectDir:      req.Inventory.Dir,
		BuildDir:        req.BuildDir,
		ManifestPath:    req.ManifestPath,
		Mode:            req.Mode,
		ProtocolVersion: cfg.Builder.ProtocolVersion,
		Executable:      cfg.Builder.Executable,
		LogLevel:        cfg.Builder.LogLevel,
		Images:          cfg.Images(),
		ScratchRoot:     s.scratch,
		Sandbox: build.Sandbox{
			MemoryLimitMB: cfg.Sandbox.MemoryLimitMB,
			Network:       cfg.Sandbox.Network,
			ExposedPorts:  cfg.Sandbox.ExposedPorts,
			EngineOptions: cfg.Sandbox.EngineOptions,
			SkipPull:      cfg.Builder.SkipPull,
		},
	}
}

// Handles an import command.
func (s *Server) handleImport(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.ImportRequest](payload)
	if err != nil {
		s.fail(conn, err)
		return
	}

	if req.Path == "" || req.Ref == "" {
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{
			Kind:    protocol.KindInvalidRequest,
			Message: "import request needs a path and a ref",
		})
		return
	}

	if err := s.engine.ImportImage(ctx, req.Path, req.Ref); err != nil {
		s.fail(conn, err)
		return
	}

	s.respond(conn, protocol.CmdOK, nil)
}

// Handles a status command.
func (s *Server) handleStatus(ctx context.Context, conn net.Conn) {
	s.mu.Lock()
	builds := s.builds
	s.mu.Unlock()

	sandboxes, err := s.engine.Sandboxes(ctx)
	if err != nil {
		slog.Warn("failed to list sandboxes", "error", err)
	}

	uptime := time.Since(s.startedAt).Truncate(time.Second)

	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running:   true,
		Version:   internal.VersionString(),
		Pid:       os.Getpid(),
		Uptime:    uptime.String(),
		Builds:    builds,
		Sandboxes: len(sandboxes),
	})
}

// Handles a shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)
	slog.Info("shutdown requested")

	go func() {
		s.Stop()
	}()
}

// Classifies err for the client.
func errorResult(err error) *protocol.ErrorResult {
	result := &protocol.ErrorResult{Kind: errorKind(err), Message: err.Error()}

	var fnErr *build.FunctionError
	if errors.As(err, &fnErr) {
		result.Function = fnErr.Function
		result.Output = fnErr.Output
	}

	return result
}

func errorKind(err error) protocol.ErrorKind {
	switch {
	case errors.Is(err, runtime.ErrCancelled), errors.Is(err, context.Canceled):
		return protocol.KindCancelled
	case errors.Is(err, build.ErrTargetNotFound):
		return protocol.KindTargetNotFound
	case errors.Is(err, image.ErrUnsupportedRuntime), errors.Is(err, workflow.ErrUnsupportedRuntime):
		return protocol.KindUnsupportedRuntime
	case errors.Is(err, rpc.ErrIncompatibleBuilder):
		return protocol.KindIncompatibleBuilder
	case errors.Is(err, rpc.ErrBuildFailed):
		return protocol.KindBuildFailure
	case errors.Is(err, rpc.ErrBuilderCrashed):
		return protocol.KindBuilderCrashed
	case errors.Is(err, protocol.ErrDecode),
		errors.Is(err, protocol.ErrUnsupportedVersion),
		errors.Is(err, build.ErrInvalidInventory),
		errors.Is(err, build.ErrInvalidMode),
		errors.Is(err, pathmap.ErrCanonicalize),
		errors.Is(err, image.ErrInvalidReference),
		errors.Is(err, runtime.ErrInvalidSpec):
		return protocol.KindInvalidRequest
	default:
		return protocol.KindInternal
	}
}
