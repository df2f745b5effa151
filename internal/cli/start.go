package cli

import (
	"context"
	"log/slog"

	"github.com/cruciblehq/lambdad/internal/server"
)

// Represents the 'lambdad start' command.
type StartCmd struct{}

// Executes the start command.
//
// Starts the server on a Unix domain socket and blocks until the context is
// cancelled (e.g. via SIGINT or SIGTERM) or a client asks it to shut down.
func (c *StartCmd) Run(ctx context.Context) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	srv, err := server.New(*cfg)
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		srv.Stop()
		return err
	}

	slog.Info("lambdad is running",
		"containerd", cfg.Containerd.Address,
		"namespace", cfg.Containerd.Namespace,
	)

	select {
	case <-ctx.Done():
	case <-srv.Done():
	}

	slog.Info("shutting down")
	return srv.Stop()
}
