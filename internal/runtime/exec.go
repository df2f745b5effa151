package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/errdefs"
)

// Sends signals to a running process.
type killer interface {
	Kill(ctx context.Context, sig syscall.Signal, opts ...containerd.KillOpts) error
}

// Waits for a started process to exit and returns its exit code.
//
// When ctx is cancelled first the process is killed with SIGKILL and the
// function waits for the exit to be reported before returning
// [ErrCancelled], so that teardown never races a live process.
func awaitExit(ctx context.Context, process killer, statusC <-chan containerd.ExitStatus) (uint32, error) {
	select {
	case status := <-statusC:
		code, _, err := status.Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
		}
		return code, nil

	case <-ctx.Done():
		if err := process.Kill(context.WithoutCancel(ctx), syscall.SIGKILL); err != nil && !errdefs.IsNotFound(err) {
			slog.Warn("failed to kill sandbox process", "error", err)
			return 0, fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
		}
		<-statusC
		return 0, fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
	}
}
