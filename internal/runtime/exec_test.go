package runtime

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/errdefs"
)

type fakeProcess struct {
	statusC chan containerd.ExitStatus
	signals []syscall.Signal
	killErr error
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{statusC: make(chan containerd.ExitStatus, 1)}
}

func (p *fakeProcess) Kill(_ context.Context, sig syscall.Signal, _ ...containerd.KillOpts) error {
	p.signals = append(p.signals, sig)
	if p.killErr != nil && !errdefs.IsNotFound(p.killErr) {
		return p.killErr
	}
	p.statusC <- *containerd.NewExitStatus(137, time.Now(), nil)
	return p.killErr
}

func TestAwaitExitCode(t *testing.T) {
	tests := []struct {
		name string
		code uint32
	}{
		{"success", 0},
		{"failure", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProcess()
			p.statusC <- *containerd.NewExitStatus(tt.code, time.Now(), nil)

			code, err := awaitExit(context.Background(), p, p.statusC)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if code != tt.code {
				t.Errorf("code = %d, want %d", code, tt.code)
			}
			if len(p.signals) != 0 {
				t.Errorf("signals = %v, want none", p.signals)
			}
		})
	}
}

func TestAwaitExitStatusError(t *testing.T) {
	p := newFakeProcess()
	p.statusC <- *containerd.NewExitStatus(containerd.UnknownExitStatus, time.Now(), errors.New("shim died"))

	if _, err := awaitExit(context.Background(), p, p.statusC); !errors.Is(err, ErrRuntime) {
		t.Errorf("error = %v, want %v", err, ErrRuntime)
	}
}

func TestAwaitExitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newFakeProcess()
	_, err := awaitExit(ctx, p, p.statusC)

	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error = %v, want %v", err, ErrCancelled)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want it to carry %v", err, context.Canceled)
	}
	if len(p.signals) != 1 || p.signals[0] != syscall.SIGKILL {
		t.Errorf("signals = %v, want [SIGKILL]", p.signals)
	}
	if len(p.statusC) != 0 {
		t.Error("exit status not consumed after kill")
	}
}

func TestAwaitExitCancelledProcessGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newFakeProcess()
	p.killErr = errdefs.ErrNotFound

	if _, err := awaitExit(ctx, p, p.statusC); !errors.Is(err, ErrCancelled) {
		t.Errorf("error = %v, want %v", err, ErrCancelled)
	}
}

func TestAwaitExitKillFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newFakeProcess()
	p.killErr = errors.New("permission denied")

	if _, err := awaitExit(ctx, p, p.statusC); !errors.Is(err, ErrCancelled) {
		t.Errorf("error = %v, want %v", err, ErrCancelled)
	}
}
