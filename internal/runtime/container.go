package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
)

// Container calls made by a sandbox once the container exists.
type sandboxContainer interface {
	NewTask(ctx context.Context, creator cio.Creator) (sandboxTask, error)
	Delete(ctx context.Context, opts ...containerd.DeleteOpts) error
}

// Task calls made by a sandbox. Satisfied by [containerd.Task].
type sandboxTask interface {
	killer
	Pid() uint32
	Wait(ctx context.Context) (<-chan containerd.ExitStatus, error)
	Start(ctx context.Context) error
	Delete(ctx context.Context, opts ...containerd.ProcessDeleteOpts) (*containerd.ExitStatus, error)
}

// Adapts [containerd.Container] to [sandboxContainer].
type containerdContainer struct {
	containerd.Container
}

func (c containerdContainer) NewTask(ctx context.Context, creator cio.Creator) (sandboxTask, error) {
	task, err := c.Container.NewTask(ctx, creator)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// A single sandbox execution backed by containerd.
type sandbox struct {
	client    *containerd.Client // Containerd client for managing the container.
	id        string             // Containerd container ID.
	lifecycle *Lifecycle         // Sandbox state.
	ctr       sandboxContainer   // Container, once created.
	task      sandboxTask        // Task, until deleted.
	stdout    bytes.Buffer       // Captured standard output.
	stderr    bytes.Buffer       // Captured standard error.
}

func newSandbox(client *containerd.Client, id string) *sandbox {
	return &sandbox{client: client, id: id, lifecycle: NewLifecycle()}
}

// Creates the containerd container for spec with a fresh snapshot.
func (s *sandbox) create(ctx context.Context, img containerd.Image, snapshotter, platform string, spec ExecutionSpec) error {
	opts := append([]oci.SpecOpts{
		oci.WithDefaultSpecForPlatform(platform),
		oci.WithImageConfig(img),
	}, sandboxOpts(spec)...)

	ctr, err := s.client.NewContainer(ctx, s.id,
		containerd.WithImage(img),
		containerd.WithSnapshotter(snapshotter),
		containerd.WithNewSnapshot(s.id, img),
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithContainerLabels(spec.labels()),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return err
	}

	s.ctr = containerdContainer{ctr}
	return nil
}

// Runs the sandbox process and removes the sandbox on every exit path.
//
// Removal uses a context that outlives cancellation of ctx.
func (s *sandbox) execute(ctx context.Context) (*Result, error) {
	defer s.destroy(context.WithoutCancel(ctx))
	return s.run(ctx)
}

// Starts the sandbox process and waits for it to exit.
//
// The exit status channel is registered before the process starts so the
// exit cannot be missed. The task is deleted before the output is read,
// which waits for the stream copies to finish.
func (s *sandbox) run(ctx context.Context) (*Result, error) {
	task, err := s.ctr.NewTask(ctx, cio.NewCreator(cio.WithStreams(nil, &s.stdout, &s.stderr)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	s.task = task
	s.transition(StateStarted)

	statusC, err := task.Wait(context.WithoutCancel(ctx))
	if err != nil {
		s.exited(Exit{Reason: err.Error()})
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := task.Start(ctx); err != nil {
		s.exited(Exit{Reason: err.Error()})
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	s.transition(StateRunning)

	slog.Debug("sandbox running", "id", s.id, "pid", task.Pid())

	code, err := awaitExit(ctx, task, statusC)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, ErrCancelled) {
			reason = ReasonCancelled
		}
		s.exited(Exit{Reason: reason})
		return nil, err
	}

	exit := Exit{Success: code == 0}
	if !exit.Success {
		exit.Reason = fmt.Sprintf("exit code %d", code)
	}
	s.exited(exit)

	s.deleteTask(context.WithoutCancel(ctx))

	slog.Debug("sandbox exited", "id", s.id, "code", code)

	return &Result{
		ExitCode: int(code),
		Stdout:   s.stdout.String(),
		Stderr:   s.stderr.String(),
	}, nil
}

// Removes the task, the container and its snapshot.
//
// Failures are logged rather than returned because destroy runs on exit
// paths that already carry a result or an error.
func (s *sandbox) destroy(ctx context.Context) {
	s.deleteTask(ctx)

	if s.ctr != nil {
		if err := s.ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
			slog.Warn("failed to delete sandbox container", "id", s.id, "error", err)
		}
	}

	s.transition(StateRemoved)
}

// Deletes the task, killing its process if it still runs.
func (s *sandbox) deleteTask(ctx context.Context) {
	if s.task == nil {
		return
	}
	if _, err := s.task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
		slog.Warn("failed to delete sandbox task", "id", s.id, "error", err)
	}
	s.task = nil
}

func (s *sandbox) transition(to State) {
	if err := s.lifecycle.Transition(to); err != nil {
		slog.Warn("sandbox state", "id", s.id, "error", err)
	}
}

func (s *sandbox) exited(exit Exit) {
	if err := s.lifecycle.Exited(exit); err != nil {
		slog.Warn("sandbox state", "id", s.id, "error", err)
	}
}
