package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cruciblehq/lambdad/internal/build"
	"github.com/cruciblehq/lambdad/internal/client"
	"github.com/cruciblehq/lambdad/internal/image"
	"github.com/cruciblehq/lambdad/internal/protocol"
	"github.com/cruciblehq/lambdad/internal/rpc"
	"github.com/cruciblehq/lambdad/internal/runtime"
	"github.com/cruciblehq/lambdad/internal/settings"
	"github.com/cruciblehq/lambdad/internal/workflow"
)

const okResponse = `{"jsonrpc":"2.0","id":1,"result":{"artifacts_dir":"/tmp/samcli/artifacts"}}`

type fakeEngine struct {
	mu       sync.Mutex
	specs    []runtime.ExecutionSpec
	imports  []string
	result   *runtime.Result
	block    bool
	pruned   bool
	closed   bool
	returned bool // A blocked Run has returned.
	drained  bool // Close found every blocked Run returned.
	started  chan struct{}
	runErr   error
	importFn func(path, ref string) error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		result:  &runtime.Result{Stdout: okResponse},
		started: make(chan struct{}, 1),
	}
}

func (e *fakeEngine) Run(ctx context.Context, spec runtime.ExecutionSpec) (*runtime.Result, error) {
	e.mu.Lock()
	e.specs = append(e.specs, spec)
	e.mu.Unlock()

	if e.block {
		e.started <- struct{}{}
		<-ctx.Done()
		e.mu.Lock()
		e.returned = true
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", runtime.ErrCancelled, context.Cause(ctx))
	}
	if e.runErr != nil {
		return nil, e.runErr
	}
	return e.result, nil
}

// Returns the specs run so far.
func (e *fakeEngine) runs() []runtime.ExecutionSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]runtime.ExecutionSpec(nil), e.specs...)
}

func (e *fakeEngine) ImportImage(_ context.Context, path, ref string) error {
	e.mu.Lock()
	e.imports = append(e.imports, path+"="+ref)
	e.mu.Unlock()
	if e.importFn != nil {
		return e.importFn(path, ref)
	}
	return nil
}

func (e *fakeEngine) Sandboxes(context.Context) ([]string, error) {
	return []string{"lambdad-a", "lambdad-b"}, nil
}

func (e *fakeEngine) Prune(context.Context) (int, error) {
	e.mu.Lock()
	e.pruned = true
	e.mu.Unlock()
	return 0, nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.drained = e.returned
	e.mu.Unlock()
	return nil
}

// Starts a server on a temporary socket and returns a client for it.
func startServer(t *testing.T, eng *fakeEngine) (*Server, *client.Client) {
	t.Helper()

	dir := t.TempDir()
	cfg := settings.Defaults()
	cfg.Socket = filepath.Join(dir, "d.sock")

	srv := newServer(cfg, eng)
	srv.pidFile = filepath.Join(dir, "d.pid")
	srv.scratch = filepath.Join(dir, "scratch")

	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Stop() })

	return srv, client.New(cfg.Socket)
}

func newInventory(t *testing.T) *build.Inventory {
	t.Helper()
	dir := t.TempDir()
	code := filepath.Join(dir, "hello")
	if err := os.MkdirAll(code, 0o755); err != nil {
		t.Fatal(err)
	}
	return &build.Inventory{
		Dir: dir,
		Functions: []build.Function{
			{Name: "Hello", Runtime: "python3.7", CodeURI: "hello", Handler: "app.handler"},
			{Name: "World", Runtime: "nodejs10.x", CodeURI: "hello", Handler: "index.handler"},
		},
	}
}

func TestStartPrunesAndWritesPID(t *testing.T) {
	eng := newFakeEngine()
	srv, _ := startServer(t, eng)

	if !eng.pruned {
		t.Error("stale sandboxes were not pruned")
	}
	data, err := os.ReadFile(srv.pidFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != fmt.Sprint(os.Getpid()) {
		t.Errorf("pid file = %q", data)
	}
}

func TestBuild(t *testing.T) {
	eng := newFakeEngine()
	srv, c := startServer(t, eng)
	inv := newInventory(t)

	result, err := c.Build(context.Background(), &protocol.BuildRequest{Inventory: inv, Target: "Hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := filepath.Join(inv.Dir, build.DefaultBuildDir, "Hello")
	if result.Artifacts["Hello"] != want {
		t.Errorf("artifacts = %v, want Hello at %q", result.Artifacts, want)
	}
	specs := eng.runs()
	if len(specs) != 1 {
		t.Fatalf("sandboxes run = %d, want 1", len(specs))
	}
	if specs[0].Image != image.Convention("python3.7") {
		t.Errorf("image = %q", specs[0].Image)
	}

	srv.mu.Lock()
	builds := srv.builds
	srv.mu.Unlock()
	if builds != 1 {
		t.Errorf("builds = %d, want 1", builds)
	}
}

func TestBuildAllFunctions(t *testing.T) {
	eng := newFakeEngine()
	_, c := startServer(t, eng)

	result, err := c.Build(context.Background(), &protocol.BuildRequest{Inventory: newInventory(t)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Artifacts) != 2 || len(eng.runs()) != 2 {
		t.Errorf("artifacts = %v, sandboxes = %d", result.Artifacts, len(eng.runs()))
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *protocol.BuildRequest
		runErr   error
		result   *runtime.Result
		kind     protocol.ErrorKind
		function string
	}{
		{
			name: "no inventory",
			req:  func(t *testing.T) *protocol.BuildRequest { return &protocol.BuildRequest{} },
			kind: protocol.KindInvalidRequest,
		},
		{
			name: "unknown target",
			req: func(t *testing.T) *protocol.BuildRequest {
				return &protocol.BuildRequest{Inventory: newInventory(t), Target: "Missing"}
			},
			kind: protocol.KindTargetNotFound,
		},
		{
			name: "bad mode",
			req: func(t *testing.T) *protocol.BuildRequest {
				return &protocol.BuildRequest{Inventory: newInventory(t), Mode: "fast"}
			},
			kind: protocol.KindInvalidRequest,
		},
		{
			name: "builder reports failure",
			req: func(t *testing.T) *protocol.BuildRequest {
				return &protocol.BuildRequest{Inventory: newInventory(t), Target: "Hello"}
			},
			result: &runtime.Result{
				ExitCode: 1,
				Stdout:   `{"jsonrpc":"2.0","id":1,"error":{"code":400,"message":"pip failed"}}`,
			},
			kind:     protocol.KindBuildFailure,
			function: "Hello",
		},
		{
			name: "incompatible builder",
			req: func(t *testing.T) *protocol.BuildRequest {
				return &protocol.BuildRequest{Inventory: newInventory(t), Target: "Hello"}
			},
			result: &runtime.Result{
				Stdout: `{"jsonrpc":"2.0","id":1,"error":{"code":505,"message":"unsupported protocol"}}`,
			},
			kind:     protocol.KindIncompatibleBuilder,
			function: "Hello",
		},
		{
			name: "sandbox failure",
			req: func(t *testing.T) *protocol.BuildRequest {
				return &protocol.BuildRequest{Inventory: newInventory(t), Target: "Hello"}
			},
			runErr:   fmt.Errorf("%w: %w", runtime.ErrImagePull, errors.New("not found")),
			kind:     protocol.KindInternal,
			function: "Hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newFakeEngine()
			eng.runErr = tt.runErr
			if tt.result != nil {
				eng.result = tt.result
			}
			_, c := startServer(t, eng)

			_, err := c.Build(context.Background(), tt.req(t))

			var failure *protocol.ErrorResult
			if !errors.As(err, &failure) {
				t.Fatalf("error = %v, want *protocol.ErrorResult", err)
			}
			if failure.Kind != tt.kind {
				t.Errorf("kind = %q, want %q (%s)", failure.Kind, tt.kind, failure.Message)
			}
			if failure.Function != tt.function {
				t.Errorf("function = %q, want %q", failure.Function, tt.function)
			}
		})
	}
}

func TestBuildCancelledOnDisconnect(t *testing.T) {
	eng := newFakeEngine()
	eng.block = true
	_, c := startServer(t, eng)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Build(ctx, &protocol.BuildRequest{Inventory: newInventory(t), Target: "Hello"})
		done <- err
	}()

	select {
	case <-eng.started:
	case <-time.After(5 * time.Second):
		t.Fatal("sandbox never started")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want %v", err, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("build did not return after disconnect")
	}
}

func TestImport(t *testing.T) {
	eng := newFakeEngine()
	_, c := startServer(t, eng)

	err := c.Import(context.Background(), &protocol.ImportRequest{Path: "/tmp/py.tar", Ref: "local/build-python3.7:dev"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eng.mu.Lock()
	imports := eng.imports
	eng.mu.Unlock()
	if len(imports) != 1 || imports[0] != "/tmp/py.tar=local/build-python3.7:dev" {
		t.Errorf("imports = %v", imports)
	}
}

func TestImportErrors(t *testing.T) {
	tests := []struct {
		name string
		req  *protocol.ImportRequest
		err  error
		want protocol.ErrorKind
	}{
		{"missing ref", &protocol.ImportRequest{Path: "/tmp/a.tar"}, nil, protocol.KindInvalidRequest},
		{"bad reference", &protocol.ImportRequest{Path: "/tmp/a.tar", Ref: "x"}, fmt.Errorf("%w: %w", runtime.ErrInvalidSpec, image.ErrInvalidReference), protocol.KindInvalidRequest},
		{"runtime failure", &protocol.ImportRequest{Path: "/tmp/a.tar", Ref: "x"}, runtime.ErrMultipleImages, protocol.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newFakeEngine()
			eng.importFn = func(string, string) error { return tt.err }
			_, c := startServer(t, eng)

			err := c.Import(context.Background(), tt.req)

			var failure *protocol.ErrorResult
			if !errors.As(err, &failure) {
				t.Fatalf("error = %v, want *protocol.ErrorResult", err)
			}
			if failure.Kind != tt.want {
				t.Errorf("kind = %q, want %q", failure.Kind, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	_, c := startServer(t, newFakeEngine())

	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Running || status.Pid != os.Getpid() || status.Sandboxes != 2 {
		t.Errorf("status = %+v", status)
	}
}

func TestShutdown(t *testing.T) {
	eng := newFakeEngine()
	srv, c := startServer(t, eng)

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-srv.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	eng.mu.Lock()
	closed := eng.closed
	eng.mu.Unlock()
	if !closed {
		t.Error("engine not closed")
	}
	if _, err := os.Stat(srv.socketPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket still present: %v", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	_, c := startServer(t, newFakeEngine())

	err := c.Call(context.Background(), protocol.Command("explode"), nil, nil)

	var failure *protocol.ErrorResult
	if !errors.As(err, &failure) || failure.Kind != protocol.KindInvalidRequest {
		t.Errorf("error = %v, want invalid request", err)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want protocol.ErrorKind
	}{
		{&build.FunctionError{Function: "f", Err: &rpc.BuildError{Message: "x"}}, protocol.KindBuildFailure},
		{&build.FunctionError{Function: "f", Err: fmt.Errorf("%w: x", rpc.ErrBuilderCrashed)}, protocol.KindBuilderCrashed},
		{&build.FunctionError{Function: "f", Err: fmt.Errorf("%w: x", workflow.ErrUnsupportedRuntime)}, protocol.KindUnsupportedRuntime},
		{&build.FunctionError{Function: "f", Err: fmt.Errorf("%w: x", image.ErrUnsupportedRuntime)}, protocol.KindUnsupportedRuntime},
		{&build.FunctionError{Function: "f", Err: fmt.Errorf("%w: %w", runtime.ErrCancelled, context.Canceled)}, protocol.KindCancelled},
		{fmt.Errorf("%w: x", build.ErrTargetNotFound), protocol.KindTargetNotFound},
		{fmt.Errorf("%w: x", protocol.ErrUnsupportedVersion), protocol.KindInvalidRequest},
		{errors.New("boom"), protocol.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := errorKind(tt.err); got != tt.want {
				t.Errorf("errorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorResultCarriesOutput(t *testing.T) {
	err := &build.FunctionError{Function: "Hello", Output: "Traceback", Err: rpc.ErrBuilderCrashed}

	result := errorResult(err)
	if result.Function != "Hello" || result.Output != "Traceback" {
		t.Errorf("result = %+v", result)
	}
}

func TestStopCancelsRunningBuilds(t *testing.T) {
	eng := newFakeEngine()
	eng.block = true
	srv, c := startServer(t, eng)

	done := make(chan error, 1)
	go func() {
		_, err := c.Build(context.Background(), &protocol.BuildRequest{Inventory: newInventory(t), Target: "Hello"})
		done <- err
	}()

	select {
	case <-eng.started:
	case <-time.After(5 * time.Second):
		t.Fatal("sandbox never started")
	}

	srv.Stop()

	eng.mu.Lock()
	closed, drained := eng.closed, eng.drained
	eng.mu.Unlock()
	if !closed {
		t.Error("engine not closed")
	}
	if !drained {
		t.Error("engine closed while a sandbox was still running")
	}

	select {
	case err := <-done:
		var failure *protocol.ErrorResult
		if !errors.As(err, &failure) || failure.Kind != protocol.KindCancelled {
			t.Errorf("error = %v, want a cancelled failure", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("build did not return after stop")
	}
}
