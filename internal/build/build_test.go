package build

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cruciblehq/lambdad/internal/pathmap"
	"github.com/cruciblehq/lambdad/internal/rpc"
	"github.com/cruciblehq/lambdad/internal/runtime"
	"github.com/cruciblehq/lambdad/internal/workflow"
)

const okResponse = `{"jsonrpc":"2.0","id":1,"result":{"artifacts_dir":"/tmp/samcli/artifacts"}}`

type fakeRunner struct {
	specs   []runtime.ExecutionSpec
	results []*runtime.Result
	err     error
}

func (r *fakeRunner) Run(_ context.Context, spec runtime.ExecutionSpec) (*runtime.Result, error) {
	r.specs = append(r.specs, spec)
	if scratch := hostFor(spec.Volumes, pathmap.Root+"/scratch"); scratch != "" {
		if _, err := os.Stat(scratch); err != nil {
			return nil, err
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(r.results) == 0 {
		return &runtime.Result{Stdout: okResponse}, nil
	}
	res := r.results[0]
	r.results = r.results[1:]
	return res, nil
}

// Returns the host path mounted at bind.
func hostFor(volumes runtime.Volumes, bind string) string {
	for host, v := range volumes {
		if v.Bind == bind {
			return host
		}
	}
	return ""
}

func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	code := filepath.Join(dir, "hello")
	if err := os.MkdirAll(code, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(code, "requirements.txt"), []byte("requests\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func testOptions(t *testing.T, project string, fns ...Function) Options {
	t.Helper()
	if len(fns) == 0 {
		fns = []Function{{Name: "Hello", Runtime: "python3.7", CodeURI: "hello", Handler: "app.handler"}}
	}
	return Options{
		Functions:     fns,
		ProjectDir:    project,
		Canonicalizer: pathmap.Lexical{Base: project},
		ScratchRoot:   filepath.Join(project, ".scratch"),
	}
}

func decodeRequest(t *testing.T, spec runtime.ExecutionSpec) map[string]any {
	t.Helper()
	if len(spec.Entrypoint) != 2 {
		t.Fatalf("Entrypoint = %v, want [executable, request]", spec.Entrypoint)
	}
	var req map[string]any
	if err := json.Unmarshal([]byte(spec.Entrypoint[1]), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return req
}

func TestRunBuildsFunction(t *testing.T) {
	project := newProject(t)
	runner := &fakeRunner{}
	opts := testOptions(t, project)
	opts.Mode = ModeRelease
	opts.LogLevel = "DEBUG"

	result, err := Run(context.Background(), runner, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantArtifacts := filepath.Join(project, DefaultBuildDir, "Hello")
	if result.Artifacts["Hello"] != wantArtifacts {
		t.Errorf("artifacts = %q, want %q", result.Artifacts["Hello"], wantArtifacts)
	}
	if info, err := os.Stat(wantArtifacts); err != nil || !info.IsDir() {
		t.Errorf("artifacts dir not created: %v", err)
	}

	if len(runner.specs) != 1 {
		t.Fatalf("sandboxes = %d, want 1", len(runner.specs))
	}
	spec := runner.specs[0]

	if spec.Image != "lambci/lambda:build-python3.7" {
		t.Errorf("Image = %q", spec.Image)
	}
	if spec.Entrypoint[0] != rpc.DefaultExecutable {
		t.Errorf("executable = %q, want %q", spec.Entrypoint[0], rpc.DefaultExecutable)
	}
	if spec.Env[runtime.LogLevelEnv] != "DEBUG" {
		t.Errorf("Env = %v", spec.Env)
	}

	source := filepath.Join(project, "hello")
	if v := spec.Volumes[source]; v.Bind != "/tmp/samcli/source" || v.Mode != runtime.ReadWrite {
		t.Errorf("source volume = %+v", v)
	}
	if v := spec.Volumes[wantArtifacts]; v.Bind != "/tmp/samcli/artifacts" || v.Mode != runtime.ReadWrite {
		t.Errorf("artifacts volume = %+v", v)
	}
	if len(spec.Volumes) != 3 {
		t.Errorf("Volumes = %v, want source, artifacts and scratch", spec.Volumes)
	}

	scratch := hostFor(spec.Volumes, "/tmp/samcli/scratch")
	if scratch == "" {
		t.Fatal("scratch not mounted")
	}
	if _, err := os.Stat(scratch); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("scratch dir %q not removed after build", scratch)
	}

	params := decodeRequest(t, spec)["params"].(map[string]any)
	if params["manifest_path"] != "/tmp/samcli/source/requirements.txt" {
		t.Errorf("manifest_path = %v", params["manifest_path"])
	}
	if params["mode"] != ModeRelease {
		t.Errorf("mode = %v, want %q", params["mode"], ModeRelease)
	}
	if params["__protocol_version"] != rpc.DefaultProtocolVersion {
		t.Errorf("__protocol_version = %v", params["__protocol_version"])
	}
	capability := params["capability"].(map[string]any)
	if capability["language"] != "python" || capability["dependency_manager"] != "pip" {
		t.Errorf("capability = %v", capability)
	}
}

func TestRunManifestOverride(t *testing.T) {
	project := newProject(t)
	deps := filepath.Join(project, "deps")
	runner := &fakeRunner{}
	opts := testOptions(t, project)
	opts.ManifestPath = filepath.Join(deps, "reqs.txt")

	if _, err := Run(context.Background(), runner, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spec := runner.specs[0]
	if v := spec.Volumes[deps]; v.Bind != "/tmp/samcli/manifest" || v.Mode != runtime.ReadOnly {
		t.Errorf("manifest volume = %+v", v)
	}

	params := decodeRequest(t, spec)["params"].(map[string]any)
	if params["manifest_path"] != "/tmp/samcli/manifest/reqs.txt" {
		t.Errorf("manifest_path = %v", params["manifest_path"])
	}
}

func TestRunSandboxSettings(t *testing.T) {
	project := newProject(t)
	runner := &fakeRunner{}
	opts := testOptions(t, project)
	opts.Executable = "/opt/builder"
	opts.Sandbox = Sandbox{
		MemoryLimitMB: 512,
		Network:       "none",
		ExposedPorts:  map[int]int{5858: 5858},
		EngineOptions: map[string]string{"k": "v"},
		SkipPull:      true,
	}

	if _, err := Run(context.Background(), runner, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spec := runner.specs[0]
	if spec.MemoryLimitMB != 512 || spec.Network != "none" || !spec.SkipPull {
		t.Errorf("spec = %+v", spec)
	}
	if spec.ExposedPorts[5858] != 5858 || spec.EngineOptions["k"] != "v" {
		t.Errorf("ports/options = %v/%v", spec.ExposedPorts, spec.EngineOptions)
	}
	if spec.Entrypoint[0] != "/opt/builder" {
		t.Errorf("executable = %q", spec.Entrypoint[0])
	}
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name       string
		fn         Function
		result     *runtime.Result
		runErr     error
		want       error
		wantOutput string
		noSandbox  bool
	}{
		{
			name:   "builder reports build error",
			result: &runtime.Result{ExitCode: 1, Stdout: `{"jsonrpc":"2.0","id":1,"error":{"code":400,"message":"pip failed"}}`},
			want:   rpc.ErrBuildFailed,
		},
		{
			name: "build error keeps builder log",
			result: &runtime.Result{
				ExitCode: 1,
				Stdout:   `{"jsonrpc":"2.0","id":1,"error":{"code":400,"message":"pip failed"}}`,
				Stderr:   "ERROR: Could not find a version that satisfies the requirement requests",
			},
			want:       rpc.ErrBuildFailed,
			wantOutput: "ERROR: Could not find a version",
		},
		{
			name:   "incompatible builder",
			result: &runtime.Result{ExitCode: 1, Stdout: `{"jsonrpc":"2.0","id":1,"error":{"code":505,"message":"v"}}`},
			want:   rpc.ErrIncompatibleBuilder,
		},
		{
			name:   "builder crashed",
			result: &runtime.Result{ExitCode: 1, Stdout: `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"boom"}}`},
			want:   rpc.ErrBuilderCrashed,
		},
		{
			name:       "non-zero exit without an answer",
			result:     &runtime.Result{ExitCode: 127, Stderr: "lambda-builders: not found"},
			want:       rpc.ErrBuildFailed,
			wantOutput: "lambda-builders: not found",
		},
		{
			name:       "zero exit without an answer",
			result:     &runtime.Result{Stdout: "hello"},
			want:       rpc.ErrBuilderCrashed,
			wantOutput: "hello",
		},
		{
			name:   "sandbox error",
			runErr: runtime.ErrCancelled,
			want:   runtime.ErrCancelled,
		},
		{
			name:      "unsupported runtime",
			fn:        Function{Name: "Hello", Runtime: "cobol85", CodeURI: "hello"},
			want:      workflow.ErrUnsupportedRuntime,
			noSandbox: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project := newProject(t)
			runner := &fakeRunner{err: tt.runErr}
			if tt.result != nil {
				runner.results = []*runtime.Result{tt.result}
			}

			var opts Options
			if tt.fn.Name != "" {
				opts = testOptions(t, project, tt.fn)
			} else {
				opts = testOptions(t, project)
			}

			_, err := Run(context.Background(), runner, opts)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrBuild) {
				t.Errorf("error = %v, want it to match %v", err, ErrBuild)
			}

			var fnErr *FunctionError
			if !errors.As(err, &fnErr) {
				t.Fatalf("error = %v, want *FunctionError", err)
			}
			if fnErr.Function != "Hello" {
				t.Errorf("Function = %q, want %q", fnErr.Function, "Hello")
			}
			if !strings.Contains(fnErr.Output, tt.wantOutput) {
				t.Errorf("Output = %q, want it to contain %q", fnErr.Output, tt.wantOutput)
			}
			if tt.noSandbox && len(runner.specs) != 0 {
				t.Errorf("sandboxes = %d, want 0", len(runner.specs))
			}
		})
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	project := newProject(t)
	runner := &fakeRunner{results: []*runtime.Result{
		{ExitCode: 1, Stdout: `{"jsonrpc":"2.0","id":1,"error":{"code":400,"message":"x"}}`},
	}}
	opts := testOptions(t, project,
		Function{Name: "First", Runtime: "python3.7", CodeURI: "hello"},
		Function{Name: "Second", Runtime: "python3.7", CodeURI: "hello"},
	)

	result, err := Run(context.Background(), runner, opts)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(runner.specs) != 1 {
		t.Errorf("sandboxes = %d, want 1", len(runner.specs))
	}
	if _, ok := result.Artifacts["Second"]; ok {
		t.Error("Second built after First failed")
	}
}

func TestRunRejectsInvalidMode(t *testing.T) {
	runner := &fakeRunner{}
	opts := testOptions(t, newProject(t))
	opts.Mode = "fast"

	if _, err := Run(context.Background(), runner, opts); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("error = %v, want %v", err, ErrInvalidMode)
	}
	if len(runner.specs) != 0 {
		t.Errorf("sandboxes = %d, want 0", len(runner.specs))
	}
}
