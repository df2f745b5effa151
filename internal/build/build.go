package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cruciblehq/lambdad/internal/image"
	"github.com/cruciblehq/lambdad/internal/metrics"
	"github.com/cruciblehq/lambdad/internal/pathmap"
	"github.com/cruciblehq/lambdad/internal/paths"
	"github.com/cruciblehq/lambdad/internal/rpc"
	"github.com/cruciblehq/lambdad/internal/runtime"
	"github.com/cruciblehq/lambdad/internal/workflow"
)

// Default artifacts directory, relative to the project.
const DefaultBuildDir = ".aws-sam/build"

// Runs sandboxes. Satisfied by [*runtime.Runtime].
type Runner interface {
	Run(ctx context.Context, spec runtime.ExecutionSpec) (*runtime.Result, error)
}

// Sandbox settings applied to every builder sandbox.
type Sandbox struct {
	MemoryLimitMB int               // Memory limit in MB. Zero means unlimited.
	Network       string            // Network namespace selector.
	ExposedPorts  map[int]int       // Container port to host port.
	EngineOptions map[string]string // OCI runtime annotations.
	SkipPull      bool              // Reuse local images.
}

// Controls a build.
type Options struct {
	Functions       []Function            // Functions to build, in order.
	ProjectDir      string                // Project directory, for relative code URIs.
	BuildDir        string                // Artifacts root. Each function builds into BuildDir/<name>.
	ManifestPath    string                // Manifest override. Empty uses the runtime's manifest in the code dir.
	Mode            string                // Build mode. Empty leaves it to the builder.
	ProtocolVersion string                // Builder protocol version. Empty uses rpc.DefaultProtocolVersion.
	Executable      string                // Builder executable. Empty uses rpc.DefaultExecutable.
	LogLevel        string                // Builder log level.
	Images          *image.Resolver       // Image table. Nil uses image.Default().
	Canonicalizer   pathmap.Canonicalizer // Path canonicalizer. Nil uses pathmap.OS.
	ScratchRoot     string                // Parent of scratch dirs. Empty uses paths.Scratch().
	Sandbox         Sandbox               // Sandbox settings.
}

// Returned after a successful build.
type Result struct {
	Artifacts map[string]string // Artifacts directory by function name.
}

// Builds the selected functions in order.
//
// The build stops at the first function that fails; artifacts of functions
// built before it are kept.
func Run(ctx context.Context, runner Runner, opts Options) (*Result, error) {
	b, err := newBuilder(runner, opts)
	if err != nil {
		return nil, err
	}

	slog.Info("building functions",
		"functions", len(opts.Functions),
		"build_dir", b.buildDir,
		"mode", opts.Mode,
	)

	result := &Result{Artifacts: make(map[string]string, len(opts.Functions))}
	for _, fn := range opts.Functions {
		artifacts, err := b.buildFunction(ctx, fn)
		if err != nil {
			return result, err
		}
		result.Artifacts[fn.Name] = artifacts
	}

	return result, nil
}

// Holds shared state for building all functions of a request.
type builder struct {
	runner   Runner
	opts     Options
	images   *image.Resolver
	canon    pathmap.Canonicalizer
	buildDir string
	scratch  string
}

func newBuilder(runner Runner, opts Options) (*builder, error) {
	if _, err := ParseMode(opts.Mode); err != nil {
		return nil, err
	}
	if opts.ProtocolVersion == "" {
		opts.ProtocolVersion = rpc.DefaultProtocolVersion
	}
	if opts.Executable == "" {
		opts.Executable = rpc.DefaultExecutable
	}

	b := &builder{
		runner:  runner,
		opts:    opts,
		images:  opts.Images,
		canon:   opts.Canonicalizer,
		scratch: opts.ScratchRoot,
	}
	if b.images == nil {
		b.images = image.Default()
	}
	if b.canon == nil {
		b.canon = pathmap.OS{}
	}
	if b.scratch == "" {
		b.scratch = paths.Scratch()
	}

	buildDir := opts.BuildDir
	if buildDir == "" {
		buildDir = DefaultBuildDir
	}
	if !filepath.IsAbs(buildDir) {
		buildDir = filepath.Join(opts.ProjectDir, buildDir)
	}
	b.buildDir = buildDir

	return b, nil
}

// Builds one function and returns its host artifacts directory.
func (b *builder) buildFunction(ctx context.Context, fn Function) (string, error) {
	start := time.Now()

	artifacts, err := b.execute(ctx, fn)

	status := metrics.StatusSucceeded
	switch {
	case errors.Is(err, runtime.ErrCancelled):
		status = metrics.StatusCancelled
	case err != nil:
		status = metrics.StatusFailed
	}
	metrics.BuildsTotal.WithLabelValues(fn.Runtime, status).Inc()
	metrics.BuildDuration.WithLabelValues(fn.Runtime).Observe(time.Since(start).Seconds())

	if err != nil {
		return "", &FunctionError{Function: fn.Name, Output: outputOf(err), Err: err}
	}

	slog.Info("function built", "function", fn.Name, "artifacts", artifacts, "duration", time.Since(start).Round(time.Millisecond))
	return artifacts, nil
}

func (b *builder) execute(ctx context.Context, fn Function) (string, error) {
	codeDir := fn.CodeDir(b.opts.ProjectDir)

	wf, err := workflow.For(fn.Runtime, codeDir, b.opts.ProjectDir)
	if err != nil {
		return "", err
	}

	manifestPath := b.opts.ManifestPath
	if manifestPath == "" {
		manifestPath = filepath.Join(codeDir, wf.ManifestName)
	}

	host, dirs, err := pathmap.Derive(codeDir, manifestPath, b.canon)
	if err != nil {
		return "", err
	}

	img, err := b.images.Resolve(fn.Runtime)
	if err != nil {
		return "", err
	}

	artifacts := filepath.Join(b.buildDir, fn.Name)
	if err := os.MkdirAll(artifacts, paths.DefaultDirMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	if err := os.MkdirAll(b.scratch, paths.DefaultDirMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	scratch, err := os.MkdirTemp(b.scratch, "build-")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	defer os.RemoveAll(scratch)

	searchPaths := pathmap.TranslateList(wf.ExecutableSearchPaths, map[string]string{
		host.Source:   dirs.Source,
		host.Manifest: dirs.Manifest,
	}, b.canon)

	encoded, err := rpc.NewRequest(rpc.Params{
		ProtocolVersion:       b.opts.ProtocolVersion,
		Capability:            wf.Capability,
		Dirs:                  dirs,
		ManifestFileName:      host.ManifestFile,
		Runtime:               fn.Runtime,
		ExecutableSearchPaths: searchPaths,
		Mode:                  b.opts.Mode,
	}).Encode()
	if err != nil {
		return "", err
	}

	spec := runtime.BuilderSpec(runtime.BuilderConfig{
		Image:      img,
		Executable: b.opts.Executable,
		Request:    encoded,
		LogLevel:   b.opts.LogLevel,
		Host:       host,
		Dirs:       dirs,
		Artifacts:  artifacts,
		Scratch:    scratch,
	})
	spec.MemoryLimitMB = b.opts.Sandbox.MemoryLimitMB
	spec.Network = b.opts.Sandbox.Network
	spec.ExposedPorts = b.opts.Sandbox.ExposedPorts
	spec.EngineOptions = b.opts.Sandbox.EngineOptions
	spec.SkipPull = b.opts.Sandbox.SkipPull

	slog.Info("building function",
		"function", fn.Name,
		"runtime", fn.Runtime,
		"image", img,
		"language", wf.Capability.Language,
		"dependency_manager", wf.Capability.DependencyManager,
	)

	result, err := b.runner.Run(ctx, spec)
	if err != nil {
		return "", err
	}

	if err := interpret(result, img); err != nil {
		return "", err
	}

	return artifacts, nil
}

// Decides the outcome of a builder sandbox.
//
// The builder's JSON-RPC answer wins over its exit code. When the output
// holds no answer, a non-zero exit is a build failure. Every failure carries
// the sandbox output, which holds the builder's own log lines.
func interpret(result *runtime.Result, img string) error {
	_, err := rpc.ParseResponse([]byte(result.Stdout), img)
	if err == nil {
		if result.Stderr != "" {
			slog.Debug("builder output", "image", img, "output", result.Stderr)
		}
		if result.ExitCode != 0 {
			slog.Warn("builder answered but exited non-zero", "code", result.ExitCode)
		}
		return nil
	}

	if !errors.Is(err, rpc.ErrMalformedResponse) {
		return &outputError{err: err, output: combined(result)}
	}

	if result.ExitCode == 0 {
		return &outputError{err: fmt.Errorf("%w: %w", rpc.ErrBuilderCrashed, err), output: combined(result)}
	}

	return &outputError{
		err:    &rpc.BuildError{Message: fmt.Sprintf("builder exited with code %d", result.ExitCode)},
		output: combined(result),
	}
}

// Carries sandbox output alongside an error until it reaches FunctionError.
type outputError struct {
	err    error
	output string
}

func (e *outputError) Error() string { return e.err.Error() }
func (e *outputError) Unwrap() error { return e.err }

func outputOf(err error) string {
	var oe *outputError
	if errors.As(err, &oe) {
		return oe.output
	}
	return ""
}

func combined(result *runtime.Result) string {
	if result.Stdout == "" {
		return result.Stderr
	}
	if result.Stderr == "" {
		return result.Stdout
	}
	return result.Stderr + "\n" + result.Stdout
}
