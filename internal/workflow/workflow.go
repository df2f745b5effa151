package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cruciblehq/lambdad/internal/rpc"
)

// Builder capability and the manifest that drives it.
type Config struct {
	Capability            rpc.Capability // Capability sent to the builder.
	ManifestName          string         // Dependency manifest file name.
	ExecutableSearchPaths []string       // Host paths the builder searches for tools, if any.
}

// Chooses a config for a runtime given the function's code directory.
type selector func(codeDir, projectDir string, exists func(string) bool) (Config, error)

var (
	python = Config{
		Capability:   rpc.Capability{Language: "python", DependencyManager: "pip"},
		ManifestName: "requirements.txt",
	}
	nodejs = Config{
		Capability:   rpc.Capability{Language: "nodejs", DependencyManager: "npm"},
		ManifestName: "package.json",
	}
	ruby = Config{
		Capability:   rpc.Capability{Language: "ruby", DependencyManager: "bundler"},
		ManifestName: "Gemfile",
	}
	golang = Config{
		Capability:   rpc.Capability{Language: "go", DependencyManager: "modules"},
		ManifestName: "go.mod",
	}
	dotnet = Config{
		Capability:   rpc.Capability{Language: "dotnet", DependencyManager: "cli-package"},
		ManifestName: ".csproj",
	}
	gradle = Config{
		Capability:   rpc.Capability{Language: "java", DependencyManager: "gradle"},
		ManifestName: "build.gradle",
	}
	maven = Config{
		Capability:   rpc.Capability{Language: "java", DependencyManager: "maven"},
		ManifestName: "pom.xml",
	}
)

// Runtime identifiers and how their config is chosen.
var runtimes = map[string]selector{
	"python2.7":     fixed(python),
	"python3.6":     fixed(python),
	"python3.7":     fixed(python),
	"python3.8":     fixed(python),
	"nodejs4.3":     fixed(nodejs),
	"nodejs6.10":    fixed(nodejs),
	"nodejs8.10":    fixed(nodejs),
	"nodejs10.x":    fixed(nodejs),
	"nodejs12.x":    fixed(nodejs),
	"ruby2.5":       fixed(ruby),
	"go1.x":         fixed(golang),
	"dotnetcore2.0": fixed(dotnet),
	"dotnetcore2.1": fixed(dotnet),
	"java8":         java,
	"java11":        java,
}

// Returns the config for the runtime.
//
// The code directory is where the function's sources live; projectDir is the
// directory of the application as a whole. Only the Java runtimes look at
// the filesystem.
func For(runtime, codeDir, projectDir string) (Config, error) {
	return lookup(runtime, codeDir, projectDir, fileExists)
}

// Returns the sorted list of runtimes with a known workflow.
func Supported() []string {
	names := make([]string, 0, len(runtimes))
	for name := range runtimes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func lookup(runtime, codeDir, projectDir string, exists func(string) bool) (Config, error) {
	sel, ok := runtimes[runtime]
	if !ok {
		return Config{}, fmt.Errorf("%w: '%s' runtime is not supported", ErrUnsupportedRuntime, runtime)
	}

	cfg, err := sel(codeDir, projectDir, exists)
	if err != nil {
		return Config{}, fmt.Errorf("%w: runtime %s: %w", ErrUnsupportedRuntime, runtime, err)
	}
	return cfg, nil
}

// Returns a selector that always yields cfg.
func fixed(cfg Config) selector {
	return func(string, string, func(string) bool) (Config, error) {
		return cfg, nil
	}
}

// Chooses Gradle or Maven by the manifest present in the code directory.
//
// Gradle wrappers may live at the project root, so both directories are
// handed to the builder as executable search paths.
func java(codeDir, projectDir string, exists func(string) bool) (Config, error) {
	if exists(filepath.Join(codeDir, gradle.ManifestName)) {
		cfg := gradle
		cfg.ExecutableSearchPaths = []string{codeDir, projectDir}
		return cfg, nil
	}

	if exists(filepath.Join(codeDir, maven.ManifestName)) {
		return maven, nil
	}

	valid := []string{gradle.ManifestName, maven.ManifestName}
	return Config{}, fmt.Errorf("unable to find a supported build workflow in %s, valid manifests: %s", codeDir, strings.Join(valid, ", "))
}

// Whether a regular file or directory exists at path.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
