package runtime

import (
	"github.com/cruciblehq/lambdad/internal/pathmap"
	"github.com/cruciblehq/lambdad/internal/rpc"
)

// Environment variable carrying the builder log level.
const LogLevelEnv = "LAMBDA_BUILDERS_LOG_LEVEL"

// Inputs of a builder sandbox.
type BuilderConfig struct {
	Image      string           // Build image reference.
	Executable string           // Builder executable. Empty uses rpc.DefaultExecutable.
	Request    string           // Encoded build request.
	LogLevel   string           // Builder log level. Empty leaves it unset.
	Host       pathmap.HostDirs // Canonical host source and manifest dirs.
	Dirs       pathmap.Dirs     // Sandbox directories.
	Artifacts  string           // Host artifacts directory.
	Scratch    string           // Host scratch directory.
}

// Returns the execution spec that runs the builder for one request.
//
// The builder runs in the sandbox source directory with the request as its
// only argument. The manifest directory is mounted read-only unless it is
// the source directory, which is mounted read-write along with the
// artifacts and scratch directories.
func BuilderSpec(cfg BuilderConfig) ExecutionSpec {
	executable := cfg.Executable
	if executable == "" {
		executable = rpc.DefaultExecutable
	}

	return ExecutionSpec{
		Image:      cfg.Image,
		Entrypoint: rpc.Entrypoint(executable, cfg.Request),
		WorkingDir: cfg.Dirs.Source,
		Env:        BuilderEnv(cfg.LogLevel),
		Volumes:    builderVolumes(cfg),
	}
}

// Returns the builder environment for a log level.
func BuilderEnv(level string) map[string]string {
	env := map[string]string{}
	if level != "" {
		env[LogLevelEnv] = level
	}
	return env
}

func builderVolumes(cfg BuilderConfig) Volumes {
	volumes := Volumes{
		cfg.Host.Source: {Bind: cfg.Dirs.Source, Mode: ReadWrite},
	}
	if cfg.Artifacts != "" {
		volumes[cfg.Artifacts] = Volume{Bind: cfg.Dirs.Artifacts, Mode: ReadWrite}
	}
	if cfg.Scratch != "" {
		volumes[cfg.Scratch] = Volume{Bind: cfg.Dirs.Scratch, Mode: ReadWrite}
	}
	if _, ok := volumes[cfg.Host.Manifest]; !ok && cfg.Dirs.Manifest != cfg.Dirs.Source {
		volumes[cfg.Host.Manifest] = Volume{Bind: cfg.Dirs.Manifest, Mode: ReadOnly}
	}
	return volumes
}
