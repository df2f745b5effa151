package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/cruciblehq/lambdad/internal/image"
	"github.com/cruciblehq/lambdad/internal/paths"
	"github.com/cruciblehq/lambdad/internal/rpc"
	"github.com/cruciblehq/lambdad/internal/runtime"
)

const (

	// Environment variable naming the settings file.
	ConfigEnv = "LAMBDAD_CONFIG"

	// Prefix of environment overrides.
	envPrefix = "LAMBDAD_"

	// Default containerd socket.
	DefaultContainerdAddress = "/run/containerd/containerd.sock"

	// Default containerd namespace.
	DefaultNamespace = "lambdad"
)

// Log levels understood by the builder.
var builderLogLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

// Daemon settings.
type Settings struct {
	Socket     string     `yaml:"socket"`
	Containerd Containerd `yaml:"containerd"`
	Builder    Builder    `yaml:"builder"`
	Sandbox    Sandbox    `yaml:"sandbox"`
	Metrics    Metrics    `yaml:"metrics"`
}

// Containerd connection.
type Containerd struct {
	Address     string `yaml:"address"`     // Socket path.
	Namespace   string `yaml:"namespace"`   // Namespace for images and sandboxes.
	Snapshotter string `yaml:"snapshotter"` // Snapshotter for sandbox filesystems.
	Platform    string `yaml:"platform"`    // Platform of build images, e.g. "linux/amd64".
}

// Builder invocation.
type Builder struct {
	Executable      string        `yaml:"executable"`       // Builder executable inside build images.
	ProtocolVersion string        `yaml:"protocol_version"` // Builder protocol version.
	LogLevel        string        `yaml:"log_level"`        // Builder log level. Empty leaves it unset.
	Images          []image.Entry `yaml:"images"`           // Images placed before the curated table.
	SkipPull        bool          `yaml:"skip_pull"`        // Reuse local images.
}

// Sandbox knobs applied to every build.
type Sandbox struct {
	MemoryLimitMB int               `yaml:"memory_limit_mb"` // Zero means unlimited.
	Network       string            `yaml:"network"`         // "", "host", "none", or a namespace.
	ExposedPorts  map[int]int       `yaml:"exposed_ports"`   // Container port to host port.
	EngineOptions map[string]string `yaml:"engine_options"`  // OCI runtime annotations.
}

// Metrics endpoint.
type Metrics struct {
	Address string `yaml:"address"` // Listen address. Empty disables the endpoint.
}

// Returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Socket: paths.Socket(),
		Containerd: Containerd{
			Address:     DefaultContainerdAddress,
			Namespace:   DefaultNamespace,
			Snapshotter: runtime.DefaultSnapshotter,
		},
		Builder: Builder{
			Executable:      rpc.DefaultExecutable,
			ProtocolVersion: rpc.DefaultProtocolVersion,
		},
	}
}

// Loads settings from defaults, the settings file and the environment.
//
// An explicit path must exist. The platform config file is optional.
func Load(path string) (*Settings, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Settings, error) {
	cfg := Defaults()

	file, required := discover(path, lookup)
	if file != "" {
		if err := mergeFile(&cfg, file, required); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	cfg.Builder.LogLevel = strings.ToUpper(cfg.Builder.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Returns the settings file to read and whether it must exist.
func discover(path string, lookup func(string) (string, bool)) (string, bool) {
	if path != "" {
		return path, true
	}
	if env, ok := lookup(ConfigEnv); ok && env != "" {
		return env, true
	}
	return paths.ConfigFile(), false
}

// Merges a YAML file over cfg. Values set in the file win.
func mergeFile(cfg *Settings, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}

	var file Settings
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}

	if err := mergo.Merge(cfg, file, mergo.WithOverride); err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}

	return nil
}

// Applies LAMBDAD_* environment overrides.
func applyEnv(cfg *Settings, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SOCKET":                 &cfg.Socket,
		"CONTAINERD_ADDRESS":     &cfg.Containerd.Address,
		"CONTAINERD_NAMESPACE":   &cfg.Containerd.Namespace,
		"CONTAINERD_SNAPSHOTTER": &cfg.Containerd.Snapshotter,
		"CONTAINERD_PLATFORM":    &cfg.Containerd.Platform,
		"BUILDER_EXECUTABLE":     &cfg.Builder.Executable,
		"BUILDER_LOG_LEVEL":      &cfg.Builder.LogLevel,
		"SANDBOX_NETWORK":        &cfg.Sandbox.Network,
		"METRICS_ADDRESS":        &cfg.Metrics.Address,
	}
	for name, field := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*field = v
		}
	}

	if v, ok := lookup(envPrefix + "BUILDER_SKIP_PULL"); ok {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sBUILDER_SKIP_PULL: %w", ErrInvalid, envPrefix, err)
		}
		cfg.Builder.SkipPull = skip
	}

	if v, ok := lookup(envPrefix + "SANDBOX_MEMORY_LIMIT_MB"); ok {
		mb, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sSANDBOX_MEMORY_LIMIT_MB: %w", ErrInvalid, envPrefix, err)
		}
		cfg.Sandbox.MemoryLimitMB = mb
	}

	return nil
}

// Checks the settings for values the daemon cannot use.
func (s *Settings) Validate() error {
	var errs []error

	if s.Socket == "" {
		errs = append(errs, errors.New("socket is required"))
	}
	if s.Containerd.Address == "" {
		errs = append(errs, errors.New("containerd.address is required"))
	}
	if s.Containerd.Namespace == "" {
		errs = append(errs, errors.New("containerd.namespace is required"))
	}
	if s.Builder.Executable == "" {
		errs = append(errs, errors.New("builder.executable is required"))
	}
	if s.Builder.LogLevel != "" && !slices.Contains(builderLogLevels, strings.ToUpper(s.Builder.LogLevel)) {
		errs = append(errs, fmt.Errorf("builder.log_level %q must be one of %v", s.Builder.LogLevel, builderLogLevels))
	}
	for i, e := range s.Builder.Images {
		if e.Runtime == "" || e.Image == "" {
			errs = append(errs, fmt.Errorf("builder.images[%d] needs a runtime and an image", i))
		}
	}
	if s.Sandbox.MemoryLimitMB < 0 {
		errs = append(errs, errors.New("sandbox.memory_limit_mb must not be negative"))
	}
	for container, host := range s.Sandbox.ExposedPorts {
		if !validPort(container) || !validPort(host) {
			errs = append(errs, fmt.Errorf("sandbox.exposed_ports %d:%d out of range", container, host))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// Returns the image resolver for these settings.
func (s *Settings) Images() *image.Resolver {
	return image.Default(s.Builder.Images...)
}
