package runtime

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Access mode of a volume.
type Mode string

const (
	ReadOnly  Mode = "ro"
	ReadWrite Mode = "rw"
)

const (

	// Network value selecting the host network namespace.
	NetworkHost = "host"

	// Network value selecting a fresh, unconnected network namespace.
	NetworkNone = "none"

	// Directory holding named network namespaces.
	netnsDir = "/var/run/netns"

	// Label marking containers created by this runtime.
	LabelSandbox = "lambdad.sandbox"

	// Label carrying the digest of the sandbox entrypoint.
	LabelEntrypointDigest = "lambdad.entrypoint.digest"

	// Prefix of labels recording exposed ports, keyed by container port.
	labelPortPrefix = "lambdad.port."
)

// A bind mount into the sandbox.
type Volume struct {
	Bind string // Absolute path inside the sandbox.
	Mode Mode   // Access mode.
}

// Volume mappings keyed by absolute host path.
type Volumes map[string]Volume

// Everything needed to run one sandbox.
type ExecutionSpec struct {
	Image         string            // Image reference.
	Entrypoint    []string          // Process argv.
	WorkingDir    string            // Process working directory.
	Env           map[string]string // Extra environment, merged over the image's.
	Volumes       Volumes           // Bind mounts.
	ExposedPorts  map[int]int       // Container port to host port. Recorded, not published.
	MemoryLimitMB int               // Memory limit in MB. Zero means unlimited.
	Network       string            // "", "host", "none", a namespace name or path.
	EngineOptions map[string]string // Passed to the OCI runtime as annotations.
	SkipPull      bool              // Use a local image when one exists.
}

// Checks the spec for values the runtime cannot honor.
func (s ExecutionSpec) Validate() error {
	if s.Image == "" {
		return fmt.Errorf("%w: missing image", ErrInvalidSpec)
	}
	if len(s.Entrypoint) == 0 {
		return fmt.Errorf("%w: missing entrypoint", ErrInvalidSpec)
	}
	if s.MemoryLimitMB < 0 {
		return fmt.Errorf("%w: negative memory limit", ErrInvalidSpec)
	}
	for host, v := range s.Volumes {
		if !filepath.IsAbs(host) || !filepath.IsAbs(v.Bind) {
			return fmt.Errorf("%w: volume %s:%s must use absolute paths", ErrInvalidSpec, host, v.Bind)
		}
		if v.Mode != ReadOnly && v.Mode != ReadWrite {
			return fmt.Errorf("%w: volume %s has mode %q", ErrInvalidSpec, host, v.Mode)
		}
	}
	return nil
}

// Returns the container labels for the spec.
func (s ExecutionSpec) labels() map[string]string {
	labels := map[string]string{
		LabelSandbox:          "true",
		LabelEntrypointDigest: entrypointDigest(s.Entrypoint).String(),
	}
	for container, host := range s.ExposedPorts {
		labels[labelPortPrefix+strconv.Itoa(container)] = strconv.Itoa(host)
	}
	return labels
}

// Digest identifying an entrypoint, and with it the build request it carries.
func entrypointDigest(argv []string) digest.Digest {
	return digest.FromString(strings.Join(argv, "\x00"))
}

// Returns the OCI spec options that apply the execution spec on top of the
// image configuration.
func sandboxOpts(s ExecutionSpec) []oci.SpecOpts {
	opts := []oci.SpecOpts{
		oci.WithProcessArgs(s.Entrypoint...),
	}

	if s.WorkingDir != "" {
		opts = append(opts, oci.WithProcessCwd(s.WorkingDir))
	}
	if len(s.Env) > 0 {
		opts = append(opts, oci.WithEnv(envList(s.Env)))
	}
	if len(s.Volumes) > 0 {
		opts = append(opts, oci.WithMounts(mounts(s.Volumes)))
	}
	if s.MemoryLimitMB > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(s.MemoryLimitMB)*1024*1024))
	}
	if len(s.EngineOptions) > 0 {
		opts = append(opts, oci.WithAnnotations(maps.Clone(s.EngineOptions)))
	}

	return append(opts, networkOpts(s.Network)...)
}

// Returns the options selecting the sandbox network namespace.
//
// An empty network shares the host namespace, as does "host". "none" keeps
// the fresh namespace of the default spec. Any other value names a
// namespace under /var/run/netns or is an absolute namespace path.
func networkOpts(network string) []oci.SpecOpts {
	switch network {
	case "", NetworkHost:
		return []oci.SpecOpts{
			oci.WithHostNamespace(specs.NetworkNamespace),
			oci.WithHostResolvconf,
		}
	case NetworkNone:
		return nil
	}

	path := network
	if !filepath.IsAbs(path) {
		path = filepath.Join(netnsDir, network)
	}
	return []oci.SpecOpts{
		oci.WithLinuxNamespace(specs.LinuxNamespace{Type: specs.NetworkNamespace, Path: path}),
		oci.WithHostResolvconf,
	}
}

// Converts volumes to bind mounts, ordered by sandbox path so that parents
// are mounted before children.
func mounts(volumes Volumes) []specs.Mount {
	result := make([]specs.Mount, 0, len(volumes))
	for host, v := range volumes {
		result = append(result, specs.Mount{
			Destination: v.Bind,
			Type:        "bind",
			Source:      host,
			Options:     []string{"rbind", string(v.Mode)},
		})
	}
	slices.SortFunc(result, func(a, b specs.Mount) int {
		if a.Destination < b.Destination {
			return -1
		}
		if a.Destination > b.Destination {
			return 1
		}
		return 0
	})
	return result
}

// Converts an environment map to sorted KEY=VALUE entries.
func envList(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		result = append(result, k+"="+env[k])
	}
	return result
}
