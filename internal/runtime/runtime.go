package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cruciblehq/lambdad/internal/image"
	"github.com/cruciblehq/lambdad/internal/metrics"
)

const (

	// Default snapshotter for sandbox filesystems. fuse-overlayfs provides
	// overlay semantics without requiring root privileges (no mount(2)),
	// allowing lambdad to run as a regular user.
	DefaultSnapshotter = "fuse-overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"

	// Prefix of sandbox container IDs.
	containerIDPrefix = "lambdad-"
)

// Runtime configuration.
type Options struct {
	Snapshotter string // Snapshotter name. Empty uses DefaultSnapshotter.
	Platform    string // OCI platform of build images. Empty uses the host's.
}

// Output of a sandbox execution.
type Result struct {
	ExitCode int    // Exit code of the sandbox process.
	Stdout   string // Captured standard output.
	Stderr   string // Captured standard error.
}

// Manages the containerd client and runs sandboxes.
type Runtime struct {
	client      *containerd.Client // Containerd client for managing containers and images.
	snapshotter string             // Snapshotter for sandbox filesystems.
	platform    ocispec.Platform   // OCI platform of build images.
}

// Creates a runtime connected to the containerd socket at the given address.
//
// The namespace scopes all containerd operations to a single tenant. The
// runtime must be closed when no longer needed.
func New(address, namespace string, opts Options) (*Runtime, error) {
	client, err := containerd.New(address, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if opts.Snapshotter == "" {
		opts.Snapshotter = DefaultSnapshotter
	}

	platform, err := parsePlatform(opts.Platform)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &Runtime{client: client, snapshotter: opts.Snapshotter, platform: platform}, nil
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Runs one sandbox to completion.
//
// The image is pulled unless SkipPull is set and the image exists locally.
// A container with a fresh snapshot and a random ID is created, its process
// runs with stdout and stderr captured, and the container and snapshot are
// removed on every exit path. A non-zero exit code is not treated as an
// error; the caller decides. Cancelling ctx kills the process and returns
// [ErrCancelled].
func (rt *Runtime) Run(ctx context.Context, spec ExecutionSpec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	img, err := rt.ensureImage(ctx, spec.Image, spec.SkipPull)
	if err != nil {
		return nil, err
	}

	sb := newSandbox(rt.client, newContainerID())
	if err := sb.create(ctx, img, rt.snapshotter, platforms.Format(rt.platform), spec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	metrics.SandboxesActive.Inc()
	defer metrics.SandboxesActive.Dec()

	slog.Debug("sandbox created", "id", sb.id, "image", spec.Image)

	return sb.execute(ctx)
}

// Returns a usable image for ref, pulling it when needed.
func (rt *Runtime) ensureImage(ctx context.Context, ref string, skipPull bool) (containerd.Image, error) {
	name, err := image.Normalize(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}

	if skipPull {
		img, err := rt.resolveImage(ctx, name)
		if err == nil {
			if err := rt.unpack(ctx, img); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
			}
			slog.Debug("using local image", "image", name)
			return img, nil
		}
		if !errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
		}
		slog.Info("image not found locally", "image", name)
	}

	return rt.pull(ctx, name)
}

// Pulls and unpacks an image for the runtime platform.
func (rt *Runtime) pull(ctx context.Context, name string) (containerd.Image, error) {
	slog.Info("pulling image", "image", name, "platform", platforms.Format(rt.platform))

	img, err := rt.client.Pull(ctx, name,
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(rt.snapshotter),
		containerd.WithPlatformMatcher(platforms.Only(rt.platform)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrImagePull, name, err)
	}

	return img, nil
}

// Unpacks the image layers into the snapshotter unless already present.
func (rt *Runtime) unpack(ctx context.Context, img containerd.Image) error {
	unpacked, err := img.IsUnpacked(ctx, rt.snapshotter)
	if err != nil {
		return err
	}
	if unpacked {
		return nil
	}
	return img.Unpack(ctx, rt.snapshotter)
}

// Looks up a tagged image and selects the manifest for the runtime platform.
//
// Multi-platform images contain manifests for multiple architectures. This
// method selects one, so that subsequent operations target the correct
// architecture.
func (rt *Runtime) resolveImage(ctx context.Context, tag string) (containerd.Image, error) {
	img, err := rt.client.ImageService().Get(ctx, tag)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(rt.client, img, platforms.Only(rt.platform)), nil
}

// Imports an OCI archive, tags it under the given name, and unpacks it for
// the runtime platform.
//
// This preloads a build image on hosts without registry access. Builds that
// set SkipPull then use the imported image.
func (rt *Runtime) ImportImage(ctx context.Context, path, ref string) error {
	tag, err := image.Normalize(ref)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}

	source, err := rt.importArchive(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := rt.tagImage(ctx, source, tag); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	img, err := rt.resolveImage(ctx, tag)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := rt.unpack(ctx, img); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Info("image imported", "image", tag)
	return nil
}

// Imports an OCI archive into the content store.
//
// The archive must contain exactly one image. Multi-platform archives
// are supported (single OCI index with per-platform manifests).
func (rt *Runtime) importArchive(ctx context.Context, path string) (images.Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return images.Image{}, err
	}
	defer fh.Close()

	imported, err := rt.client.Import(ctx, fh)
	if err != nil {
		return images.Image{}, err
	}

	if len(imported) == 0 {
		return images.Image{}, ErrEmptyArchive
	} else if len(imported) > 1 {
		return images.Image{}, ErrMultipleImages
	}

	return imported[0], nil
}

// Tags an imported image.
//
// Updates the tag if it already exists. Removes the source record when
// its name differs from the tag to avoid duplicates.
func (rt *Runtime) tagImage(ctx context.Context, source images.Image, tag string) error {
	is := rt.client.ImageService()

	img := images.Image{
		Name:   tag,
		Target: source.Target,
	}

	if _, err := is.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return err
		}
		if _, err := is.Update(ctx, img, "target"); err != nil {
			return err
		}
	}

	if source.Name != tag {
		_ = is.Delete(ctx, source.Name)
	}

	return nil
}

// Returns the IDs of sandbox containers known to containerd.
func (rt *Runtime) Sandboxes(ctx context.Context) ([]string, error) {
	ctrs, err := rt.client.Containers(ctx, sandboxFilter())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	ids := make([]string, 0, len(ctrs))
	for _, ctr := range ctrs {
		ids = append(ids, ctr.ID())
	}
	return ids, nil
}

// Removes sandbox containers left behind by a previous daemon.
//
// Each container's task is killed before the container and its snapshot
// are deleted. Returns the number of containers removed.
func (rt *Runtime) Prune(ctx context.Context) (int, error) {
	ctrs, err := rt.client.Containers(ctx, sandboxFilter())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	removed := 0
	for _, ctr := range ctrs {
		if task, taskErr := ctr.Task(ctx, nil); taskErr == nil {
			task.Kill(ctx, syscall.SIGKILL)
			task.Delete(ctx, containerd.WithProcessKill)
		}
		if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
			return removed, fmt.Errorf("%w: %w", ErrRuntime, err)
		}
		slog.Debug("stale sandbox removed", "id", ctr.ID())
		removed++
	}

	return removed, nil
}

// Containerd filter matching sandbox containers.
func sandboxFilter() string {
	return fmt.Sprintf("labels.%q==true", LabelSandbox)
}

// Returns a fresh sandbox container ID.
func newContainerID() string {
	return containerIDPrefix + uuid.NewString()
}

// Parses the configured platform. Empty selects linux on the host
// architecture, since build images are always Linux images.
func parsePlatform(s string) (ocispec.Platform, error) {
	if s == "" {
		return platforms.Normalize(ocispec.Platform{OS: "linux", Architecture: goruntime.GOARCH}), nil
	}

	p, err := platforms.Parse(s)
	if err != nil {
		return ocispec.Platform{}, fmt.Errorf("%w: platform %q: %w", ErrInvalidSpec, s, err)
	}
	return platforms.Normalize(p), nil
}
