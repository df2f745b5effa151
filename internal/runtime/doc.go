// Package runtime runs build sandboxes on containerd.
//
// A [Runtime] connects to a containerd daemon and runs one container per
// [ExecutionSpec]. The image is pulled (or reused with SkipPull), a
// container is created with a fresh snapshot and a random ID, the OCI spec
// is adjusted for the entrypoint, environment, bind mounts, memory limit,
// network namespace and engine annotations, and the process runs with its
// stdout and stderr captured. The container and its snapshot are removed on
// every exit path, including cancellation.
//
// Each sandbox moves through the states of a [Lifecycle]: created, started,
// running, exited and removed. Removed is terminal.
//
// [BuilderSpec] derives the execution spec that runs the builder for one
// encoded request.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "lambdad", runtime.Options{})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	result, err := rt.Run(ctx, runtime.BuilderSpec(runtime.BuilderConfig{
//	    Image:   "lambci/lambda:build-python3.7",
//	    Request: encoded,
//	    Host:    host,
//	    Dirs:    dirs,
//	}))
//	if err != nil {
//	    return err
//	}
package runtime
