package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cruciblehq/lambdad/internal/build"
	"github.com/cruciblehq/lambdad/internal/protocol"
)

// Represents the 'lambdad build' command.
type BuildCmd struct {
	Target    string `arg:"" optional:"" help:"Function to build. Builds every function when omitted."`
	Inventory string `short:"i" help:"Function inventory." default:"functions.yaml" type:"existingfile"`
	BuildDir  string `short:"b" help:"Artifacts directory. Defaults to .aws-sam/build in the project." placeholder:"DIR" type:"path"`
	Manifest  string `short:"m" help:"Dependency manifest to use instead of the one in the code directory." placeholder:"PATH" type:"path"`
	Mode      string `help:"Build mode (debug or release). Defaults to $SAM_BUILD_MODE."`
}

// Executes the build command.
//
// The inventory is read locally and sent to the daemon, which resolves code
// paths against the inventory's directory.
func (c *BuildCmd) Run(ctx context.Context) error {
	mode, err := c.mode()
	if err != nil {
		return err
	}

	inv, err := build.LoadInventory(c.Inventory)
	if err != nil {
		return err
	}

	functions, err := inv.Select(c.Target)
	if err != nil {
		return err
	}

	cl, err := dial()
	if err != nil {
		return err
	}

	result, err := cl.Build(ctx, &protocol.BuildRequest{
		Inventory:    inv,
		Target:       c.Target,
		BuildDir:     absOrEmpty(c.BuildDir),
		ManifestPath: absOrEmpty(c.Manifest),
		Mode:         mode,
	})
	if err != nil {
		reportFailure(err)
		return err
	}

	for _, fn := range functions {
		fmt.Printf("%s\t%s\n", fn.Name, result.Artifacts[fn.Name])
	}
	return nil
}

// Returns the flag's build mode, or the environment's when the flag is unset.
func (c *BuildCmd) mode() (string, error) {
	if c.Mode != "" {
		return build.ParseMode(c.Mode)
	}
	return build.ModeFromEnv()
}

// Prints the sandbox output carried by a failed build.
func reportFailure(err error) {
	var failure *protocol.ErrorResult
	if errors.As(err, &failure) && failure.Output != "" {
		fmt.Fprintln(os.Stderr, failure.Output)
	}
}

func absOrEmpty(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
