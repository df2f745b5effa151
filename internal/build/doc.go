// Package build orchestrates function builds against a sandbox runner.
//
// An [Inventory] lists the functions of a project. For each selected
// function the build picks the builder capability and manifest for its
// runtime, canonicalizes the source and manifest directories and derives
// their sandbox paths, resolves the build image, encodes the builder
// request, and runs it in a sandbox with the directories mounted. The
// builder's JSON-RPC answer decides whether the function built.
//
// Functions are built one at a time in inventory order and the build stops
// at the first failure. Selecting a target that is not in the inventory
// fails before any sandbox starts.
//
// Example usage:
//
//	inv, err := build.LoadInventory("functions.yaml")
//	if err != nil {
//	    return err
//	}
//
//	fns, err := inv.Select(target)
//	if err != nil {
//	    return err
//	}
//
//	result, err := build.Run(ctx, rt, build.Options{
//	    Functions:  fns,
//	    ProjectDir: inv.Dir,
//	    BuildDir:   ".aws-sam/build",
//	})
//	if err != nil {
//	    return err
//	}
package build
