package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cruciblehq/lambdad/internal/build"
	"github.com/cruciblehq/lambdad/internal/envvars"
)

// Represents the 'lambdad env' command.
type EnvCmd struct {
	Function  string `short:"f" required:"" help:"Function to emulate."`
	Inventory string `short:"i" help:"Function inventory." default:"functions.yaml" type:"existingfile"`
	EnvVars   string `short:"n" name:"env-vars" help:"JSON file with environment variable values." placeholder:"PATH" type:"existingfile"`
	Event     string `short:"e" help:"Event document exposed as AWS_LAMBDA_EVENT_BODY." placeholder:"PATH" type:"existingfile"`
	Region    string `short:"r" help:"AWS region exposed to the function. Overrides AWS_REGION." placeholder:"REGION"`
}

// Executes the env command.
//
// Resolution runs locally from the inventory, the shell environment and the
// optional override file. The daemon is not contacted.
func (c *EnvCmd) Run(ctx context.Context) error {
	inv, err := build.LoadInventory(c.Inventory)
	if err != nil {
		return err
	}

	fn, err := inv.Lookup(c.Function)
	if err != nil {
		return err
	}

	var overrides envvars.Overrides
	if c.EnvVars != "" {
		if overrides, err = envvars.LoadOverrides(c.EnvVars); err != nil {
			return err
		}
	}

	shell := envvars.ShellEnv()
	vars := envvars.New(fn.EnvInput(shell, overrides, c.credentials(shell)))

	if c.Event != "" {
		body, err := os.ReadFile(c.Event)
		if err != nil {
			return err
		}
		vars = vars.WithEventBody(string(body))
	}

	out, err := json.MarshalIndent(vars.Resolve(), "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))
	return nil
}

// Returns the AWS identity taken from the shell, with the region flag
// applied on top.
func (c *EnvCmd) credentials(shell map[string]string) envvars.Credentials {
	creds := envvars.CredentialsFromShell(shell)
	if c.Region != "" {
		creds.Region = c.Region
	}
	return creds
}
