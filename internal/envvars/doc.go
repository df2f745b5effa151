// Package envvars computes the environment variables used to emulate a
// function's managed execution context.
//
// A [Variables] value is built once from every input layer and never
// changes afterwards. Resolution starts from the fixed emulation variables
// (the local marker, memory, timeout, handler and the AWS identity group),
// then resolves each declared variable with the precedence
// override > shell > declared default. Names that were not declared are
// never injected from the shell or override layers. Declared names win over
// fixed ones, which is how a function can pin AWS_DEFAULT_REGION.
//
// Every value is coerced to a string: booleans become "true" or "false",
// numbers their decimal form, and composite or missing values the empty
// string.
//
// Example usage:
//
//	vars := envvars.New(envvars.Input{
//	    Declared: fn.Environment,
//	    Shell:    envvars.ShellEnv(),
//	    Memory:   128,
//	    Timeout:  3,
//	    Handler:  "app.handler",
//	})
//
//	env := vars.WithEventBody(event).Resolve()
package envvars
