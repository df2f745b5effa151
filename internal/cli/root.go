package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/cruciblehq/lambdad/internal"
	"github.com/cruciblehq/lambdad/internal/client"
	"github.com/cruciblehq/lambdad/internal/settings"
)

// Represents the root command for lambdad.
var RootCmd struct {
	Quiet   bool       `short:"q" help:"Suppress informational output."`
	Verbose bool       `short:"v" help:"Enable verbose output."`
	Debug   bool       `short:"d" help:"Enable debug output."`
	Socket  string     `short:"s" help:"Override the default Unix socket path." placeholder:"PATH"`
	Config  string     `short:"c" help:"Settings file. Defaults to $LAMBDAD_CONFIG or the user config directory." placeholder:"PATH" type:"path"`
	Start   StartCmd   `cmd:"" help:"Start the daemon."`
	Build   BuildCmd   `cmd:"" help:"Build functions in builder sandboxes."`
	Env     EnvCmd     `cmd:"" help:"Print the environment variables of an emulated function."`
	Import  ImportCmd  `cmd:"" help:"Import a build image from an OCI archive."`
	Status  StatusCmd  `cmd:"" help:"Show daemon status."`
	Stop    StopCmd    `cmd:"" help:"Stop the daemon."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Builds serverless functions inside containerd sandboxes.\n\nThe daemon runs each function's builder in a build image and reports the result to the CLI."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
//
// The effective modes are stored in the internal package so later stages,
// such as settings loading, read one answer.
func configureLogger() {
	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()
	verbose := RootCmd.Verbose || internal.IsVerbose()

	internal.SetDebug(debug)
	internal.SetQuiet(quiet)
	internal.SetVerbose(verbose)

	handler, ok := slog.Default().Handler().(*log.Logger)
	if !ok {
		return // Not a charmbracelet logger, nothing to configure
	}

	// Configure level
	if debug {
		handler.SetLevel(log.DebugLevel)
	} else if quiet {
		handler.SetLevel(log.WarnLevel)
	} else {
		handler.SetLevel(log.InfoLevel)
	}

	// Configure formatter
	if isatty(os.Stderr) {
		handler.SetFormatter(log.TextFormatter)
	} else {
		handler.SetFormatter(log.LogfmtFormatter)
	}
	handler.SetReportCaller(verbose)
	handler.SetReportTimestamp(verbose || !isatty(os.Stderr))

	// Commit
	handler.SetOutput(os.Stderr)
}

// Loads settings and applies the global flags to them.
func loadSettings() (*settings.Settings, error) {
	cfg, err := settings.Load(RootCmd.Config)
	if err != nil {
		return nil, err
	}

	if RootCmd.Socket != "" {
		cfg.Socket = RootCmd.Socket
	}
	if internal.IsDebug() && cfg.Builder.LogLevel == "" {
		cfg.Builder.LogLevel = "DEBUG"
	}

	return cfg, nil
}

// Returns a client for the daemon named by the settings.
func dial() (*client.Client, error) {
	cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.Socket), nil
}

// Whether the given file is an interactive terminal.
func isatty(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
