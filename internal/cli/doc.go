// Parses flags, loads settings and configures logging for lambdad.
//
// The same binary runs the daemon and talks to it:
//
//	lambdad start                      Run the daemon.
//	lambdad build [TARGET]             Build functions through the daemon.
//	lambdad env --function NAME        Resolve emulation variables locally.
//	lambdad import ARCHIVE REF         Import a build image into the daemon.
//	lambdad status                     Show daemon status.
//	lambdad stop                       Stop the daemon.
//
// Global flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//	-s, --socket    Unix socket path.
//	-c, --config    Settings file.
//
// Flags override build-time defaults set via linker flags. After parsing, the
// global logger is reconfigured to reflect the final level and verbosity before
// the command runs.
package cli
