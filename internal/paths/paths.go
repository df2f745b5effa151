package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	daemonName = "lambdad"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory for runtime files (sockets, PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/lambdad or /run/user/<uid>/lambdad
//	macOS:   ~/Library/Caches/lambdad/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, daemonName)
	}
	return filepath.Join(xdg.CacheHome, daemonName, "run")
}

// Default path to the Unix domain socket for CLI-to-daemon communication.
//
//	Linux:   $XDG_RUNTIME_DIR/lambdad/lambdad.sock
//	macOS:   ~/Library/Caches/lambdad/run/lambdad.sock
func Socket() string {
	return filepath.Join(Runtime(), "lambdad.sock")
}

// Default path to the PID file.
//
//	Linux:   $XDG_RUNTIME_DIR/lambdad/lambdad.pid
//	macOS:   ~/Library/Caches/lambdad/run/lambdad.pid
func PIDFile() string {
	return filepath.Join(Runtime(), "lambdad.pid")
}

// Default path to the configuration file.
//
//	Linux:   $XDG_CONFIG_HOME/lambdad/config.yaml
//	macOS:   ~/Library/Application Support/lambdad/config.yaml
func ConfigFile() string {
	return filepath.Join(xdg.ConfigHome, daemonName, "config.yaml")
}

// Directory under which per-build scratch directories are created.
//
//	Linux:   $XDG_CACHE_HOME/lambdad/scratch
//	macOS:   ~/Library/Caches/lambdad/scratch
func Scratch() string {
	return filepath.Join(xdg.CacheHome, daemonName, "scratch")
}
