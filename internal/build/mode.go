package build

import (
	"fmt"
	"os"
	"slices"
)

// Environment variable selecting the build mode.
const ModeEnv = "SAM_BUILD_MODE"

const (
	ModeDebug   = "debug"
	ModeRelease = "release"
)

var modes = []string{ModeDebug, ModeRelease}

// Validates a build mode. The empty mode is valid and leaves the choice to
// the builder.
func ParseMode(mode string) (string, error) {
	if mode == "" || slices.Contains(modes, mode) {
		return mode, nil
	}
	return "", fmt.Errorf("%w: %q, must be one of %v", ErrInvalidMode, mode, modes)
}

// Returns the build mode selected by the environment.
func ModeFromEnv() (string, error) {
	return ParseMode(os.Getenv(ModeEnv))
}
