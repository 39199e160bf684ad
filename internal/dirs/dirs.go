// Package dirs provides default path resolution for detach.
// It handles XDG base directories with fallbacks for platforms where
// XDG isn't set up (e.g., macOS app bundles launched from Finder).
package dirs

import (
	"os"
	"path/filepath"
)

// DefaultScriptName is the script looked up next to the executable when no
// script is configured.
const DefaultScriptName = "run_tma.sh"

// DefaultLogName is the name of the debug log inside the temp directory.
const DefaultLogName = "tma_launch.log"

// ConfigFile returns the path of the YAML config file.
// Priority: $DETACH_CONFIG > $XDG_CONFIG_HOME/detach/config.yaml > ~/.config/detach/config.yaml
// Returns "" when no candidate can be derived.
func ConfigFile() string {
	return ConfigFileEnv(os.Getenv)
}

// ConfigFileEnv is ConfigFile with the environment read through getenv.
func ConfigFileEnv(getenv func(string) string) string {
	if v := getenv("DETACH_CONFIG"); v != "" {
		return v
	}
	if base := getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, "detach", "config.yaml")
	}
	if home := getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", "detach", "config.yaml")
	}
	return ""
}

// LogPath returns the default debug log location.
func LogPath() string {
	return filepath.Join(os.TempDir(), DefaultLogName)
}

// ScriptPath returns the default target script: run_tma.sh in the directory
// holding the running executable. Falls back to a relative name when the
// executable can't be located.
func ScriptPath() string {
	self, err := os.Executable()
	if err != nil {
		return DefaultScriptName
	}
	if resolved, err := filepath.EvalSymlinks(self); err == nil {
		self = resolved
	}
	return filepath.Join(filepath.Dir(self), DefaultScriptName)
}
