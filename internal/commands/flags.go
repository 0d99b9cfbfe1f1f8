package commands

import (
	"os"
	"path/filepath"

	"github.com/qvcloud/xmlbroker/internal/profile"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string

	// Profile is loaded in the Before hook and available to all commands
	Profile *profile.Profile
}

// DefaultConfigPath returns the default profile path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "xmlbroker", "config.yaml")
}
