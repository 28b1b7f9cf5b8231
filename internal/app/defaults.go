package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults holds the default locations custody uses when the config does not
// say otherwise.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CUSTODY_CONFIG_PATH: config file location (default: ~/.config/custody.toml)
//   - CUSTODY_HOME: base directory for custody data (default: ~/.local/share/custody)
func GetDefaults() (*Defaults, error) {
	configPath, err := fromEnvOrHome("CUSTODY_CONFIG_PATH", ".config", "custody.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := fromEnvOrHome("CUSTODY_HOME", ".local", "share", "custody")
	if err != nil {
		return nil, err
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// fromEnvOrHome returns $env when set, else the path elems joined under the home directory.
func fromEnvOrHome(env string, elems ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elems...)...), nil
}
