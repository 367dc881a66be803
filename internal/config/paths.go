// ABOUTME: Standard filesystem paths for openagent configuration and logs
// ABOUTME: Resolves ~/.openagent/ for global and .openagent/ for project-local paths

package config

import (
	"os"
	"path/filepath"
)

const (
	globalDirName  = ".openagent"
	projectDirName = ".openagent"
)

// configFileNames are tried in order inside a config directory.
var configFileNames = []string{"config.yaml", "config.yml", "config.toml"}

// GlobalDir returns the user-global config directory (~/.openagent/).
func GlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", globalDirName)
	}
	return filepath.Join(home, globalDirName)
}

// ProjectDir returns the project-local config directory (.openagent/ in the project root).
func ProjectDir(projectRoot string) string {
	return filepath.Join(projectRoot, projectDirName)
}

// DefaultLogFile is where the interactive UI sends logs so they do not
// tear the terminal.
func DefaultLogFile() string {
	return filepath.Join(GlobalDir(), "logs", "openagent.log")
}

// EnsureDir creates a directory and all parents if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o700)
}
