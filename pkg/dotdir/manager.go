// Package dotdir resolves the .ollamaproxy/ directory that holds config.toml.
//
// A project-local ./.ollamaproxy/ wins over the per-user ~/.ollamaproxy/, so a
// checkout can pin its own upstream and model list.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the directory config.toml lives in.
const DirName = ".ollamaproxy"

// Manager locates the config directory for the serve and config commands.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target resolves the config directory, creating it if needed, and returns
// its absolute path. An explicit --config-dir wins; otherwise a .ollamaproxy/
// in the working directory is used when present, and ~/.ollamaproxy/ when not.
func (m *Manager) Target(overrideDir string) (string, error) {
	dir := overrideDir
	if dir == "" {
		local, ok := m.localDir()
		if ok {
			dir = local
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("locating home directory for %s: %w", DirName, err)
			}
			dir = filepath.Join(home, DirName)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// localDir returns ./.ollamaproxy when it exists as a directory.
func (m *Manager) localDir() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}

	dir := filepath.Join(cwd, DirName)
	info, err := os.Stat(dir)
	return dir, err == nil && info.IsDir()
}
