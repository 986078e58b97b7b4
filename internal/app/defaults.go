package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths. Lookup order per path:
//   - config_path: CAPTURE_CONFIG_PATH, $XDG_CONFIG_HOME/capture.toml, ~/.config/capture.toml
//   - base_dir:    CAPTURE_HOME, $XDG_DATA_HOME/capture, ~/.local/share/capture
//
// log_dir is always base_dir/log.
func GetDefaults() (map[string]string, error) {
	configPath, err := lookupPath("CAPTURE_CONFIG_PATH", "XDG_CONFIG_HOME", "capture.toml", ".config")
	if err != nil {
		return nil, err
	}
	baseDir, err := lookupPath("CAPTURE_HOME", "XDG_DATA_HOME", "capture", ".local", "share")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// lookupPath returns $override verbatim, else $xdgVar/name, else
// ~/homeParts.../name.
func lookupPath(override, xdgVar, name string, homeParts ...string) (string, error) {
	if path := os.Getenv(override); path != "" {
		return path, nil
	}
	if dir := os.Getenv(xdgVar); dir != "" && filepath.IsAbs(dir) {
		return filepath.Join(dir, name), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	parts := append([]string{homeDir}, homeParts...)
	return filepath.Join(append(parts, name)...), nil
}
