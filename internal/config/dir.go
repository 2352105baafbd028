package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// AppName names the per-user configuration directory
	AppName = "printhost"

	// DefaultFileName is the settings file inside the base directory
	DefaultFileName = "config.yaml"
)

// GetConfigDir returns the OS-appropriate base directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/printhost or $HOME/.config/printhost
//   - macOS: $HOME/.config/printhost (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\printhost
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			// Fallback to USERPROFILE\AppData\Local if LOCALAPPDATA not set
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", AppName)
		} else {
			baseDir = filepath.Join(localAppData, AppName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", AppName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, AppName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", AppName)
		}
	}

	return baseDir, nil
}

// ResolveBaseDir returns dir if set, else GetConfigDir, and makes sure it exists
func ResolveBaseDir(dir string) (string, error) {
	if dir == "" {
		var err error
		dir, err = GetConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to get config directory: %w", err)
		}
	}

	// User-only permissions, the settings file holds the API key
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// ResolveSettingsFile returns file if set, else DefaultFileName inside baseDir.
// Relative paths are taken relative to baseDir.
func ResolveSettingsFile(baseDir, file string) string {
	if file == "" {
		return filepath.Join(baseDir, DefaultFileName)
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(baseDir, file)
}
