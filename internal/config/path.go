// Package config provides configuration management for eventhub.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/graaaaa/eventhub/internal/appinfo"
)

// EnvDataDir overrides the data directory.
const EnvDataDir = "EVENTHUB_DATA_DIR"

// DataDir returns the application data directory path.
// EVENTHUB_DATA_DIR wins; otherwise
// on Windows: %LOCALAPPDATA%/eventhub/
// on other platforms: ~/.config/eventhub/ or equivalent
func DataDir() (string, error) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir, nil
	}

	var base string
	if runtime.GOOS == "windows" {
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			base = localAppData
		} else {
			dir, err := os.UserConfigDir()
			if err != nil {
				return "", fmt.Errorf("get user config dir: %w", err)
			}
			base = dir
		}
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("get user config dir: %w", err)
		}
		base = dir
	}

	return filepath.Join(base, appinfo.DirName), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create data dir %q: %w", dir, err)
	}

	return dir, nil
}

// Paths locates every file eventhub keeps under one data directory.
type Paths struct {
	Dir string
}

// DefaultPaths returns Paths rooted at DataDir.
func DefaultPaths() (Paths, error) {
	dir, err := DataDir()
	if err != nil {
		return Paths{}, err
	}
	return Paths{Dir: dir}, nil
}

// PathsFor returns Paths for the directory holding configFile.
func PathsFor(configFile string) Paths {
	return Paths{Dir: filepath.Dir(configFile)}
}

// Config returns the path to config.yaml.
func (p Paths) Config() string { return filepath.Join(p.Dir, appinfo.ConfigFileName) }

// Secrets returns the path to secrets.json.
func (p Paths) Secrets() string { return filepath.Join(p.Dir, appinfo.SecretsFileName) }

// Lock returns the path to the single-server lock file.
func (p Paths) Lock() string { return filepath.Join(p.Dir, appinfo.LockFileName) }

// Database returns the path to the relational SQLite database.
func (p Paths) Database() string { return filepath.Join(p.Dir, appinfo.DatabaseFileName) }

// Documents returns the path to the embedded document store.
func (p Paths) Documents() string { return filepath.Join(p.Dir, appinfo.DocumentsFileName) }
