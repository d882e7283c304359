// Package node wires the RLPx (devp2p) and Secure Scuttlebutt services into
// a single process, using ServiceRegistry for startup ordering and
// HealthChecker/EventBus for observability.
package node

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/eth2030/netp2p/config"
)

// defaultDataDir returns the platform-specific default data directory.
// Falls back to ".netp2p" in the current directory if the home directory
// cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".netp2p"
	}
	return filepath.Join(home, ".netp2p")
}

// dataDirSubdirs lists subdirectories created inside the data directory.
var dataDirSubdirs = []string{
	"kvstore",
	"nodes",
}

// InitDataDir creates the data directory and its standard subdirectories
// if they do not already exist.
func InitDataDir(cfg *config.Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("node: datadir must not be empty")
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("node: create datadir: %w", err)
	}
	for _, sub := range dataDirSubdirs {
		dir := filepath.Join(cfg.DataDir, sub)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("node: create %s: %w", sub, err)
		}
	}
	return nil
}

// ResolvePath resolves a path relative to the data directory.
func ResolvePath(cfg *config.Config, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cfg.DataDir, path)
}
