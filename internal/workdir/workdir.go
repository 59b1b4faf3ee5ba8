// Package workdir locates the directory where exported ebooks are saved.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Root returns the base directory for exported ebooks.
// The path is expanded at runtime to resolve to:
//
//	$HOME/Documents/Ebooks
func Root() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, "Documents", "Ebooks"), nil
}

// Resolve returns dir when set, otherwise Root.
func Resolve(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return Root()
}

// Prep ensures that dir exists.
func Prep(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}

	return nil
}
