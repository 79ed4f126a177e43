package config

import (
	"os"
	"path/filepath"
)

// FindProjectRoot looks for the .strata directory starting from the current
// working directory and moving up the directory tree.
func FindProjectRoot() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := currentDir
	for {
		strataPath := filepath.Join(dir, ".strata")
		if _, err := os.Stat(strataPath); err == nil {
			return dir, nil
		}

		parentDir := filepath.Dir(dir)
		if parentDir == dir {
			break
		}
		dir = parentDir
	}

	// No .strata directory found anywhere above; use the working directory.
	return currentDir, nil
}

// GetStrataDir returns the path to the .strata directory for a project root.
func GetStrataDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".strata")
}

// EnsureStrataDirs creates the .strata subdirectories.
func EnsureStrataDirs(strataDir string) error {
	subdirs := []string{
		filepath.Join(strataDir, "logs"),
		filepath.Join(strataDir, "store"),
	}

	for _, subdir := range subdirs {
		if err := os.MkdirAll(subdir, 0755); err != nil {
			return err
		}
	}

	return nil
}
