// ABOUTME: Standard filesystem paths for medassist configuration
// ABOUTME: Resolves ~/.medassist/ for global and .medassist/ for project-local paths

package config

import (
	"os"
	"path/filepath"
)

const (
	dirName        = ".medassist"
	configFileName = "config.yaml"
)

// GlobalDir returns the user-global config directory (~/.medassist/).
func GlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", dirName)
	}
	return filepath.Join(home, dirName)
}

// GlobalConfigFile returns the path to the global config file.
func GlobalConfigFile() string {
	return filepath.Join(GlobalDir(), configFileName)
}

// ProjectConfigFile returns the project-local config file under root.
func ProjectConfigFile(root string) string {
	return filepath.Join(root, dirName, configFileName)
}

// ResolveConfigPath searches from start (cwd when empty) up to the nearest
// directory holding .git for .medassist/config.yaml, then falls back to the
// global file. It returns "" when neither exists.
func ResolveConfigPath(start string) string {
	if start == "" {
		wd, err := os.Getwd()
		if err == nil {
			start = wd
		}
	}
	if start != "" {
		dir, err := filepath.Abs(start)
		if err == nil {
			for {
				if p := ProjectConfigFile(dir); fileExists(p) {
					return p
				}
				if fileExists(filepath.Join(dir, ".git")) {
					break
				}
				parent := filepath.Dir(dir)
				if parent == dir {
					break
				}
				dir = parent
			}
		}
	}
	if p := GlobalConfigFile(); fileExists(p) {
		return p
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
