// Package paths resolves the engine's per-user file locations, falling back
// to the system temp directory when the platform cannot name a home or
// cache directory.
package paths

import (
	"os"
	"path/filepath"
)

const appDir = "local-rag-engine"

// ConfigFile returns the default engine config location
// ({user config dir}/local-rag-engine/engine.yaml).
func ConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "engine.yaml"
	}
	return filepath.Join(dir, appDir, "engine.yaml")
}

// LogFile returns the default log location
// ({user cache dir}/local-rag-engine/engine.log).
func LogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, appDir, "engine.log")
}

// DataDir returns the default root for persisted engine state: the agent
// definitions, the vector store, and the memory databases.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "."+appDir)
	}
	return filepath.Join(home, "."+appDir)
}
