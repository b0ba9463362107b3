package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the default data directory for quench.
// Windows: %LOCALAPPDATA%\quench
// Linux/Mac: ~/.local/share/quench
func DataDir() string {
	if dir := os.Getenv("QUENCH_DATA_DIR"); dir != "" {
		return dir
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "quench")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "quench")
}

// ModelsDir returns the directory where models are stored.
func ModelsDir() string {
	if dir := os.Getenv("QUENCH_MODELS_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(DataDir(), "models")
}

// BinDir returns the directory where llama-server binaries are stored.
func BinDir() string {
	if dir := os.Getenv("QUENCH_BIN_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(DataDir(), "bin")
}

// MemoryDir returns the directory where memory/RAG data is stored.
func MemoryDir() string {
	return filepath.Join(DataDir(), "memory")
}

// EnsureDirs creates the required directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{DataDir(), ModelsDir(), BinDir()}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
