package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the persistent quench settings. Values here are
// defaults; command-line flags override them per invocation.
type Config struct {
	DefaultModel   string `yaml:"default_model"`
	CtxSize        int    `yaml:"ctx_size"`
	GPULayers      int    `yaml:"gpu_layers"`
	Threads        int    `yaml:"threads"`
	FlashAttention bool   `yaml:"flash_attention"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	LogLevel       string `yaml:"log_level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultModel: "llama-2-13b-chat.Q4_K_M",
		CtxSize:      4096,
		GPULayers:    99,
		Host:         "127.0.0.1",
		Port:         8080,
		LogLevel:     "info",
	}
}

// Path returns the config file location inside the data dir.
func Path() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// Load reads the config file at path and merges it over the defaults.
// A missing file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
