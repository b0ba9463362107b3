package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultModel != "llama-2-13b-chat.Q4_K_M" {
		t.Errorf("DefaultModel = %q, want default", cfg.DefaultModel)
	}
	if cfg.CtxSize != 4096 {
		t.Errorf("CtxSize = %d, want 4096", cfg.CtxSize)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "default_model: mistral-7b.Q5_K_M\nctx_size: 8192\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultModel != "mistral-7b.Q5_K_M" {
		t.Errorf("DefaultModel = %q, want mistral-7b.Q5_K_M", cfg.DefaultModel)
	}
	if cfg.CtxSize != 8192 {
		t.Errorf("CtxSize = %d, want 8192", cfg.CtxSize)
	}
	// Untouched keys keep their defaults.
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("ctx_size: [not an int"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted malformed yaml")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.DefaultModel = "qwen2-7b-instruct.Q4_K_M"
	cfg.GPULayers = 32
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.DefaultModel != cfg.DefaultModel {
		t.Errorf("DefaultModel = %q, want %q", got.DefaultModel, cfg.DefaultModel)
	}
	if got.GPULayers != 32 {
		t.Errorf("GPULayers = %d, want 32", got.GPULayers)
	}
}
