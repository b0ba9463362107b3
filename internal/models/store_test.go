package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeModel(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("GGUF"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestListFindsGGUFFiles(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "llama-2-13b-chat.Q4_K_M.gguf")
	writeModel(t, dir, "mistral-7b.Q5_K_M.gguf")
	writeModel(t, dir, "notes.txt")

	store := NewStore(dir)
	entries := store.List()
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	// Sorted by name.
	if entries[0].Name != "llama-2-13b-chat.Q4_K_M" {
		t.Errorf("entries[0].Name = %q", entries[0].Name)
	}
	if entries[1].Name != "mistral-7b.Q5_K_M" {
		t.Errorf("entries[1].Name = %q", entries[1].Name)
	}
	if entries[0].Size != 4 {
		t.Errorf("entries[0].Size = %d, want 4", entries[0].Size)
	}
}

func TestListMissingDir(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope"))
	if entries := store.List(); len(entries) != 0 {
		t.Errorf("List() on missing dir returned %d entries", len(entries))
	}
}

func TestResolveExactAndExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeModel(t, dir, "llama-2-13b-chat.Q4_K_M.gguf")

	store := NewStore(dir)

	got, err := store.Resolve("llama-2-13b-chat.Q4_K_M.gguf")
	if err != nil || got != path {
		t.Errorf("Resolve(full name) = %q, %v", got, err)
	}

	got, err = store.Resolve("llama-2-13b-chat.Q4_K_M")
	if err != nil || got != path {
		t.Errorf("Resolve(without ext) = %q, %v", got, err)
	}

	got, err = store.Resolve(path)
	if err != nil || got != path {
		t.Errorf("Resolve(abs path) = %q, %v", got, err)
	}
}

func TestResolvePartialMatch(t *testing.T) {
	dir := t.TempDir()
	path := writeModel(t, dir, "llama-2-13b-chat.Q4_K_M.gguf")
	writeModel(t, dir, "mistral-7b.Q5_K_M.gguf")

	store := NewStore(dir)
	got, err := store.Resolve("13b")
	if err != nil {
		t.Fatalf("Resolve(partial): %v", err)
	}
	if got != path {
		t.Errorf("Resolve(partial) = %q, want %q", got, path)
	}
}

func TestResolveAmbiguousPartial(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "llama-2-7b.Q4_K_M.gguf")
	writeModel(t, dir, "llama-2-13b.Q4_K_M.gguf")

	store := NewStore(dir)
	_, err := store.Resolve("llama-2")
	if !errors.Is(err, ErrAmbiguousModel) {
		t.Errorf("Resolve(ambiguous) err = %v, want ErrAmbiguousModel", err)
	}
}

func TestResolveNotFound(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Resolve("missing")
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Resolve(missing) err = %v, want ErrModelNotFound", err)
	}
}
