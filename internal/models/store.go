package models

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store manages locally available GGUF model files.
type Store struct {
	dir string
}

// NewStore creates a new Store for the given directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory the store scans.
func (s *Store) Dir() string {
	return s.dir
}

// List returns all available models by scanning the models directory
// for .gguf files, sorted by name.
func (s *Store) List() []ModelEntry {
	var entries []ModelEntry

	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || !strings.HasSuffix(strings.ToLower(info.Name()), ".gguf") {
			return nil
		}
		name := strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))
		entries = append(entries, ModelEntry{
			Name:       name,
			Path:       path,
			Size:       info.Size(),
			ModifiedAt: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		// Directory may not exist yet, that's OK
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Resolve finds a model by name and returns its full path. It tries,
// in order: an absolute path, the exact filename in the models dir,
// the filename with .gguf appended, a case-insensitive name match,
// and finally a unique partial name match.
func (s *Store) Resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}

	candidate := filepath.Join(s.dir, name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	candidate = candidate + ".gguf"
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	entries := s.List()
	for _, e := range entries {
		if strings.EqualFold(e.Name, name) {
			return e.Path, nil
		}
	}

	var partial []ModelEntry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Name), strings.ToLower(name)) {
			partial = append(partial, e)
		}
	}
	switch len(partial) {
	case 0:
		return "", fmt.Errorf("%w: %q in %s", ErrModelNotFound, name, s.dir)
	case 1:
		return partial[0].Path, nil
	default:
		names := make([]string, len(partial))
		for i, e := range partial {
			names[i] = e.Name
		}
		return "", fmt.Errorf("%w: %q matches %s", ErrAmbiguousModel, name, strings.Join(names, ", "))
	}
}
