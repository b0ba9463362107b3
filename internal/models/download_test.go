package models

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDownloadWritesFile(t *testing.T) {
	content := "GGUF model bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, content)
	}))
	defer srv.Close()

	dir := t.TempDir()
	var lastDownloaded, lastTotal int64
	path, err := Download(context.Background(), srv.URL+"/repo/resolve/main/tiny.Q4_K_M.gguf", dir, func(d, total int64) {
		lastDownloaded, lastTotal = d, total
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Base(path) != "tiny.Q4_K_M.gguf" {
		t.Errorf("path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Errorf("file content = %q, want %q", data, content)
	}
	if lastDownloaded != int64(len(content)) || lastTotal != int64(len(content)) {
		t.Errorf("progress = %d/%d, want %d/%d", lastDownloaded, lastTotal, len(content), len(content))
	}
	if _, err := os.Stat(path + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestDownloadResumesPartial(t *testing.T) {
	full := "0123456789abcdef"
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		if strings.HasPrefix(gotRange, "bytes=") {
			var start int
			fmt.Sscanf(gotRange, "bytes=%d-", &start)
			w.WriteHeader(http.StatusPartialContent)
			fmt.Fprint(w, full[start:])
			return
		}
		fmt.Fprint(w, full)
	}))
	defer srv.Close()

	dir := t.TempDir()
	partial := filepath.Join(dir, "tiny.Q4_K_M.gguf.partial")
	if err := os.WriteFile(partial, []byte(full[:6]), 0644); err != nil {
		t.Fatal(err)
	}

	path, err := Download(context.Background(), srv.URL+"/repo/resolve/main/tiny.Q4_K_M.gguf", dir, nil)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if gotRange != "bytes=6-" {
		t.Errorf("Range header = %q, want bytes=6-", gotRange)
	}

	data, _ := os.ReadFile(path)
	if string(data) != full {
		t.Errorf("resumed content = %q, want %q", data, full)
	}
}

func TestDownloadRejectsNonGGUF(t *testing.T) {
	_, err := Download(context.Background(), "https://example.com/readme.md", t.TempDir(), nil)
	if err == nil {
		t.Error("Download accepted a non-gguf URL")
	}
}

func TestDownloadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Download(context.Background(), srv.URL+"/gated.gguf", t.TempDir(), nil)
	if err == nil {
		t.Error("Download succeeded against a 403 response")
	}
}

func TestDownloadStripsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data")
	}))
	defer srv.Close()

	path, err := Download(context.Background(), srv.URL+"/m/resolve/main/tiny.gguf?download=true", t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Base(path) != "tiny.gguf" {
		t.Errorf("path = %q, want tiny.gguf", filepath.Base(path))
	}
}
