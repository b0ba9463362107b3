package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DownloadProgress is called periodically during a download.
type DownloadProgress func(downloaded, total int64)

// Download fetches a GGUF file into destDir and returns the final
// path. url should be a direct download URL like:
//
//	https://huggingface.co/<repo>/resolve/main/<filename>.gguf
//
// Interrupted downloads leave a .partial file that a later call
// resumes with a Range request. HF_TOKEN, when set, is sent as a
// bearer token for gated repos.
func Download(ctx context.Context, url, destDir string, progress DownloadProgress) (string, error) {
	parts := strings.Split(strings.SplitN(url, "?", 2)[0], "/")
	filename := parts[len(parts)-1]
	if !strings.HasSuffix(strings.ToLower(filename), ".gguf") {
		return "", fmt.Errorf("URL does not point to a .gguf file: %s", filename)
	}

	destPath := filepath.Join(destDir, filename)
	partialPath := destPath + ".partial"

	var startByte int64
	if info, err := os.Stat(partialPath); err == nil {
		startByte = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	if startByte > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
	}

	if token := os.Getenv("HF_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	// A server that ignores the Range header restarts the file.
	if startByte > 0 && resp.StatusCode == http.StatusOK {
		startByte = 0
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	totalSize := resp.ContentLength + startByte

	flags := os.O_CREATE | os.O_WRONLY
	if startByte > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(partialPath, flags, 0644)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	downloaded := startByte

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				return "", fmt.Errorf("write file: %w", writeErr)
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, totalSize)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return "", fmt.Errorf("read body: %w", readErr)
		}
	}

	f.Close()
	if err := os.Rename(partialPath, destPath); err != nil {
		return "", fmt.Errorf("rename file: %w", err)
	}

	return destPath, nil
}
