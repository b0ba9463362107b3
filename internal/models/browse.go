package models

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// hfBaseURL is swapped out in tests.
var hfBaseURL = "https://huggingface.co"

// RemoteFile is a downloadable GGUF file found in a remote repo listing.
type RemoteFile struct {
	Name string // filename, e.g. llama-2-13b-chat.Q4_K_M.gguf
	URL  string // direct download URL
}

// Browse fetches the file listing page of a Hugging Face repo
// ("owner/name") and returns the GGUF files it links to.
func Browse(ctx context.Context, repo string) ([]RemoteFile, error) {
	if strings.Count(repo, "/") != 1 || strings.Contains(repo, "://") {
		return nil, fmt.Errorf("invalid repo %q, expected owner/name", repo)
	}

	pageURL := fmt.Sprintf("%s/%s/tree/main", hfBaseURL, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "quench/1.0")
	if token := os.Getenv("HF_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch repo listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("repo listing returned HTTP %d for %s", resp.StatusCode, repo)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse repo listing: %w", err)
	}

	// File rows link to /<repo>/blob/main/<file> and carry a download
	// anchor at /<repo>/resolve/main/<file>?download=true.
	seen := make(map[string]RemoteFile)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.SplitN(href, "?", 2)[0]
		if !strings.HasSuffix(strings.ToLower(href), ".gguf") {
			return
		}
		if !strings.Contains(href, "/resolve/main/") && !strings.Contains(href, "/blob/main/") {
			return
		}
		href = strings.Replace(href, "/blob/main/", "/resolve/main/", 1)
		if !strings.HasPrefix(href, "http") {
			href = hfBaseURL + href
		}
		name := path.Base(href)
		seen[name] = RemoteFile{Name: name, URL: href}
	})

	if len(seen) == 0 {
		return nil, fmt.Errorf("no .gguf files found in %s", repo)
	}

	files := make([]RemoteFile, 0, len(seen))
	for _, f := range seen {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// FilterQuant narrows a file listing to names containing the given
// quantization tag (case-insensitive). An empty tag keeps everything.
func FilterQuant(files []RemoteFile, quant string) []RemoteFile {
	if quant == "" {
		return files
	}
	var out []RemoteFile
	for _, f := range files {
		if strings.Contains(strings.ToLower(f.Name), strings.ToLower(quant)) {
			out = append(out, f)
		}
	}
	return out
}
