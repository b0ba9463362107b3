package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quenchml/quench/internal/config"
	"github.com/quenchml/quench/internal/models"
)

var pullCmd = &cobra.Command{
	Use:   "pull <ref>",
	Short: "Download a GGUF model",
	Long: `Download a GGUF model from a direct URL or a Hugging Face repo.

For a repo reference the file listing is fetched and filtered by
quantization; the match must be unique.

Examples:
  quench pull https://huggingface.co/TheBloke/Llama-2-13B-chat-GGUF/resolve/main/llama-2-13b-chat.Q4_K_M.gguf
  quench pull TheBloke/Llama-2-13B-chat-GGUF
  quench pull TheBloke/Llama-2-13B-chat-GGUF --quant Q5_K_M

Set HF_TOKEN environment variable for gated repos.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := args[0]
		quant, _ := cmd.Flags().GetString("quant")
		dir, _ := cmd.Flags().GetString("models-dir")
		if dir == "" {
			dir = config.ModelsDir()
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		url := ref
		if !strings.Contains(ref, "://") {
			resolved, err := resolveRepoFile(ctx, ref, quant)
			if err != nil {
				return err
			}
			url = resolved
		}

		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create models dir: %w", err)
		}

		fmt.Printf("Downloading to %s...\n", dir)

		tty := term.IsTerminal(int(os.Stdout.Fd()))
		var progress models.DownloadProgress
		if tty {
			progress = func(downloaded, total int64) {
				if total > 0 {
					printProgress(int(downloaded*100/total), downloaded, total)
				} else {
					fmt.Printf("\r  %s downloaded", formatBytes(downloaded))
				}
			}
		}

		path, err := models.Download(ctx, url, dir, progress)
		if err != nil {
			return err
		}

		if tty {
			fmt.Println()
		}
		fmt.Printf("Saved to %s\n", path)
		return nil
	},
}

// resolveRepoFile picks one GGUF file from a Hugging Face repo listing.
func resolveRepoFile(ctx context.Context, repo, quant string) (string, error) {
	files, err := models.Browse(ctx, repo)
	if err != nil {
		return "", err
	}

	matches := models.FilterQuant(files, quant)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no %s file in %s, available: %s", quant, repo, joinNames(files))
	case 1:
		fmt.Printf("Found %s\n", matches[0].Name)
		return matches[0].URL, nil
	default:
		return "", fmt.Errorf("%q matches several files in %s: %s (narrow with --quant)", quant, repo, joinNames(matches))
	}
}

func joinNames(files []models.RemoteFile) string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return strings.Join(names, ", ")
}

func printProgress(percent int, downloaded, total int64) {
	const barWidth = 30
	filled := barWidth * percent / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Printf("\r[%s] %3d%%  %s / %s", bar, percent, formatBytes(downloaded), formatBytes(total))
}

func formatBytes(b int64) string {
	const (
		MB = 1024 * 1024
		GB = 1024 * MB
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func init() {
	pullCmd.Flags().String("quant", "Q4_K_M", "quantization to pick from a repo listing")
	pullCmd.Flags().String("models-dir", "", "download directory (default models dir)")
	rootCmd.AddCommand(pullCmd)
}
