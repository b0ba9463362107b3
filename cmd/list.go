package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quenchml/quench/internal/config"
	"github.com/quenchml/quench/internal/models"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local models",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := models.NewStore(config.ModelsDir())
		entries := store.List()

		if len(entries) == 0 {
			fmt.Println("No models available. Download one with 'quench pull'.")
			return nil
		}

		fmt.Println(color.CyanString("%-45s %10s  %s", "NAME", "SIZE", "MODIFIED"))
		fmt.Println(strings.Repeat("─", 75))
		for _, e := range entries {
			modified := time.Unix(e.ModifiedAt, 0).Format("2006-01-02 15:04")
			fmt.Printf("%-45s %10s  %s\n", e.Name, formatBytes(e.Size), modified)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
