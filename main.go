package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/quenchml/quench/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
