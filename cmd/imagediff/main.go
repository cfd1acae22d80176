// Package main is the entry point for the imagediff command.
package main

import (
	"embed"
	"fmt"
	"os"

	"github.com/CageChen/imagediff/internal/cli"
)

//go:embed web/*
var webFS embed.FS

var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetWebAssets(webFS)

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if cli.IsUsageError(err) {
			fmt.Fprintln(os.Stderr, "Run 'imagediff --help' for usage.")
		}
		os.Exit(cli.ExitCode(err))
	}
}
