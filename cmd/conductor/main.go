// Package main is the CLI entry point for the Conductor agent core.
//
// Start the HTTP server:
//
//	conductor serve --config conductor.yaml
//
// Chat interactively from the terminal:
//
//	conductor chat --config conductor.yaml
//
// Validate a configuration file:
//
//	conductor validate --config conductor.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := &cobra.Command{
		Use:           "conductor",
		Short:         "Conductor runs plan-driven AI agents over your tools, skills, and memory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfigPath(), "path to the configuration file")

	root.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newValidateCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if path := os.Getenv("CONDUCTOR_CONFIG"); path != "" {
		return path
	}
	return "conductor.yaml"
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("conductor %s (%s)\n", version, commit)
		},
	}
}
