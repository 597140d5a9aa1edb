package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conductor-ai/conductor/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("%s is valid\n", configPath)
			fmt.Printf("  llm profiles: %d\n", len(cfg.LLM.Profiles))
			fmt.Printf("  mcp servers:  %d\n", len(cfg.MCP.Servers))
			fmt.Printf("  memory:       %v\n", cfg.Memory.Enabled)
			fmt.Printf("  database:     %s\n", cfg.Database.Path)
			return nil
		},
	}
}
