package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List all configured sites",
	Long:  "Reads the config and prints a table of all configured sites.",
	RunE:  runSites,
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}

func runSites(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-25s %-12s %-9s %-6s %s\n", "Site", "Kind", "Status", "Pages", "Delay")
	fmt.Fprintln(out, strings.Repeat("─", 64))

	enabled, disabled := 0, 0
	for _, s := range cfg.Sites {
		status := "enabled"
		if !s.Enabled {
			status = "disabled"
			disabled++
		} else {
			enabled++
		}
		fmt.Fprintf(out, "%-25s %-12s %-9s %-6d %s–%s\n", s.Name, s.Kind, status, s.MaxPages, s.MinDelay, s.MaxDelay)
	}

	fmt.Fprintf(out, "\nTotal: %d sites (%d enabled, %d disabled)\n", len(cfg.Sites), enabled, disabled)
	return nil
}
