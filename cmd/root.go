// Package cmd implements the command-line interface for quarry.
// It provides the root command and subcommands for managing crawl sessions.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/cmd/common"
	"github.com/quarryhq/quarry/cmd/crawl"
	"github.com/quarryhq/quarry/cmd/sessions"
)

// rootCmd represents the root command for the quarry CLI.
var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "A polite, resumable web crawler",
	Long: `Quarry crawls websites through a persistent URL frontier: per-domain
politeness, robots.txt compliance, retry with backoff, and content-hash
deduplication, all backed by PostgreSQL so interrupted sessions can resume.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&common.CfgFile,
		"config",
		"",
		"config file (default is env vars plus built-in defaults)",
	)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("quarry version %s\n", "1.0.0")
		},
	})

	rootCmd.AddCommand(crawl.Command())
	rootCmd.AddCommand(sessions.Command())
}
