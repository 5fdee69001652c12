package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for debscraper.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debscraper",
		Short: "Build debug symbol bundles from Debian package pools",
		Long: `debscraper crawls Debian-style package pool listings, downloads the .deb
and .ddeb archives it finds, extracts them and passes the extracted trees
to symsorter, one bundle per package.

Processed archives are remembered in a marker cache under the output
directory, so repeated runs only fetch what is new.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewScrapeCmd())
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
