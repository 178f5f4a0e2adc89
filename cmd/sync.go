package cmd

import (
	"github.com/deepghs/anime-sites/internal/synccmd"
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Crawl a source site and sync it into a dataset repository",
		Long: `Crawl one source site end to end: list its shows, match each one
against MyAnimeList, and deploy the resulting table, report and cover
images to the target dataset repository.`,
	}

	// Add sync subcommands
	cmd.AddCommand(synccmd.NewSubspleaseCmd())
	cmd.AddCommand(synccmd.NewErairawsCmd())
	cmd.AddCommand(synccmd.NewFancapsCmd())

	return cmd
}
