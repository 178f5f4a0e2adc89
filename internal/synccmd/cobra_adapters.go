package synccmd

import (
	"github.com/spf13/cobra"
)

// addCommonFlags registers the flags shared by every pipeline command.
func addCommonFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVar(&opts.Repository, "repository", "", "Target dataset repository, e.g. deepghs/subsplease_animes (required)")
	cmd.Flags().BoolVar(&opts.Resync, "resync", false, "Retry items whose previous run ended unmatched")
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "LLM provider (openai or gemini, overrides config)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "Model name (overrides config)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "Worker count (overrides config)")
	cmd.Flags().DurationVar(&opts.DeploySpan, "deploy-span", 0, "Minimum interval between non-forced deploys (overrides config)")
	cmd.Flags().DurationVar(&opts.UploadSpan, "upload-span", 0, "Minimum interval between pushes to the storage backend (overrides config)")

	_ = cmd.MarkFlagRequired("repository")
}

func NewSubspleaseCmd() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "subsplease",
		Short: "Sync the subsplease shows listing into the dataset repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteSubsplease(cmd.Context(), opts)
		},
	}

	addCommonFlags(cmd, &opts)
	return cmd
}

func NewErairawsCmd() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "erairaws",
		Short: "Sync the erai-raws anime list into the dataset repository",
		Long: `Sync the erai-raws anime list into the dataset repository.

Requires ERAI_RAWS_COOKIE with a logged-in session cookie; feed reads go
through a separate anonymous session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteErairaws(cmd.Context(), opts)
		},
	}

	addCommonFlags(cmd, &opts)
	return cmd
}

func NewFancapsCmd() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "fancaps",
		Short: "Sync the fancaps bangumi index into the dataset repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteFancaps(cmd.Context(), opts)
		},
	}

	addCommonFlags(cmd, &opts)
	return cmd
}

func NewAssignCmd() *cobra.Command {
	var opts AssignOptions

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Pin one item to an operator-chosen MyAnimeList ID",
		Long: `Pin one item to an operator-chosen MyAnimeList ID.

The item is re-fetched, the catalog record is pulled directly, and the
result is written and deployed immediately without running the vote.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteAssign(cmd.Context(), opts)
		},
	}

	addCommonFlags(cmd, &opts.Options)
	cmd.Flags().StringVar(&opts.Site, "site", "", "Source site (subsplease, erairaws or fancaps)")
	cmd.Flags().StringVar(&opts.PageURL, "page-url", "", "Item page URL (or index ID for fancaps)")
	cmd.Flags().Int64Var(&opts.MalID, "mal-id", 0, "MyAnimeList anime ID to assign")

	_ = cmd.MarkFlagRequired("site")
	_ = cmd.MarkFlagRequired("page-url")
	_ = cmd.MarkFlagRequired("mal-id")
	return cmd
}
