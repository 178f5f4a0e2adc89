package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "anime-sites",
		Short: "Anime site crawler with LLM-based MyAnimeList identity resolution",
		Long: `Anime-sites crawls fansub release sites, matches every show against
MyAnimeList with a majority vote over repeated LLM judgments, and keeps
the results deployed as HuggingFace dataset repositories.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose logging")

	// Add subcommands
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newAssignCmd())

	return cmd
}
