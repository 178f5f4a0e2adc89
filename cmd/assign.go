package cmd

import (
	"github.com/deepghs/anime-sites/internal/synccmd"
	"github.com/spf13/cobra"
)

func newAssignCmd() *cobra.Command {
	return synccmd.NewAssignCmd()
}
