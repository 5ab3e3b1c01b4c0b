package cli

import (
	"github.com/spf13/cobra"

	"github.com/bizradar/bizradar/cli/backfill"
	"github.com/bizradar/bizradar/cli/worker"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bizradar",
		Short: "BizRadar embeddings and AI orchestration CLI",
	}

	root.AddCommand(
		backfill.Cmd(),
		worker.Cmd(),
	)

	return root
}
