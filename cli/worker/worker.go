package worker

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bizradar/bizradar/cli/helpers"
	"github.com/bizradar/bizradar/engine/embedding"
)

// Cmd returns the command that runs the embedding worker until interrupted.
func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the embedding computation worker",
		Long:  "Consume embedding jobs from the queue until interrupted",
		RunE:  runWorker,
	}
	cmd.Flags().Int("concurrency", 0, "Worker pool size (defaults to configuration)")
	return cmd
}

func runWorker(cmd *cobra.Command, _ []string) error {
	deps, cleanup, err := helpers.Setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return err
	}
	if concurrency <= 0 {
		concurrency = deps.Config.Worker.Concurrency
	}

	ctx, stop := signal.NotifyContext(deps.Context(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := embedding.NewWorker(deps.Queue, deps.EmbeddingRepo, deps.JobsRepo, deps.Registry, embedding.WorkerConfig{
		Concurrency:    concurrency,
		MaxRetries:     deps.Config.Worker.MaxRetries,
		BackoffBase:    deps.Config.Worker.BackoffBase,
		DequeueTimeout: deps.Config.Worker.DequeueTimeout,
	})
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
