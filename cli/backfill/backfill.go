package backfill

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/bizradar/bizradar/cli/helpers"
	"github.com/bizradar/bizradar/engine/embedding"
)

// Cmd returns the backfill command group.
func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Manage embedding backfill jobs",
		Long:  "Start, inspect, and resume bulk embedding computation jobs",
	}

	cmd.AddCommand(
		StartCmd(),
		StatusCmd(),
		ResumeCmd(),
	)

	return cmd
}

// StartCmd returns the command that launches a new backfill run.
func StartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <provider> <model> [jobName] [batchSize]",
		Short: "Start a new backfill job",
		Args:  cobra.RangeArgs(2, 4),
		RunE:  runStart,
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	provider, model := args[0], args[1]
	jobName := fmt.Sprintf("backfill-%s-%s-%d", provider, model, time.Now().UnixMilli())
	if len(args) > 2 {
		jobName = args[2]
	}
	batchSize := 0
	if len(args) > 3 {
		parsed, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("invalid batch size %q: %w", args[3], err)
		}
		batchSize = parsed
	}

	deps, cleanup, err := helpers.Setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	ctx := deps.Context(cmd.Context())

	cmd.Printf("Starting backfill job for %s/%s...\n", provider, model)
	svc := embedding.NewBackfillService(deps.Store, deps.JobsRepo, deps.Queue)
	jobID, err := svc.StartBackfill(ctx, jobName, embedding.BackfillOptions{
		Provider:  provider,
		Model:     model,
		BatchSize: batchSize,
	})
	if err != nil {
		return err
	}
	cmd.Printf("Backfill job started: %s\n", jobID)
	cmd.Printf("Use \"bizradar backfill status %s %s %s\" to check progress\n", provider, model, jobID)
	return nil
}

// StatusCmd returns the command that reports one job's progress.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <provider> <model> <jobId>",
		Short: "Check the status of a backfill job",
		Args:  cobra.ExactArgs(3),
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	jobID := args[2]
	deps, cleanup, err := helpers.Setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	ctx := deps.Context(cmd.Context())

	svc := embedding.NewBackfillService(deps.Store, deps.JobsRepo, deps.Queue)
	progress, err := svc.GetJobProgress(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job %s not found: %w", jobID, err)
	}

	cmd.Printf("\nJob progress for %s:\n", jobID)
	cmd.Printf("Status: %s\n", progress.Status)
	cmd.Printf("Total: %d\n", progress.Total)
	cmd.Printf("Processed: %d\n", progress.Processed)
	cmd.Printf("Failed: %d\n", progress.Failed)
	cmd.Printf("Skipped: %d\n", progress.Skipped)
	cmd.Printf("Started: %s\n", progress.StartedAt.Format(time.RFC3339))
	cmd.Printf("Updated: %s\n", progress.UpdatedAt.Format(time.RFC3339))
	if progress.Total > 0 {
		percent := (progress.Processed + progress.Failed + progress.Skipped) * 100 / progress.Total
		cmd.Printf("\nProgress: %d%%\n", percent)
	}
	return nil
}

// ResumeCmd returns the command that reports resumable jobs.
func ResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <provider> <model>",
		Short: "Resume incomplete backfill jobs",
		Args:  cobra.ExactArgs(2),
		RunE:  runResume,
	}
}

func runResume(cmd *cobra.Command, args []string) error {
	provider, model := args[0], args[1]
	deps, cleanup, err := helpers.Setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	ctx := deps.Context(cmd.Context())

	cmd.Printf("Resuming incomplete jobs for %s/%s...\n", provider, model)
	svc := embedding.NewBackfillService(deps.Store, deps.JobsRepo, deps.Queue)
	jobIDs, err := svc.ResumeIncompleteJobs(ctx, provider, model)
	if err != nil {
		return err
	}
	if len(jobIDs) == 0 {
		cmd.Println("No incomplete jobs found")
		return nil
	}
	cmd.Printf("Resumed %d incomplete job(s):\n", len(jobIDs))
	for _, id := range jobIDs {
		cmd.Printf("  - %s\n", id)
	}
	return nil
}
