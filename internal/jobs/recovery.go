package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/synthgen-io/synthgen/internal/store"
	"github.com/synthgen-io/synthgen/pkg/models"
)

// Recover reconciles entities left non-terminal by a previous process. A
// restart kills every in-flight goroutine, so stale poller leases are
// cleared first; tasks with a recorded engine handle get a fresh poller,
// everything else lost its in-memory continuation and is failed outright.
//
// Called once at startup, before the server accepts requests.
func Recover(ctx context.Context, st store.Store, jobSvc *JobService, genSvc *GenerationService) error {
	if err := st.ClearPollerLeases(ctx); err != nil {
		return fmt.Errorf("clearing poller leases: %w", err)
	}

	unfinished, err := st.ListUnfinishedJobs(ctx)
	if err != nil {
		return fmt.Errorf("listing unfinished jobs: %w", err)
	}
	for _, j := range unfinished {
		if j.Status == models.JobStatusTraining && j.TaskID != nil {
			slog.Info("resuming training poller", "job_id", j.JobID, "task_id", *j.TaskID)
			jobSvc.ResumeTraining(j.JobID, *j.TaskID)
			continue
		}
		slog.Warn("failing job interrupted by restart", "job_id", j.JobID, "status", j.Status)
		_ = jobSvc.markJobFailed(ctx, j.JobID, "interrupted by restart")
	}

	gens, err := st.ListUnfinishedGenerationJobs(ctx)
	if err != nil {
		return fmt.Errorf("listing unfinished generation jobs: %w", err)
	}
	for _, g := range gens {
		if g.Status == models.GenerationStatusProcessing && g.TaskID != nil {
			slog.Info("resuming generation poller",
				"generation_job_id", g.GenerationJobID, "task_id", *g.TaskID)
			genSvc.ResumeGeneration(g.GenerationJobID, *g.TaskID)
			continue
		}
		slog.Warn("failing generation job interrupted by restart",
			"generation_job_id", g.GenerationJobID, "status", g.Status)
		_ = genSvc.markGenerationFailed(ctx, g.GenerationJobID, "interrupted by restart")
	}

	return nil
}
