// Package pipeline runs a fixed sequence of stages against the job ledger.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"automation-hub/backend/internal/logging"
)

// Ledger is the slice of the job store a pipeline run needs. Satisfied by
// repository.JobStore.
type Ledger interface {
	Progress(ctx context.Context, id, status string, partial map[string]any) error
	Fail(ctx context.Context, id, errMsg string) error
}

// Job is the unit of work one pipeline run operates on. WorkDir is a
// per-run temporary directory, created by Run and removed when Run returns,
// on both success and failure paths.
type Job struct {
	ID         string
	SystemSlug string
	ClientID   string
	Payload    json.RawMessage
	WorkDir    string
}

// Stage is one step of a pipeline. Status is the progress label committed to
// the ledger after the stage succeeds; the returned partial result is merged
// into the job's accumulated result. The final stage of a pipeline carries
// the terminal success status.
type Stage struct {
	Status string
	Run    func(ctx context.Context, job *Job) (map[string]any, error)
}

// Pipeline produces the ordered stages for one job run. Implementations
// typically close the stage functions over per-run state so later stages can
// see earlier stages' artifacts.
type Pipeline interface {
	Slug() string
	Stages(job *Job) ([]Stage, error)
}

// Run executes the pipeline's stages strictly in order. Each stage's
// progress update commits before the next stage starts. The first error at
// any stage marks the job failed with the stringified cause and halts the
// run: no retry, no rollback of artifacts already uploaded to durable
// storage.
func Run(ctx context.Context, ledger Ledger, p Pipeline, job *Job, logger *logging.Logger) error {
	workDir, err := os.MkdirTemp("", "job-"+job.ID+"-")
	if err != nil {
		return fail(ctx, ledger, job.ID, fmt.Errorf("create work dir: %w", err), logger)
	}
	job.WorkDir = workDir
	defer os.RemoveAll(workDir)

	stages, err := p.Stages(job)
	if err != nil {
		return fail(ctx, ledger, job.ID, fmt.Errorf("build stages: %w", err), logger)
	}

	for _, stage := range stages {
		partial, err := stage.Run(ctx, job)
		if err != nil {
			return fail(ctx, ledger, job.ID, fmt.Errorf("%s: %w", stage.Status, err), logger)
		}
		if err := ledger.Progress(ctx, job.ID, stage.Status, partial); err != nil {
			return fail(ctx, ledger, job.ID, fmt.Errorf("commit %s: %w", stage.Status, err), logger)
		}
	}
	return nil
}

// fail records the terminal failure. The ledger write uses a context
// detached from cancellation so a canceled run still lands on the ledger.
func fail(ctx context.Context, ledger Ledger, jobID string, cause error, logger *logging.Logger) error {
	if logger != nil {
		logger.Error("job %s failed: %v", jobID, cause)
	}
	if err := ledger.Fail(context.WithoutCancel(ctx), jobID, cause.Error()); err != nil && logger != nil {
		logger.Error("job %s: recording failure: %v", jobID, err)
	}
	return cause
}
