package models

import (
	"time"

	"github.com/google/uuid"
)

// Stage identifies one step of the release pipeline.
type Stage string

const (
	StageCheckout     Stage = "checkout"
	StageBuild        Stage = "build"
	StageTest         Stage = "test"
	StagePublish      Stage = "publish"
	StageApply        Stage = "apply"
	StageAwaitRollout Stage = "await-rollout"
	StageRollback     Stage = "rollback"
)

// Sequence is the fixed execution order of the pipeline. Rollback is not part
// of it; it is only entered from a failure transition at or after apply.
var Sequence = []Stage{
	StageCheckout,
	StageBuild,
	StageTest,
	StagePublish,
	StageApply,
	StageAwaitRollout,
}

// StageStatus is the outcome of a single stage.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageFailure StageStatus = "failure"
)

// StageResult records one executed stage. Immutable once appended to a run.
type StageResult struct {
	Stage     Stage
	Status    StageStatus
	Output    string
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration returns the wall-clock time the stage took.
func (r StageResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Outcome is the terminal state of a pipeline run.
type Outcome string

const (
	// OutcomePending is the zero-ish state while the run is still executing.
	OutcomePending Outcome = "pending"
	// OutcomeSucceeded means every stage completed.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means a stage failed with nothing deployed, or rollback
	// itself failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeRolledBack means a deployed change was reverted after a failure.
	OutcomeRolledBack Outcome = "rolled-back"
)

// PipelineRun is the record of one pipeline execution. Stage results are
// append-only in execution order; Outcome is set exactly once, after which
// the run is immutable.
type PipelineRun struct {
	ID               string
	Stages           []StageResult
	Outcome          Outcome
	ManifestRevision string
	StartedAt        time.Time
	EndedAt          time.Time
}

// NewPipelineRun creates a fresh run with its own identity. Re-running a
// pipeline never resumes or mutates a prior run.
func NewPipelineRun() *PipelineRun {
	return &PipelineRun{
		ID:        uuid.NewString(),
		Outcome:   OutcomePending,
		StartedAt: time.Now(),
	}
}

// Result returns the recorded result for the given stage, if any.
func (p *PipelineRun) Result(stage Stage) (StageResult, bool) {
	for _, r := range p.Stages {
		if r.Stage == stage {
			return r, true
		}
	}
	return StageResult{}, false
}

// FirstFailure returns the earliest failed stage result, if any.
func (p *PipelineRun) FirstFailure() (StageResult, bool) {
	for _, r := range p.Stages {
		if r.Status == StageFailure {
			return r, true
		}
	}
	return StageResult{}, false
}

// Duration returns the total run time.
func (p *PipelineRun) Duration() time.Duration {
	return p.EndedAt.Sub(p.StartedAt)
}
