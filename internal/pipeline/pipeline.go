// Package pipeline implements the release rollout controller: a fixed
// sequence of stages (checkout, build, test, publish, apply, await-rollout)
// executed strictly in order, with an automatic rollback transition for
// failures that occur after desired state has been applied to the cluster.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/codewandler/relay/internal/models"
)

const (
	// DefaultRolloutTimeout bounds the await-rollout poll loop.
	DefaultRolloutTimeout = 5 * time.Minute
	// DefaultPollInterval is the delay between rollout status polls.
	DefaultPollInterval = 3 * time.Second
)

// Config wires a Runner to its backends and policy knobs.
type Config struct {
	Manifest  models.DeploymentManifest
	SourceRef string

	RolloutTimeout time.Duration
	PollInterval   time.Duration

	Source    Source
	Builder   Builder
	Tester    Tester
	Publisher Publisher
	Cluster   Cluster

	// Observer receives stage progress for rendering. Optional.
	Observer Observer
	// Logger receives structured debug logging. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Runner drives a single pipeline configuration. Each call to Run produces an
// independent PipelineRun; the runner holds no mutable state between runs.
type Runner struct {
	cfg Config
	log zerolog.Logger
}

// New validates the configuration and returns a Runner.
func New(cfg Config) (*Runner, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("source backend is required")
	case cfg.Builder == nil:
		return nil, errors.New("build backend is required")
	case cfg.Tester == nil:
		return nil, errors.New("test backend is required")
	case cfg.Publisher == nil:
		return nil, errors.New("publish backend is required")
	case cfg.Cluster == nil:
		return nil, errors.New("cluster backend is required")
	}

	if cfg.RolloutTimeout <= 0 {
		cfg.RolloutTimeout = DefaultRolloutTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	return &Runner{cfg: cfg, log: log}, nil
}

// Run executes the pipeline once. The returned PipelineRun is always non-nil
// and carries the complete ordered stage audit trail; err is nil iff the run
// succeeded. On a post-apply failure err is the triggering stage error, or a
// RollbackFailedError when the undo call failed as well.
func (r *Runner) Run(ctx context.Context) (*models.PipelineRun, error) {
	run := models.NewPipelineRun()
	r.log.Info().Str("run_id", run.ID).Str("source_ref", r.cfg.SourceRef).Msg("pipeline run started")

	var (
		src      CheckoutResult
		imageRef string
	)

	steps := []struct {
		stage models.Stage
		fn    func(context.Context) (string, error)
	}{
		{models.StageCheckout, func(ctx context.Context) (string, error) {
			res, err := r.cfg.Source.Checkout(ctx, r.cfg.SourceRef)
			if err != nil {
				return res.Output, err
			}
			src = res
			return res.Output, nil
		}},
		{models.StageBuild, func(ctx context.Context) (string, error) {
			res, err := r.cfg.Builder.Build(ctx, src)
			if err != nil {
				return res.Output, err
			}
			imageRef = res.ImageRef
			return res.Output, nil
		}},
		{models.StageTest, func(ctx context.Context) (string, error) {
			report, err := r.cfg.Tester.Test(ctx, imageRef)
			if err != nil {
				return report.Output, err
			}
			out := fmt.Sprintf("%d passed, %d failed\n%s", report.Passed, report.Failed, report.Output)
			if !report.OK() {
				return out, fmt.Errorf("%d of %d tests failed", report.Failed, report.Passed+report.Failed)
			}
			return out, nil
		}},
		{models.StagePublish, func(ctx context.Context) (string, error) {
			return r.cfg.Publisher.Push(ctx, imageRef)
		}},
		{models.StageApply, func(ctx context.Context) (string, error) {
			rev, err := r.cfg.Cluster.Apply(ctx, r.cfg.Manifest)
			if err != nil {
				return "", err
			}
			run.ManifestRevision = rev
			return fmt.Sprintf("applied %s at revision %s", r.cfg.Manifest.Name, rev), nil
		}},
		{models.StageAwaitRollout, func(ctx context.Context) (string, error) {
			return r.awaitRollout(ctx, run)
		}},
	}

	for _, step := range steps {
		if err := r.execute(ctx, run, step.stage, step.fn); err != nil {
			return run, r.fail(ctx, run, err)
		}
	}

	r.finish(run, models.OutcomeSucceeded)
	return run, nil
}

// execute runs one stage, records its result on the run and notifies the
// observer. A non-nil return is always a *StageError.
func (r *Runner) execute(ctx context.Context, run *models.PipelineRun, stage models.Stage, fn func(context.Context) (string, error)) error {
	if r.cfg.Observer != nil {
		r.cfg.Observer.StageStarted(stage)
	}
	r.log.Debug().Str("run_id", run.ID).Str("stage", string(stage)).Msg("stage started")

	res := models.StageResult{
		Stage:     stage,
		Status:    models.StageSuccess,
		StartedAt: time.Now(),
	}

	output, err := fn(ctx)
	res.EndedAt = time.Now()
	res.Output = output

	if err != nil {
		res.Status = models.StageFailure
		if res.Output == "" {
			res.Output = err.Error()
		}
		r.log.Error().Err(err).Str("run_id", run.ID).Str("stage", string(stage)).Msg("stage failed")
	} else {
		r.log.Debug().Str("run_id", run.ID).Str("stage", string(stage)).Dur("took", res.Duration()).Msg("stage finished")
	}

	run.Stages = append(run.Stages, res)
	if r.cfg.Observer != nil {
		r.cfg.Observer.StageFinished(res)
	}

	if err != nil {
		return &StageError{Stage: stage, Output: output, Err: err}
	}
	return nil
}

// fail terminates the run after a stage failure. When a manifest revision has
// been recorded the failure happened after the point of no return, so the
// rollback transition runs; otherwise nothing was deployed and the run just
// fails. Rollback is attempted exactly once per run.
func (r *Runner) fail(ctx context.Context, run *models.PipelineRun, cause error) error {
	if run.ManifestRevision == "" {
		r.finish(run, models.OutcomeFailed)
		return cause
	}

	// The undo call must still run when the run itself was cancelled.
	undoCtx := context.WithoutCancel(ctx)
	rollbackErr := r.execute(undoCtx, run, models.StageRollback, func(ctx context.Context) (string, error) {
		if err := r.cfg.Cluster.Undo(ctx, r.cfg.Manifest, run.ManifestRevision); err != nil {
			return "", err
		}
		return fmt.Sprintf("reverted %s to state prior to revision %s", r.cfg.Manifest.Name, run.ManifestRevision), nil
	})

	if rollbackErr != nil {
		r.finish(run, models.OutcomeFailed)
		var se *StageError
		errors.As(rollbackErr, &se)
		return &RollbackFailedError{Cause: cause, UndoErr: se.Err}
	}

	r.finish(run, models.OutcomeRolledBack)
	return cause
}

// awaitRollout polls the cluster until the rollout converges, the timeout
// elapses or the context is cancelled. A timeout is an ordinary stage failure
// and takes the rollback path.
func (r *Runner) awaitRollout(ctx context.Context, run *models.PipelineRun) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RolloutTimeout)
	defer cancel()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	var last models.RolloutStatus
	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return formatRollout(last), fmt.Errorf("%w (last status: %s)", ErrRolloutTimeout, formatRollout(last))
			}
			return formatRollout(last), err
		}

		status, err := r.cfg.Cluster.RolloutStatus(ctx, r.cfg.Manifest, run.ManifestRevision)
		if err != nil {
			return formatRollout(last), err
		}
		last = status

		r.log.Debug().
			Str("run_id", run.ID).
			Int32("desired", status.DesiredReplicas).
			Int32("updated", status.UpdatedReplicas).
			Int32("available", status.AvailableReplicas).
			Msg("rollout status")

		if status.Complete {
			return formatRollout(status), nil
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// finish sets the terminal outcome. It is a no-op if the outcome was already
// set; a run's outcome is recorded exactly once.
func (r *Runner) finish(run *models.PipelineRun, outcome models.Outcome) {
	if run.Outcome != models.OutcomePending {
		return
	}
	run.Outcome = outcome
	run.EndedAt = time.Now()
	r.log.Info().Str("run_id", run.ID).Str("outcome", string(outcome)).Dur("took", run.Duration()).Msg("pipeline run finished")
}

func formatRollout(s models.RolloutStatus) string {
	return fmt.Sprintf("%d/%d updated, %d/%d available",
		s.UpdatedReplicas, s.DesiredReplicas, s.AvailableReplicas, s.DesiredReplicas)
}
