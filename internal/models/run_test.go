package models

import (
	"testing"
	"time"
)

func TestRolloutComplete(t *testing.T) {
	tests := []struct {
		name                        string
		desired, updated, available int32
		want                        bool
	}{
		{"all equal", 3, 3, 3, true},
		{"single replica", 1, 1, 1, true},
		{"zero replicas", 0, 0, 0, true},
		{"updated lagging", 3, 2, 3, false},
		{"available lagging", 3, 3, 2, false},
		{"both lagging", 5, 1, 0, false},
		{"surge above desired", 3, 4, 3, false},
		{"available above desired", 2, 2, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RolloutComplete(tt.desired, tt.updated, tt.available)
			if got != tt.want {
				t.Errorf("RolloutComplete(%d, %d, %d) = %v, want %v",
					tt.desired, tt.updated, tt.available, got, tt.want)
			}
		})
	}
}

func TestNewPipelineRunIdentity(t *testing.T) {
	a := NewPipelineRun()
	b := NewPipelineRun()

	if a.ID == "" || b.ID == "" {
		t.Fatal("runs must have non-empty ids")
	}
	if a.ID == b.ID {
		t.Errorf("runs share id %q", a.ID)
	}
	if a.Outcome != OutcomePending {
		t.Errorf("new run outcome = %s, want %s", a.Outcome, OutcomePending)
	}
}

func TestRunResultLookup(t *testing.T) {
	run := NewPipelineRun()
	run.Stages = append(run.Stages,
		StageResult{Stage: StageCheckout, Status: StageSuccess},
		StageResult{Stage: StageBuild, Status: StageFailure, Output: "compile error"},
	)

	if _, ok := run.Result(StagePublish); ok {
		t.Error("lookup of unexecuted stage must report absence")
	}

	res, ok := run.Result(StageBuild)
	if !ok || res.Output != "compile error" {
		t.Errorf("Result(build) = %+v, %v", res, ok)
	}

	fail, ok := run.FirstFailure()
	if !ok || fail.Stage != StageBuild {
		t.Errorf("FirstFailure() = %+v, %v, want build failure", fail, ok)
	}
}

func TestStageResultDuration(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	res := StageResult{StartedAt: start, EndedAt: start.Add(90 * time.Second)}
	if res.Duration() != 90*time.Second {
		t.Errorf("duration = %s, want 90s", res.Duration())
	}
}
