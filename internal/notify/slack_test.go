package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/codewandler/relay/internal/models"
)

func TestFormatRun(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	run := &models.PipelineRun{
		ID:               "run-1",
		Outcome:          models.OutcomeRolledBack,
		ManifestRevision: "7",
		StartedAt:        start,
		EndedAt:          start.Add(3 * time.Minute),
		Stages: []models.StageResult{
			{Stage: models.StageCheckout, Status: models.StageSuccess, StartedAt: start, EndedAt: start.Add(time.Second)},
			{Stage: models.StageApply, Status: models.StageSuccess, StartedAt: start, EndedAt: start.Add(2 * time.Second)},
			{Stage: models.StageAwaitRollout, Status: models.StageFailure, Output: "1/3 updated", StartedAt: start, EndedAt: start.Add(time.Minute)},
			{Stage: models.StageRollback, Status: models.StageSuccess, StartedAt: start, EndedAt: start.Add(time.Second)},
		},
	}

	msg := formatRun(run)

	if !strings.Contains(msg, "rolled-back") {
		t.Errorf("message %q missing outcome", msg)
	}
	if !strings.Contains(msg, "✗ await-rollout") {
		t.Errorf("message %q missing failed stage marker", msg)
	}
	if !strings.Contains(msg, "✓ rollback") {
		t.Errorf("message %q missing rollback stage", msg)
	}
	if !strings.Contains(msg, "```1/3 updated```") {
		t.Errorf("message %q missing failure output", msg)
	}
}

func TestTail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut at line", "line1\nline2\nline3", 12, "line2\nline3"},
		{"no newline in window", "abcdefghij", 4, "ghij"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tail(tt.input, tt.n); got != tt.want {
				t.Errorf("tail(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
		})
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", "#deploys"); err == nil {
		t.Error("NewClient with empty token must fail")
	}
	if _, err := NewClient("xoxb-token", ""); err == nil {
		t.Error("NewClient with empty channel must fail")
	}
	if _, err := NewClient("xoxb-token", "#deploys"); err != nil {
		t.Errorf("NewClient() error = %v", err)
	}
}
