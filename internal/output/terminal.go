package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/codewandler/relay/internal/models"
	"github.com/codewandler/relay/internal/store"
)

var (
	headerColor   = color.New(color.FgCyan, color.Bold)
	stageColor    = color.New(color.FgYellow)
	successColor  = color.New(color.FgGreen)
	failureColor  = color.New(color.FgRed)
	rollbackColor = color.New(color.FgMagenta)
	dimColor      = color.New(color.FgHiBlack)
)

// PrintRunHeader announces the start of a pipeline run
func PrintRunHeader(manifest models.DeploymentManifest, sourceRef string) {
	line := strings.Repeat("═", 60)
	fmt.Println()
	headerColor.Println(line)
	headerColor.Printf("  Release %s → %s:%s (ref %s)\n", manifest.Name, manifest.Image, manifest.Tag, sourceRef)
	headerColor.Println(line)
	fmt.Println()
}

// StagePrinter renders stage progress as the pipeline runs.
type StagePrinter struct{}

func (StagePrinter) StageStarted(stage models.Stage) {
	stageColor.Printf("  ▸ %-14s ", stage)
}

func (StagePrinter) StageFinished(res models.StageResult) {
	switch res.Status {
	case models.StageSuccess:
		successColor.Print("ok ")
	default:
		failureColor.Print("failed ")
	}
	dimColor.Printf("(%s)\n", formatDuration(res.Duration()))

	if res.Status == models.StageFailure && res.Output != "" {
		for _, line := range strings.Split(strings.TrimSpace(res.Output), "\n") {
			dimColor.Printf("      %s\n", line)
		}
	}
}

// PrintOutcome renders the terminal outcome banner of a run
func PrintOutcome(run *models.PipelineRun) {
	fmt.Println()
	switch run.Outcome {
	case models.OutcomeSucceeded:
		successColor.Printf("  Succeeded in %s", formatDuration(run.Duration()))
		if run.ManifestRevision != "" {
			dimColor.Printf(" (revision %s)", run.ManifestRevision)
		}
		fmt.Println()
	case models.OutcomeRolledBack:
		rollbackColor.Printf("  Rolled back after failure (revision %s reverted)\n", run.ManifestRevision)
	default:
		failureColor.Println("  Failed")
	}
	dimColor.Printf("  run %s\n", run.ID)
	fmt.Println()
}

// PrintRolloutStatus renders the current rollout progress of a deployment
func PrintRolloutStatus(name string, status models.RolloutStatus) {
	fmt.Println()
	headerColor.Printf("  %s\n", name)
	fmt.Printf("  desired %d, updated %d, available %d\n",
		status.DesiredReplicas, status.UpdatedReplicas, status.AvailableReplicas)
	if status.Complete {
		successColor.Println("  rollout complete")
	} else {
		stageColor.Println("  rollout in progress")
	}
	fmt.Println()
}

// DeploymentRow is one line of the namespace deployment listing.
type DeploymentRow struct {
	Name     string
	Revision string
	Status   models.RolloutStatus
}

// PrintDeployments renders all deployments in a namespace with their rollout
// progress
func PrintDeployments(namespace string, rows []DeploymentRow) {
	if len(rows) == 0 {
		dimColor.Printf("No deployments in namespace %s.\n", namespace)
		return
	}

	fmt.Println()
	headerColor.Printf("  Deployments in %s (%d)\n", namespace, len(rows))
	fmt.Printf("  %s\n", strings.Repeat("─", 64))
	fmt.Printf("  %-28s %-9s %-8s %-9s %s\n", "NAME", "REVISION", "UPDATED", "AVAILABLE", "STATUS")

	for _, row := range rows {
		fmt.Printf("  %-28s %-9s %d/%-6d %d/%-7d ",
			row.Name, row.Revision,
			row.Status.UpdatedReplicas, row.Status.DesiredReplicas,
			row.Status.AvailableReplicas, row.Status.DesiredReplicas)
		if row.Status.Complete {
			successColor.Println("complete")
		} else {
			stageColor.Println("in progress")
		}
	}
	fmt.Println()
}

// PrintHistory renders past runs as a table, newest first
func PrintHistory(summaries []store.RunSummary) {
	if len(summaries) == 0 {
		dimColor.Println("No runs recorded.")
		return
	}

	fmt.Println()
	headerColor.Printf("  Pipeline Runs (%d)\n", len(summaries))
	fmt.Printf("  %s\n", strings.Repeat("─", 92))
	fmt.Printf("  %-36s %-12s %-10s %-20s %s\n", "RUN", "OUTCOME", "REVISION", "STARTED", "DURATION")

	for _, s := range summaries {
		outcomeColor := outcomeColorOf(s.Outcome)
		fmt.Printf("  %-36s ", s.ID)
		outcomeColor.Printf("%-12s ", s.Outcome)
		rev := s.ManifestRevision
		if rev == "" {
			rev = "-"
		}
		fmt.Printf("%-10s %-20s %s", rev, s.StartedAt.Format("2006-01-02 15:04:05"), formatDuration(s.EndedAt.Sub(s.StartedAt)))
		if s.FailedStage != "" {
			dimColor.Printf("  (failed at %s)", s.FailedStage)
		}
		fmt.Println()
	}
	fmt.Println()
}

func outcomeColorOf(outcome models.Outcome) *color.Color {
	switch outcome {
	case models.OutcomeSucceeded:
		return successColor
	case models.OutcomeRolledBack:
		return rollbackColor
	default:
		return failureColor
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
