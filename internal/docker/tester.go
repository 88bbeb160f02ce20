package docker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog/log"

	"github.com/codewandler/relay/internal/models"
)

// Tester runs the test suite inside a container started from the built image.
type Tester struct {
	client *Client

	// Command overrides the image's default command for the test run.
	Command []string
}

// NewTester returns a test backend running the given command.
func NewTester(client *Client, command []string) *Tester {
	return &Tester{client: client, Command: command}
}

// Test creates a container from the image, runs the test command to
// completion and derives a report from the captured output and exit code.
func (t *Tester) Test(ctx context.Context, imageRef string) (models.TestReport, error) {
	cfg := &container.Config{
		Image: imageRef,
		Cmd:   t.Command,
		Labels: map[string]string{
			"relay_role": "test-runner",
		},
	}

	resp, err := t.client.dc.ContainerCreate(ctx, cfg, nil, nil, nil, "")
	if err != nil {
		return models.TestReport{}, fmt.Errorf("unable to create test container: %w", err)
	}
	defer func() {
		if err := t.client.dc.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true}); err != nil {
			log.Warn().Err(err).Str("container", resp.ID).Msg("unable to remove test container")
		}
	}()

	if err := t.client.dc.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return models.TestReport{}, fmt.Errorf("unable to start test container: %w", err)
	}

	statusCh, errCh := t.client.dc.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case err := <-errCh:
		return models.TestReport{}, fmt.Errorf("error waiting for test container: %w", err)
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		return models.TestReport{}, ctx.Err()
	}

	output, err := t.containerOutput(ctx, resp.ID)
	if err != nil {
		return models.TestReport{}, err
	}

	report := ParseReport(output, exitCode)
	log.Debug().Int("passed", report.Passed).Int("failed", report.Failed).Int64("exit_code", exitCode).Msg("test run finished")
	return report, nil
}

func (t *Tester) containerOutput(ctx context.Context, id string) (string, error) {
	logs, err := t.client.dc.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("unable to read test container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", fmt.Errorf("unable to demultiplex container logs: %w", err)
	}

	out := stdout.String()
	if stderr.Len() > 0 {
		out += stderr.String()
	}
	return out, nil
}

// ParseReport derives pass/fail counts from go-test style output. When the
// output carries no per-test markers the exit code decides a whole-run
// verdict.
func ParseReport(output string, exitCode int64) models.TestReport {
	report := models.TestReport{Output: output}

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "--- PASS"):
			report.Passed++
		case strings.HasPrefix(trimmed, "--- FAIL"):
			report.Failed++
		}
	}

	if report.Passed == 0 && report.Failed == 0 {
		if exitCode == 0 {
			report.Passed = 1
		} else {
			report.Failed = 1
		}
		return report
	}

	// A nonzero exit with only passing markers still means the run failed
	// (e.g. a build error after the last test).
	if exitCode != 0 && report.Failed == 0 {
		report.Failed = 1
	}
	return report
}
