// Package notify posts pipeline run outcomes to Slack.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/codewandler/relay/internal/models"
)

// Client wraps the Slack API client
type Client struct {
	api     *slack.Client
	channel string
}

// NewClient creates a new Slack client posting to the given channel
func NewClient(botToken, channel string) (*Client, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("channel is required")
	}

	return &Client{
		api:     slack.New(botToken),
		channel: channel,
	}, nil
}

// Check verifies the token by calling auth.test
func (c *Client) Check() (string, error) {
	resp, err := c.api.AuthTest()
	if err != nil {
		return "", fmt.Errorf("failed to authenticate with Slack: %w", err)
	}
	return resp.Team, nil
}

// RunFinished posts a summary of a finished pipeline run
func (c *Client) RunFinished(run *models.PipelineRun) error {
	_, _, err := c.api.PostMessage(
		c.channel,
		slack.MsgOptionText(formatRun(run), false),
	)
	if err != nil {
		return fmt.Errorf("failed to post run summary: %w", err)
	}
	return nil
}

func formatRun(run *models.PipelineRun) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s Release pipeline %s — run %s (%s)\n",
		outcomeEmoji(run.Outcome), run.Outcome, run.ID, run.Duration().Round(time.Second))

	for _, res := range run.Stages {
		marker := "✓"
		if res.Status == models.StageFailure {
			marker = "✗"
		}
		fmt.Fprintf(&b, "  %s %s (%s)\n", marker, res.Stage, res.Duration().Round(10*time.Millisecond))
	}

	if fail, ok := run.FirstFailure(); ok {
		fmt.Fprintf(&b, "```%s```\n", tail(fail.Output, 600))
	}

	return b.String()
}

func outcomeEmoji(outcome models.Outcome) string {
	switch outcome {
	case models.OutcomeSucceeded:
		return ":white_check_mark:"
	case models.OutcomeRolledBack:
		return ":leftwards_arrow_with_hook:"
	default:
		return ":x:"
	}
}

// tail returns at most n trailing bytes of s, cut at a line boundary where
// possible.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := s[len(s)-n:]
	if i := strings.IndexByte(cut, '\n'); i >= 0 && i < len(cut)-1 {
		cut = cut[i+1:]
	}
	return cut
}
