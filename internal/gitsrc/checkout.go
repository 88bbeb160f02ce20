// Package gitsrc is the checkout backend: it materializes a git ref into a
// local working tree and resolves it to a commit.
package gitsrc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codewandler/relay/internal/pipeline"
)

// Source clones a remote repository into a scratch directory per checkout.
type Source struct {
	repo    Repository
	workDir string
}

// NewSource returns a checkout backend for the given remote URL. workDir is
// the parent directory for clones; empty means the system temp directory.
func NewSource(remoteURL, workDir string) (*Source, error) {
	repo, err := ParseRemoteURL(remoteURL)
	if err != nil {
		return nil, err
	}
	return &Source{repo: repo, workDir: workDir}, nil
}

// Repository returns the parsed remote.
func (s *Source) Repository() Repository {
	return s.repo
}

// Checkout clones the remote, checks out the ref and resolves it to a commit
// SHA. The combined git output is returned for the stage audit trail.
func (s *Source) Checkout(ctx context.Context, ref string) (pipeline.CheckoutResult, error) {
	dir, err := os.MkdirTemp(s.workDir, "relay-src-")
	if err != nil {
		return pipeline.CheckoutResult{}, fmt.Errorf("failed to create checkout directory: %w", err)
	}

	var output strings.Builder

	if out, err := git(ctx, "", "clone", "--quiet", s.repo.RemoteURL, dir); err != nil {
		output.WriteString(out)
		return pipeline.CheckoutResult{Output: output.String()}, fmt.Errorf("failed to clone %s: %w", s.repo.RemoteURL, err)
	}

	if ref != "" {
		out, err := git(ctx, dir, "checkout", "--quiet", ref)
		output.WriteString(out)
		if err != nil {
			return pipeline.CheckoutResult{Output: output.String()}, fmt.Errorf("failed to checkout %s: %w", ref, err)
		}
	}

	sha, err := git(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return pipeline.CheckoutResult{Output: output.String()}, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	sha = strings.TrimSpace(sha)

	log.Debug().Str("ref", ref).Str("commit", sha).Str("dir", dir).Msg("source checked out")
	fmt.Fprintf(&output, "checked out %s at %s\n", ref, sha)

	return pipeline.CheckoutResult{
		CommitSHA: sha,
		Dir:       dir,
		Output:    output.String(),
	}, nil
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}

	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return buf.String(), nil
}
