package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codewandler/relay/internal/cluster"
	"github.com/codewandler/relay/internal/config"
	"github.com/codewandler/relay/internal/docker"
	"github.com/codewandler/relay/internal/gitsrc"
	"github.com/codewandler/relay/internal/notify"
	"github.com/codewandler/relay/internal/store"
)

var (
	doctorHeader  = color.New(color.FgCyan, color.Bold)
	doctorSuccess = color.New(color.FgGreen)
	doctorError   = color.New(color.FgRed)
	doctorWarn    = color.New(color.FgYellow)
	doctorDim     = color.New(color.FgHiBlack)
	doctorLabel   = color.New(color.FgWhite)
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check backend health",
	Long: `Check the health of every backend the pipeline depends on.

Tests connectivity to the Docker daemon, the registry configuration, the git
remote, the Kubernetes cluster, and the optional Slack and history backends.

Examples:
  relay doctor`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			doctorError.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}

		doctorHeader.Println("relay doctor")
		fmt.Println()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		errors := 0
		warnings := 0

		checks := []struct {
			label string
			check func() (string, bool)
		}{
			{"Git", func() (string, bool) { return checkGit(cfg) }},
			{"Docker", func() (string, bool) { return checkDocker(ctx) }},
			{"Registry", func() (string, bool) { return checkRegistry(cfg) }},
			{"Kubernetes", func() (string, bool) { return checkKubernetes(ctx, cfg) }},
			{"Slack", func() (string, bool) { return checkSlack(cfg) }},
			{"History", func() (string, bool) { return checkHistory(ctx, cfg) }},
		}

		for _, c := range checks {
			doctorLabel.Printf("  %-12s", c.label)
			status, warn := c.check()
			if status == "" {
				errors++
				continue
			}
			fmt.Println(status)
			if warn {
				warnings++
			}
		}

		fmt.Println()
		switch {
		case errors > 0:
			doctorError.Printf("%d check(s) failed.\n", errors)
			os.Exit(1)
		case warnings > 0:
			doctorWarn.Printf("Healthy with %d warning(s).\n", warnings)
		default:
			doctorSuccess.Println("All checks passed.")
		}
	},
}

func checkGit(cfg *config.Config) (string, bool) {
	if err := cfg.RequireGit(); err != nil {
		return doctorWarn.Sprint("⚠ not configured"), true
	}
	repo, err := gitsrc.ParseRemoteURL(cfg.Git.RemoteURL)
	if err != nil {
		doctorError.Printf("✗ %v\n", err)
		return "", false
	}
	return doctorSuccess.Sprintf("✓ %s/%s", repo.Owner, repo.Name), false
}

func checkDocker(ctx context.Context) (string, bool) {
	client, err := docker.NewClient(docker.Config{FromEnv: true})
	if err != nil {
		doctorError.Printf("✗ %v\n", err)
		return "", false
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		doctorError.Printf("✗ %v\n", err)
		return "", false
	}
	return doctorSuccess.Sprint("✓ daemon reachable"), false
}

func checkRegistry(cfg *config.Config) (string, bool) {
	if err := cfg.RequireRegistry(); err != nil {
		return doctorWarn.Sprint("⚠ not configured"), true
	}
	if cfg.Registry.Username == "" {
		return doctorSuccess.Sprintf("✓ %s (anonymous)", cfg.Registry.Server), false
	}
	return doctorSuccess.Sprintf("✓ %s as %s", cfg.Registry.Server, cfg.Registry.Username), false
}

func checkKubernetes(ctx context.Context, cfg *config.Config) (string, bool) {
	client, err := cluster.NewClient(cfg.Cluster.Namespace)
	if err != nil {
		doctorError.Printf("✗ %v\n", err)
		return "", false
	}

	version, err := client.Ping(ctx)
	if err != nil {
		doctorError.Printf("✗ %v\n", err)
		return "", false
	}
	return doctorSuccess.Sprintf("✓ %s (namespace %s)", version, client.Namespace()), false
}

func checkSlack(cfg *config.Config) (string, bool) {
	if !cfg.SlackEnabled() {
		return doctorDim.Sprint("- not configured (notifications disabled)"), false
	}

	client, err := notify.NewClient(cfg.Slack.BotToken, cfg.Slack.Channel)
	if err != nil {
		doctorError.Printf("✗ %v\n", err)
		return "", false
	}

	team, err := client.Check()
	if err != nil {
		doctorError.Printf("✗ %v\n", err)
		return "", false
	}
	return doctorSuccess.Sprintf("✓ %s → %s", team, cfg.Slack.Channel), false
}

func checkHistory(ctx context.Context, cfg *config.Config) (string, bool) {
	if !cfg.HistoryEnabled() {
		return doctorDim.Sprint("- not configured (history disabled)"), false
	}

	st, err := store.New(cfg.History)
	if err != nil {
		doctorError.Printf("✗ %v\n", err)
		return "", false
	}
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		doctorError.Printf("✗ %v\n", err)
		return "", false
	}
	return doctorSuccess.Sprintf("✓ %s/%s", cfg.History.Host, cfg.History.Database), false
}
