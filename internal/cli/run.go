package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/codewandler/relay/internal/cluster"
	"github.com/codewandler/relay/internal/config"
	"github.com/codewandler/relay/internal/docker"
	"github.com/codewandler/relay/internal/gitsrc"
	"github.com/codewandler/relay/internal/manifest"
	"github.com/codewandler/relay/internal/models"
	"github.com/codewandler/relay/internal/notify"
	"github.com/codewandler/relay/internal/output"
	"github.com/codewandler/relay/internal/pipeline"
	"github.com/codewandler/relay/internal/store"
)

var (
	runManifestPath string
	runSourceRef    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the release pipeline",
	Long: `Execute the full release pipeline against the configured cluster.

Stages run strictly in order: checkout, build, test, publish, apply,
await rollout. A failure after apply triggers an automatic rollback to the
previous revision. Exit code is 0 only when every stage succeeded.

Examples:
  relay run -f deploy.yaml
  relay run -f deploy.yaml --ref release/2.4
  relay run -f deploy.yaml --ref 3f9c2ab -v`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}
		if err := cfg.RequireGit(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := cfg.RequireRegistry(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		m, err := manifest.Load(runManifestPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		dockerClient, err := docker.NewClient(docker.Config{FromEnv: true})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer dockerClient.Close()

		source, err := gitsrc.NewSource(cfg.Git.RemoteURL, cfg.Git.WorkDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		clusterClient, err := cluster.NewClient(cfg.Cluster.Namespace)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		runner, err := pipeline.New(pipeline.Config{
			Manifest:       m,
			SourceRef:      runSourceRef,
			RolloutTimeout: cfg.Cluster.RolloutTimeout,
			PollInterval:   cfg.Cluster.PollInterval,
			Source:         source,
			Builder:        docker.NewBuilder(dockerClient, m.Image, m.Tag),
			Tester:         docker.NewTester(dockerClient, cfg.Test.Command),
			Publisher:      docker.NewRegistry(dockerClient, cfg.Registry.Server, cfg.Registry.Username, cfg.Registry.Password),
			Cluster:        clusterClient,
			Observer:       output.StagePrinter{},
			Logger:         &log.Logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		output.PrintRunHeader(m, runSourceRef)
		run, runErr := runner.Run(ctx)
		output.PrintOutcome(run)

		if cfg.HistoryEnabled() {
			saveRun(cfg, run)
		}
		if cfg.SlackEnabled() {
			notifyRun(cfg, run)
		}

		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().StringVarP(&runManifestPath, "manifest", "f", "deploy.yaml", "deployment manifest file")
	runCmd.Flags().StringVar(&runSourceRef, "ref", "main", "git ref to release")
}

// saveRun appends the finished run to the history database. History failures
// never change the run outcome; they are only logged.
func saveRun(cfg *config.Config, run *models.PipelineRun) {
	ctx := context.Background()

	st, err := store.New(cfg.History)
	if err != nil {
		log.Warn().Err(err).Msg("unable to open history store")
		return
	}
	defer st.Close()

	if err := st.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("unable to initialize history store")
		return
	}
	if err := st.SaveRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Msg("unable to record run")
	}
}

// notifyRun posts the run summary to Slack. Notification failures are only
// logged.
func notifyRun(cfg *config.Config, run *models.PipelineRun) {
	client, err := notify.NewClient(cfg.Slack.BotToken, cfg.Slack.Channel)
	if err != nil {
		log.Warn().Err(err).Msg("unable to create Slack client")
		return
	}
	if err := client.RunFinished(run); err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Msg("unable to post run summary")
	}
}
