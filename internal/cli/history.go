package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewandler/relay/internal/config"
	"github.com/codewandler/relay/internal/output"
	"github.com/codewandler/relay/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past pipeline runs",
	Long: `List recorded pipeline runs, newest first.

Requires the history database to be configured.

Examples:
  relay history
  relay history --limit 50
  relay history show 4f1f9f6e-8f4e-4f58-9a34-1c2d3e4f5a6b`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		st := openStore()
		defer st.Close()

		runs, err := st.ListRuns(ctx, historyLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		output.PrintHistory(runs)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <RUN_ID>",
	Short: "Show the stage audit trail of one run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		st := openStore()
		defer st.Close()

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		printer := output.StagePrinter{}
		for _, res := range run.Stages {
			printer.StageStarted(res.Stage)
			printer.StageFinished(res)
		}
		output.PrintOutcome(run)
	},
}

func openStore() *store.Store {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.RequireHistory(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.History)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return st
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
	historyCmd.AddCommand(historyShowCmd)
}
