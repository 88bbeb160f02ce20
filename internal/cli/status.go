package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewandler/relay/internal/cluster"
	"github.com/codewandler/relay/internal/config"
	"github.com/codewandler/relay/internal/models"
	"github.com/codewandler/relay/internal/output"
)

var statusNamespace string

var statusCmd = &cobra.Command{
	Use:   "status [DEPLOYMENT]",
	Short: "Show rollout status of deployments",
	Long: `Show the current rollout progress of a deployment.

Without an argument, lists every deployment in the namespace with its
rollout state.

Examples:
  relay status
  relay status webapp
  relay status webapp -n staging`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}

		ns := statusNamespace
		if ns == "" {
			ns = cfg.Cluster.Namespace
		}

		client, err := cluster.NewClient(ns)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if len(args) == 0 {
			listDeployments(ctx, client)
			return
		}

		m := models.DeploymentManifest{Name: args[0]}
		status, err := client.RolloutStatus(ctx, m, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		output.PrintRolloutStatus(args[0], status)
	},
}

func listDeployments(ctx context.Context, client *cluster.Client) {
	deployments, err := client.ListDeployments(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rows := make([]output.DeploymentRow, 0, len(deployments))
	for _, d := range deployments {
		m := models.DeploymentManifest{Name: d.Name, Namespace: d.Namespace}

		status, err := client.RolloutStatus(ctx, m, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		rev, err := client.CurrentRevision(ctx, m)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		rows = append(rows, output.DeploymentRow{Name: d.Name, Revision: rev, Status: status})
	}

	output.PrintDeployments(client.Namespace(), rows)
}

func init() {
	statusCmd.Flags().StringVarP(&statusNamespace, "namespace", "n", "", "deployment namespace")
}
