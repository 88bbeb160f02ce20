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
	"github.com/codewandler/relay/internal/models"
)

var (
	undoNamespace string
	undoRevision  string

	undoSuccess = color.New(color.FgGreen)
)

var undoCmd = &cobra.Command{
	Use:   "undo <DEPLOYMENT>",
	Short: "Roll a deployment back to its previous revision",
	Long: `Manually revert a deployment to the revision preceding the given one.

Without --revision the deployment's current revision is undone.

Examples:
  relay undo webapp
  relay undo webapp --revision 12
  relay undo webapp -n staging`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}

		ns := undoNamespace
		if ns == "" {
			ns = cfg.Cluster.Namespace
		}

		client, err := cluster.NewClient(ns)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		m := models.DeploymentManifest{Name: args[0]}

		revision := undoRevision
		if revision == "" {
			revision, err = client.CurrentRevision(ctx, m)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if err := client.Undo(ctx, m, revision); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		undoSuccess.Printf("Reverted %s to the state prior to revision %s.\n", args[0], revision)
	},
}

func init() {
	undoCmd.Flags().StringVarP(&undoNamespace, "namespace", "n", "", "deployment namespace")
	undoCmd.Flags().StringVar(&undoRevision, "revision", "", "revision to undo (default: current)")
}
