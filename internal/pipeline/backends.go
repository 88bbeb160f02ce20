package pipeline

import (
	"context"

	"github.com/codewandler/relay/internal/models"
)

// CheckoutResult is the outcome of resolving and checking out the source.
type CheckoutResult struct {
	// CommitSHA is the resolved commit, handed to the builder as source ref.
	CommitSHA string
	// Dir is the local path of the checked-out tree.
	Dir string
	// Output is captured tool output for the audit trail.
	Output string
}

// BuildResult is the outcome of a successful image build.
type BuildResult struct {
	// ImageRef is the opaque identifier of the built image.
	ImageRef string
	// Output is the captured build log.
	Output string
}

// Source checks out the tree to release.
type Source interface {
	Checkout(ctx context.Context, ref string) (CheckoutResult, error)
}

// Builder builds a container image from a checked-out source tree.
type Builder interface {
	Build(ctx context.Context, src CheckoutResult) (BuildResult, error)
}

// Tester runs the test suite against a built image.
type Tester interface {
	Test(ctx context.Context, imageRef string) (models.TestReport, error)
}

// Publisher uploads a built image to a registry.
type Publisher interface {
	Push(ctx context.Context, imageRef string) (output string, err error)
}

// Cluster is the orchestration API the controller deploys against. Apply
// submits desired state and returns a revision identifier; Undo reverts to
// the state prior to that revision.
type Cluster interface {
	Apply(ctx context.Context, manifest models.DeploymentManifest) (revision string, err error)
	RolloutStatus(ctx context.Context, manifest models.DeploymentManifest, revision string) (models.RolloutStatus, error)
	Undo(ctx context.Context, manifest models.DeploymentManifest, revision string) error
}

// Observer receives stage progress. Implementations must not block; the
// controller calls it synchronously between stages.
type Observer interface {
	StageStarted(stage models.Stage)
	StageFinished(result models.StageResult)
}
