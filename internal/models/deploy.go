package models

// DeploymentManifest is the desired state handed to the cluster backend. The
// controller passes it through opaquely and only tracks the revision returned
// by apply.
type DeploymentManifest struct {
	Name      string            `yaml:"name"`
	Namespace string            `yaml:"namespace,omitempty"`
	Image     string            `yaml:"image"`
	Tag       string            `yaml:"tag"`
	Replicas  int32             `yaml:"replicas"`
	Env       map[string]string `yaml:"env,omitempty"`
	Port      int32             `yaml:"port,omitempty"`
}

// RolloutStatus is the polled progress of a deployment rollout.
type RolloutStatus struct {
	DesiredReplicas   int32
	UpdatedReplicas   int32
	AvailableReplicas int32
	Complete          bool
}

// RolloutComplete reports whether a rollout with the given replica counts has
// converged: every replica updated and available.
func RolloutComplete(desired, updated, available int32) bool {
	return updated == desired && available == desired
}

// TestReport is the result of running the test suite against a built image.
type TestReport struct {
	Passed int
	Failed int
	Output string
}

// OK reports whether the test run passed.
func (r TestReport) OK() bool {
	return r.Failed == 0
}
