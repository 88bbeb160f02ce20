package cluster

import (
	"context"
	"strings"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/codewandler/relay/internal/models"
)

func testManifest() models.DeploymentManifest {
	return models.DeploymentManifest{
		Name:     "webapp",
		Image:    "registry.local/webapp",
		Tag:      "v2",
		Replicas: 3,
		Env:      map[string]string{"DB_HOST": "db"},
		Port:     8080,
	}
}

func deploymentFixture(revision string, generation, observed int64, desired, updated, available int32) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:        "webapp",
			Namespace:   "default",
			Generation:  generation,
			Annotations: map[string]string{revisionAnnotation: revision},
			Labels:      map[string]string{"app": "webapp"},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &desired,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": "webapp"}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": "webapp"}},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "webapp", Image: "registry.local/webapp:v2"}},
				},
			},
		},
		Status: appsv1.DeploymentStatus{
			ObservedGeneration: observed,
			UpdatedReplicas:    updated,
			AvailableReplicas:  available,
		},
	}
}

func replicaSetFixture(name, revision, image string) *appsv1.ReplicaSet {
	return &appsv1.ReplicaSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   "default",
			Labels:      map[string]string{"app": "webapp", "pod-template-hash": name},
			Annotations: map[string]string{revisionAnnotation: revision},
			OwnerReferences: []metav1.OwnerReference{
				{Kind: "Deployment", Name: "webapp"},
			},
		},
		Spec: appsv1.ReplicaSetSpec{
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": "webapp", "pod-template-hash": name}},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "webapp", Image: image}},
				},
			},
		},
	}
}

func TestApplyCreatesMissingDeployment(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	c := NewWithClientset(clientset, "default")

	rev, err := c.Apply(context.Background(), testManifest())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if rev != "1" {
		t.Errorf("revision = %q, want 1 for a fresh deployment", rev)
	}

	d, err := clientset.AppsV1().Deployments("default").Get(context.Background(), "webapp", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("deployment not created: %v", err)
	}
	container := d.Spec.Template.Spec.Containers[0]
	if container.Image != "registry.local/webapp:v2" {
		t.Errorf("image = %q, want registry.local/webapp:v2", container.Image)
	}
	if *d.Spec.Replicas != 3 {
		t.Errorf("replicas = %d, want 3", *d.Spec.Replicas)
	}
	if len(container.Env) != 1 || container.Env[0].Name != "DB_HOST" {
		t.Errorf("env = %+v, want DB_HOST binding", container.Env)
	}
	if len(container.Ports) != 1 || container.Ports[0].ContainerPort != 8080 {
		t.Errorf("ports = %+v, want containerPort 8080", container.Ports)
	}
}

func TestApplyUpdatesExistingDeployment(t *testing.T) {
	existing := deploymentFixture("4", 4, 4, 3, 3, 3)
	existing.Spec.Template.Spec.Containers[0].Image = "registry.local/webapp:v1"
	clientset := fake.NewSimpleClientset(existing)
	c := NewWithClientset(clientset, "default")

	rev, err := c.Apply(context.Background(), testManifest())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if rev != "5" {
		t.Errorf("revision = %q, want 5 for the rollout following revision 4", rev)
	}

	d, _ := clientset.AppsV1().Deployments("default").Get(context.Background(), "webapp", metav1.GetOptions{})
	if got := d.Spec.Template.Spec.Containers[0].Image; got != "registry.local/webapp:v2" {
		t.Errorf("image after update = %q, want registry.local/webapp:v2", got)
	}
}

// The revision annotation on an update response is stale: the deployment
// controller only bumps it after it observes the change. Rolling back to the
// revision Apply returned must still restore the pre-deploy state, not the
// one before it.
func TestUndoWithApplyRevisionRestoresPreDeployState(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		deploymentFixture("4", 4, 4, 3, 3, 3),
		replicaSetFixture("webapp-aaa", "3", "registry.local/webapp:v1"),
		replicaSetFixture("webapp-bbb", "4", "registry.local/webapp:v2"),
	)
	c := NewWithClientset(clientset, "default")

	m := testManifest()
	m.Tag = "v3"
	rev, err := c.Apply(context.Background(), m)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if rev != "5" {
		t.Fatalf("revision = %q, want 5 for the new rollout", rev)
	}

	// The controller catches up: a replica set for the new rollout appears
	// and the deployment annotation moves to it.
	newRS := replicaSetFixture("webapp-ccc", "5", "registry.local/webapp:v3")
	if _, err := clientset.AppsV1().ReplicaSets("default").Create(context.Background(), newRS, metav1.CreateOptions{}); err != nil {
		t.Fatalf("seed replica set: %v", err)
	}
	d, _ := clientset.AppsV1().Deployments("default").Get(context.Background(), "webapp", metav1.GetOptions{})
	d.Annotations[revisionAnnotation] = "5"
	if _, err := clientset.AppsV1().Deployments("default").Update(context.Background(), d, metav1.UpdateOptions{}); err != nil {
		t.Fatalf("bump revision: %v", err)
	}

	if err := c.Undo(context.Background(), m, rev); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}

	d, _ = clientset.AppsV1().Deployments("default").Get(context.Background(), "webapp", metav1.GetOptions{})
	if got := d.Spec.Template.Spec.Containers[0].Image; got != "registry.local/webapp:v2" {
		t.Errorf("image after undo = %q, want registry.local/webapp:v2 (the revision 4 state)", got)
	}
}

// Undo may run before the controller has recorded the new rollout's replica
// set; the existing history still resolves to the pre-deploy state.
func TestUndoBeforeControllerObservesRollout(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		deploymentFixture("4", 4, 4, 3, 3, 3),
		replicaSetFixture("webapp-aaa", "3", "registry.local/webapp:v1"),
		replicaSetFixture("webapp-bbb", "4", "registry.local/webapp:v2"),
	)
	c := NewWithClientset(clientset, "default")

	m := testManifest()
	m.Tag = "v3"
	rev, err := c.Apply(context.Background(), m)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if err := c.Undo(context.Background(), m, rev); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}

	d, _ := clientset.AppsV1().Deployments("default").Get(context.Background(), "webapp", metav1.GetOptions{})
	if got := d.Spec.Template.Spec.Containers[0].Image; got != "registry.local/webapp:v2" {
		t.Errorf("image after undo = %q, want registry.local/webapp:v2 (the revision 4 state)", got)
	}
}

func TestRenderDeploymentEnvOrderIsStable(t *testing.T) {
	m := testManifest()
	m.Env = map[string]string{"ZONE": "eu", "DB_HOST": "db", "LOG_LEVEL": "info"}

	env := renderDeployment(m).Spec.Template.Spec.Containers[0].Env
	want := []string{"DB_HOST", "LOG_LEVEL", "ZONE"}
	if len(env) != len(want) {
		t.Fatalf("env = %+v, want %d vars", env, len(want))
	}
	for i, name := range want {
		if env[i].Name != name {
			t.Errorf("env[%d] = %q, want %q (sorted by name)", i, env[i].Name, name)
		}
	}
}

func TestRolloutStatus(t *testing.T) {
	tests := []struct {
		name                        string
		generation, observed        int64
		desired, updated, available int32
		wantComplete                bool
	}{
		{"converged", 2, 2, 3, 3, 3, true},
		{"updating", 2, 2, 3, 1, 1, false},
		{"old replicas still available", 2, 2, 3, 3, 2, false},
		{"stale observation", 3, 2, 3, 3, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := deploymentFixture("2", tt.generation, tt.observed, tt.desired, tt.updated, tt.available)
			c := NewWithClientset(fake.NewSimpleClientset(d), "default")

			status, err := c.RolloutStatus(context.Background(), testManifest(), "2")
			if err != nil {
				t.Fatalf("RolloutStatus() error = %v", err)
			}
			if status.Complete != tt.wantComplete {
				t.Errorf("complete = %v, want %v (status %+v)", status.Complete, tt.wantComplete, status)
			}
			if status.DesiredReplicas != tt.desired || status.UpdatedReplicas != tt.updated || status.AvailableReplicas != tt.available {
				t.Errorf("status = %+v, want %d/%d/%d", status, tt.desired, tt.updated, tt.available)
			}
		})
	}
}

func TestUndoRevertsToPreviousRevision(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		deploymentFixture("10", 10, 10, 3, 1, 1),
		replicaSetFixture("webapp-aaa", "2", "registry.local/webapp:v0"),
		replicaSetFixture("webapp-bbb", "9", "registry.local/webapp:v1"),
		replicaSetFixture("webapp-ccc", "10", "registry.local/webapp:v2"),
	)
	c := NewWithClientset(clientset, "default")

	if err := c.Undo(context.Background(), testManifest(), "10"); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}

	d, _ := clientset.AppsV1().Deployments("default").Get(context.Background(), "webapp", metav1.GetOptions{})
	if got := d.Spec.Template.Spec.Containers[0].Image; got != "registry.local/webapp:v1" {
		t.Errorf("image after undo = %q, want registry.local/webapp:v1 (revision 9, not 2)", got)
	}
	if _, ok := d.Spec.Template.Labels["pod-template-hash"]; ok {
		t.Error("pod-template-hash label must be stripped from the reverted template")
	}
}

func TestUndoWithoutHistoryFails(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		deploymentFixture("1", 1, 1, 3, 3, 3),
		replicaSetFixture("webapp-aaa", "1", "registry.local/webapp:v2"),
	)
	c := NewWithClientset(clientset, "default")

	err := c.Undo(context.Background(), testManifest(), "1")
	if err == nil || !strings.Contains(err.Error(), "no rollout history") {
		t.Fatalf("Undo() error = %v, want no rollout history", err)
	}
}

func TestListDeploymentsScopedToNamespace(t *testing.T) {
	inNS := deploymentFixture("2", 2, 2, 3, 3, 3)
	other := deploymentFixture("1", 1, 1, 1, 1, 1)
	other.Name = "api"
	other.Namespace = "staging"
	clientset := fake.NewSimpleClientset(inNS, other)
	c := NewWithClientset(clientset, "default")

	deployments, err := c.ListDeployments(context.Background())
	if err != nil {
		t.Fatalf("ListDeployments() error = %v", err)
	}
	if len(deployments) != 1 || deployments[0].Name != "webapp" {
		t.Errorf("deployments = %+v, want only webapp from the default namespace", deployments)
	}
}

func TestManifestNamespaceOverridesClient(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	c := NewWithClientset(clientset, "default")

	manifest := testManifest()
	manifest.Namespace = "staging"
	if _, err := c.Apply(context.Background(), manifest); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if _, err := clientset.AppsV1().Deployments("staging").Get(context.Background(), "webapp", metav1.GetOptions{}); err != nil {
		t.Errorf("deployment not created in manifest namespace: %v", err)
	}
}
