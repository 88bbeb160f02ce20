package cluster

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/codewandler/relay/internal/models"
)

// revisionAnnotation is the annotation the deployment controller bumps on
// every rollout; its value is the revision identifier relay records at apply
// time and hands back for undo.
const revisionAnnotation = "deployment.kubernetes.io/revision"

// Client wraps the kubernetes clientset
type Client struct {
	clientset kubernetes.Interface
	namespace string
}

// NewClient creates a new cluster client using the default kubeconfig
func NewClient(namespace string) (*Client, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	configOverrides := &clientcmd.ConfigOverrides{}

	if namespace != "" {
		configOverrides.Context.Namespace = namespace
	}

	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides)

	config, err := kubeConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	// Get effective namespace
	ns := namespace
	if ns == "" {
		ns, _, _ = kubeConfig.Namespace()
		if ns == "" {
			ns = "default"
		}
	}

	return &Client{
		clientset: clientset,
		namespace: ns,
	}, nil
}

// NewWithClientset wraps an existing clientset. Used by tests with the fake
// clientset.
func NewWithClientset(clientset kubernetes.Interface, namespace string) *Client {
	if namespace == "" {
		namespace = "default"
	}
	return &Client{clientset: clientset, namespace: namespace}
}

// Namespace returns the effective namespace for this client
func (c *Client) Namespace() string {
	return c.namespace
}

// Ping verifies connectivity by asking the API server for its version.
func (c *Client) Ping(ctx context.Context) (string, error) {
	info, err := c.clientset.Discovery().ServerVersion()
	if err != nil {
		return "", fmt.Errorf("failed to reach cluster: %w", err)
	}
	return info.GitVersion, nil
}

// Apply submits the desired state described by the manifest as a Deployment,
// creating it if absent and updating it otherwise. It returns the revision of
// the rollout this change triggers.
func (c *Client) Apply(ctx context.Context, manifest models.DeploymentManifest) (string, error) {
	ns := c.effectiveNamespace(manifest)
	deployments := c.clientset.AppsV1().Deployments(ns)
	desired := renderDeployment(manifest)

	existing, err := deployments.Get(ctx, manifest.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		created, createErr := deployments.Create(ctx, desired, metav1.CreateOptions{})
		if createErr != nil {
			return "", fmt.Errorf("failed to create deployment %s: %w", manifest.Name, createErr)
		}
		return revisionOf(created), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get deployment %s: %w", manifest.Name, err)
	}

	// The update response still carries the previous rollout's revision; the
	// deployment controller bumps the annotation asynchronously. The rollout
	// triggered here gets the revision one past the last recorded one.
	next := nextRevision(existing)

	existing.Spec = desired.Spec
	if _, err := deployments.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
		return "", fmt.Errorf("failed to update deployment %s: %w", manifest.Name, err)
	}
	return next, nil
}

// RolloutStatus reports the rollout progress of the deployment the manifest
// describes.
func (c *Client) RolloutStatus(ctx context.Context, manifest models.DeploymentManifest, _ string) (models.RolloutStatus, error) {
	ns := c.effectiveNamespace(manifest)
	d, err := c.clientset.AppsV1().Deployments(ns).Get(ctx, manifest.Name, metav1.GetOptions{})
	if err != nil {
		return models.RolloutStatus{}, fmt.Errorf("failed to get deployment %s: %w", manifest.Name, err)
	}

	desired := int32(1)
	if d.Spec.Replicas != nil {
		desired = *d.Spec.Replicas
	}

	status := models.RolloutStatus{
		DesiredReplicas:   desired,
		UpdatedReplicas:   d.Status.UpdatedReplicas,
		AvailableReplicas: d.Status.AvailableReplicas,
	}

	// A status observed before the latest spec change is not a converged
	// rollout, whatever its counts say.
	if d.Generation > d.Status.ObservedGeneration {
		return status, nil
	}

	status.Complete = models.RolloutComplete(status.DesiredReplicas, status.UpdatedReplicas, status.AvailableReplicas)
	return status, nil
}

// ListDeployments returns all deployments in the client's namespace.
func (c *Client) ListDeployments(ctx context.Context) ([]appsv1.Deployment, error) {
	list, err := c.clientset.AppsV1().Deployments(c.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	return list.Items, nil
}

// CurrentRevision returns the rollout revision the deployment is at.
func (c *Client) CurrentRevision(ctx context.Context, manifest models.DeploymentManifest) (string, error) {
	ns := c.effectiveNamespace(manifest)
	d, err := c.clientset.AppsV1().Deployments(ns).Get(ctx, manifest.Name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get deployment %s: %w", manifest.Name, err)
	}
	return revisionOf(d), nil
}

// Undo reverts the deployment to the pod template of the replica set that
// preceded the given revision, the same resolution kubectl rollout undo does.
func (c *Client) Undo(ctx context.Context, manifest models.DeploymentManifest, revision string) error {
	ns := c.effectiveNamespace(manifest)
	deployments := c.clientset.AppsV1().Deployments(ns)

	d, err := deployments.Get(ctx, manifest.Name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get deployment %s: %w", manifest.Name, err)
	}

	target, err := c.previousReplicaSet(ctx, ns, d, revision)
	if err != nil {
		return err
	}

	d.Spec.Template = target.Spec.Template
	delete(d.Spec.Template.Labels, "pod-template-hash")

	if _, err := deployments.Update(ctx, d, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to revert deployment %s: %w", manifest.Name, err)
	}
	return nil
}

// previousReplicaSet finds the owned replica set with the highest revision
// strictly below the one being undone.
func (c *Client) previousReplicaSet(ctx context.Context, ns string, d *appsv1.Deployment, revision string) (*appsv1.ReplicaSet, error) {
	selector, err := metav1.LabelSelectorAsSelector(d.Spec.Selector)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deployment selector: %w", err)
	}

	list, err := c.clientset.AppsV1().ReplicaSets(ns).List(ctx, metav1.ListOptions{
		LabelSelector: selector.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list replica sets: %w", err)
	}

	undone, err := strconv.ParseInt(revision, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid revision %q: %w", revision, err)
	}

	var (
		target    *appsv1.ReplicaSet
		targetRev int64
	)
	for i := range list.Items {
		rs := &list.Items[i]
		if !ownedBy(rs, d) {
			continue
		}
		rev, parseErr := strconv.ParseInt(rs.Annotations[revisionAnnotation], 10, 64)
		if parseErr != nil || rev >= undone {
			continue
		}
		if target == nil || rev > targetRev {
			target, targetRev = rs, rev
		}
	}

	if target == nil {
		return nil, fmt.Errorf("no rollout history for deployment %s before revision %s", d.Name, revision)
	}
	return target, nil
}

func ownedBy(rs *appsv1.ReplicaSet, d *appsv1.Deployment) bool {
	for _, ref := range rs.OwnerReferences {
		if ref.Kind == "Deployment" && ref.Name == d.Name {
			return true
		}
	}
	return false
}

func (c *Client) effectiveNamespace(manifest models.DeploymentManifest) string {
	if manifest.Namespace != "" {
		return manifest.Namespace
	}
	return c.namespace
}

func revisionOf(d *appsv1.Deployment) string {
	rev := d.Annotations[revisionAnnotation]
	if rev == "" {
		// The controller has not observed the change yet; a fresh
		// deployment starts at revision 1.
		rev = "1"
	}
	return rev
}

// nextRevision is the revision the deployment controller will assign to the
// rollout that follows d's current one.
func nextRevision(d *appsv1.Deployment) string {
	rev, err := strconv.ParseInt(d.Annotations[revisionAnnotation], 10, 64)
	if err != nil {
		rev = 1
	}
	return strconv.FormatInt(rev+1, 10)
}

// renderDeployment maps the manifest onto an appsv1.Deployment. The manifest
// is otherwise opaque to the pipeline; this is the only place its fields are
// interpreted.
func renderDeployment(manifest models.DeploymentManifest) *appsv1.Deployment {
	replicas := manifest.Replicas
	labels := map[string]string{"app": manifest.Name}

	// Sorted so an unchanged manifest renders an identical pod template.
	names := make([]string, 0, len(manifest.Env))
	for name := range manifest.Env {
		names = append(names, name)
	}
	sort.Strings(names)

	var env []corev1.EnvVar
	for _, name := range names {
		env = append(env, corev1.EnvVar{Name: name, Value: manifest.Env[name]})
	}

	var ports []corev1.ContainerPort
	if manifest.Port > 0 {
		ports = append(ports, corev1.ContainerPort{ContainerPort: manifest.Port})
	}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:   manifest.Name,
			Labels: labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  manifest.Name,
						Image: fmt.Sprintf("%s:%s", manifest.Image, manifest.Tag),
						Env:   env,
						Ports: ports,
					}},
				},
			},
		},
	}
}
