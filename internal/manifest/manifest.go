// Package manifest loads deployment manifests from YAML files.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/codewandler/relay/internal/models"
)

// Load reads a deployment manifest from a YAML file and validates it.
func Load(filename string) (models.DeploymentManifest, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return models.DeploymentManifest{}, fmt.Errorf("reading manifest file: %w", err)
	}

	var m models.DeploymentManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return models.DeploymentManifest{}, fmt.Errorf("parsing manifest file: %w", err)
	}

	if err := Validate(m); err != nil {
		return models.DeploymentManifest{}, fmt.Errorf("validating manifest %s: %w", filename, err)
	}
	return m, nil
}

// Validate checks the required fields of a manifest.
func Validate(m models.DeploymentManifest) error {
	switch {
	case m.Name == "":
		return fmt.Errorf("name is required")
	case m.Image == "":
		return fmt.Errorf("image is required")
	case m.Tag == "":
		return fmt.Errorf("tag is required")
	case m.Replicas < 1:
		return fmt.Errorf("replicas must be at least 1, got %d", m.Replicas)
	case m.Port < 0 || m.Port > 65535:
		return fmt.Errorf("port must be between 0 and 65535, got %d", m.Port)
	}
	return nil
}
