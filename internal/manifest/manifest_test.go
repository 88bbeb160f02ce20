package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codewandler/relay/internal/models"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeManifest(t, `
name: webapp
namespace: staging
image: registry.local/webapp
tag: v2
replicas: 3
port: 8080
env:
  DB_HOST: db
  DB_NAME: webappdb
`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if m.Name != "webapp" || m.Namespace != "staging" {
		t.Errorf("identity = %s/%s, want staging/webapp", m.Namespace, m.Name)
	}
	if m.Image != "registry.local/webapp" || m.Tag != "v2" {
		t.Errorf("image = %s:%s, want registry.local/webapp:v2", m.Image, m.Tag)
	}
	if m.Replicas != 3 || m.Port != 8080 {
		t.Errorf("replicas/port = %d/%d, want 3/8080", m.Replicas, m.Port)
	}
	if m.Env["DB_HOST"] != "db" || m.Env["DB_NAME"] != "webappdb" {
		t.Errorf("env = %v, want DB_HOST and DB_NAME bindings", m.Env)
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := writeManifest(t, "name: [unclosed")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parsing manifest") {
		t.Fatalf("Load() error = %v, want parse error", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() error = nil, want read error")
	}
}

func TestValidate(t *testing.T) {
	valid := models.DeploymentManifest{
		Name: "webapp", Image: "registry.local/webapp", Tag: "v1", Replicas: 1,
	}

	tests := []struct {
		name    string
		mutate  func(*models.DeploymentManifest)
		wantErr string
	}{
		{"valid", func(m *models.DeploymentManifest) {}, ""},
		{"missing name", func(m *models.DeploymentManifest) { m.Name = "" }, "name is required"},
		{"missing image", func(m *models.DeploymentManifest) { m.Image = "" }, "image is required"},
		{"missing tag", func(m *models.DeploymentManifest) { m.Tag = "" }, "tag is required"},
		{"zero replicas", func(m *models.DeploymentManifest) { m.Replicas = 0 }, "replicas must be at least 1"},
		{"negative port", func(m *models.DeploymentManifest) { m.Port = -1 }, "port must be between"},
		{"port too large", func(m *models.DeploymentManifest) { m.Port = 70000 }, "port must be between"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)
			err := Validate(m)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
