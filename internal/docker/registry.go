package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/rs/zerolog/log"
)

// Registry is the publish backend: it pushes built images to a remote
// registry.
type Registry struct {
	client *Client

	// Username and Password authenticate the push. Empty means anonymous.
	Username string
	Password string
	// Server is the registry address used in the auth config.
	Server string
}

// NewRegistry returns a publish backend for the given registry server.
func NewRegistry(client *Client, server, username, password string) *Registry {
	return &Registry{
		client:   client,
		Server:   server,
		Username: username,
		Password: password,
	}
}

// Push uploads the image to the registry. The image was already tagged with
// its full registry reference at build time.
func (r *Registry) Push(ctx context.Context, imageRef string) (string, error) {
	auth, err := r.encodedAuth()
	if err != nil {
		return "", err
	}

	log.Debug().Str("image", imageRef).Str("registry", r.Server).Msg("pushing image")

	body, err := r.client.dc.ImagePush(ctx, imageRef, image.PushOptions{RegistryAuth: auth})
	if err != nil {
		return "", fmt.Errorf("unable to push image: %w", err)
	}
	defer body.Close()

	output, err := collectStream(body)
	if err != nil {
		return output, fmt.Errorf("image push failed: %w", err)
	}
	return output, nil
}

func (r *Registry) encodedAuth() (string, error) {
	cfg := registry.AuthConfig{
		Username:      r.Username,
		Password:      r.Password,
		ServerAddress: r.Server,
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("unable to encode registry auth: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}
