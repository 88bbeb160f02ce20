// Package docker provides the build, publish and test backends on top of the
// Docker Engine API.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// Config selects how the docker client connects to the daemon.
type Config struct {
	FromEnv bool
	Host    string
}

// Client wraps the docker API client shared by the builder, registry and
// tester backends.
type Client struct {
	dc client.APIClient
}

// NewClient creates a docker client from the given config.
func NewClient(cfg Config) (*Client, error) {
	opts := []client.Opt{
		client.WithAPIVersionNegotiation(),
	}

	if cfg.FromEnv {
		opts = append(opts, client.FromEnv)
	} else if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	dc, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create docker client: %w", err)
	}

	return &Client{dc: dc}, nil
}

// Ping verifies connectivity to the docker daemon.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.dc.Ping(ctx); err != nil {
		return fmt.Errorf("unable to reach docker daemon: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.dc.Close()
}
