// Package docker runs docker compose and talks to the Docker Engine API on
// behalf of app commands.
package docker

import (
	"context"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// engineAPI is the part of the Docker client used here.
type engineAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	NetworkRemove(ctx context.Context, networkID string) error
}

// NewClient connects to the daemon described by the DOCKER_* environment.
func NewClient() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}
