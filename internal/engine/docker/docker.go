// Package docker implements engine.Engine against a Docker daemon.
package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"

	"github.com/dockhive/dockhive/internal/engine"
)

var _ engine.Engine = (*Engine)(nil)

// Engine drives a local Docker daemon through the official SDK.
type Engine struct {
	cli    *client.Client
	logger *slog.Logger
}

// New connects to the daemon using the standard environment configuration
// (DOCKER_HOST etc.) and verifies it responds.
func New(logger *slog.Logger) (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: creating client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker: pinging daemon: %w", err)
	}

	return &Engine{cli: cli, logger: logger}, nil
}

// Close releases the client connection.
func (e *Engine) Close() error {
	return e.cli.Close()
}

// Create provisions a container with the requested resource limits and a
// single host-port binding, without starting it.
func (e *Engine) Create(ctx context.Context, req engine.CreateRequest) (string, error) {
	exposed := nat.Port(fmt.Sprintf("%d/tcp", req.ContainerPort))

	cfg := &container.Config{
		Image:        req.Image,
		ExposedPorts: nat.PortSet{exposed: struct{}{}},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			exposed: []nat.PortBinding{{
				HostIP:   "0.0.0.0",
				HostPort: strconv.Itoa(req.HostPort),
			}},
		},
		Resources: container.Resources{
			Memory:     req.Resources.MemoryBytes,
			MemorySwap: req.Resources.MemorySwapBytes,
			NanoCPUs:   req.Resources.CPUCores * 1_000_000_000,
			CPUShares:  req.Resources.CPUShares,
		},
	}

	resp, err := e.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, req.Name)
	if err != nil {
		return "", fmt.Errorf("docker: creating container %s: %w", req.Name, err)
	}

	e.logger.Debug("container created",
		slog.String("name", req.Name),
		slog.String("id", resp.ID),
		slog.Int("hostPort", req.HostPort),
	)

	return resp.ID, nil
}

// Start starts a created or stopped container.
func (e *Engine) Start(ctx context.Context, id string) error {
	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("docker: starting container %s: %w", id, err)
	}
	return nil
}

// Stop stops a running container with the daemon's default grace period.
func (e *Engine) Stop(ctx context.Context, nameOrID string) error {
	if err := e.cli.ContainerStop(ctx, nameOrID, container.StopOptions{}); err != nil {
		return fmt.Errorf("docker: stopping container %s: %w", nameOrID, err)
	}
	return nil
}

// Remove deletes a container. With force it removes running containers too.
// Removing a container the daemon no longer knows about is treated as
// success, which keeps delete idempotent from the orchestrator's view.
func (e *Engine) Remove(ctx context.Context, nameOrID string, force bool) error {
	err := e.cli.ContainerRemove(ctx, nameOrID, container.RemoveOptions{Force: force})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("docker: removing container %s: %w", nameOrID, err)
	}
	return nil
}

// List returns all containers known to the daemon, running or not.
func (e *Engine) List(ctx context.Context) ([]engine.Summary, error) {
	list, err := e.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("docker: listing containers: %w", err)
	}

	summaries := make([]engine.Summary, 0, len(list))
	for _, c := range list {
		summaries = append(summaries, engine.Summary{ID: c.ID, Names: c.Names})
	}

	return summaries, nil
}
