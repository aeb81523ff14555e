// Package engine defines the control interface to the container host.
//
// The orchestrator only ever talks to this interface; the docker subpackage
// implements it against a real daemon and tests substitute a double, so the
// lifecycle logic is verifiable without a container host.
package engine

import (
	"context"

	"github.com/dockhive/dockhive/internal/model"
)

// CreateRequest describes the container to provision. HostPort on the host
// maps to ContainerPort inside the workload.
type CreateRequest struct {
	Name          string
	Image         string
	HostPort      int
	ContainerPort int
	Resources     model.ResourceSpec
}

// Summary is one entry of List: enough to resolve a name to a runtime id.
type Summary struct {
	ID    string
	Names []string
}

// Engine is the runtime host's control surface. All methods are potentially
// slow I/O against the daemon; callers must not hold accounting locks across
// them. Every method fails with an engine-specific error when the daemon is
// unreachable or rejects the request.
type Engine interface {
	// Create provisions a container and returns its runtime id without
	// starting it.
	Create(ctx context.Context, req CreateRequest) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, nameOrID string) error
	// Remove deletes the container; force removes it even while running.
	Remove(ctx context.Context, nameOrID string, force bool) error
	List(ctx context.Context) ([]Summary, error)
}
