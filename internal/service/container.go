package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/rs/xid"

	"github.com/dockhive/dockhive/internal/apperror"
	"github.com/dockhive/dockhive/internal/engine"
	"github.com/dockhive/dockhive/internal/model"
	"github.com/dockhive/dockhive/internal/ports"
	"github.com/dockhive/dockhive/internal/repository"
)

// namePattern matches names the container runtime accepts.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

const maxNameLength = 63

// ContainerPolicy holds the provisioning policy constants, filled from
// config at startup.
type ContainerPolicy struct {
	// PlanLimit caps active containers per owner.
	PlanLimit int
	// DefaultImage is used when a request names no image.
	DefaultImage string
	// ContainerPort is the in-container port the leased host port maps to.
	ContainerPort int
	// DefaultCPUShares is applied when a request leaves shares unset.
	DefaultCPUShares int64
}

// ContainerService orchestrates the container lifecycle: admission checks,
// credit reservation, port leasing, runtime calls and the durable catalog,
// with compensation when a later step fails.
//
// Creation is split at the admission boundary: quota and credit checks run
// synchronously, everything that talks to the runtime runs in a detached
// worker. Once accepted, provisioning runs to completion or failure with no
// cancellation, and the outcome is observable only through the catalog.
type ContainerService struct {
	catalog   repository.ContainerRepository
	credits   repository.CreditRepository
	allocator *ports.Allocator
	eng       engine.Engine
	policy    ContainerPolicy
	logger    *slog.Logger

	// provisioning tracks detached workers so tests (and shutdown) can
	// wait for them to settle.
	provisioning sync.WaitGroup
}

// NewContainerService creates a ContainerService.
func NewContainerService(
	catalog repository.ContainerRepository,
	credits repository.CreditRepository,
	allocator *ports.Allocator,
	eng engine.Engine,
	policy ContainerPolicy,
	logger *slog.Logger,
) *ContainerService {
	return &ContainerService{
		catalog:   catalog,
		credits:   credits,
		allocator: allocator,
		eng:       eng,
		policy:    policy,
		logger:    logger,
	}
}

// Create admits a provisioning request and detaches the actual work.
//
// Synchronous phase, in order: name/spec validation, plan-limit check, credit
// reservation. All of these fail with zero side effects. The returned record
// is in state provisioning; the caller polls List to observe the outcome
// (running, or failed after compensation).
func (s *ContainerService) Create(ctx context.Context, owner string, spec model.ResourceSpec, image, name string) (*model.Container, error) {
	if name == "" {
		name = xid.New().String()
	}
	if len(name) > maxNameLength || !namePattern.MatchString(name) {
		return nil, apperror.ValidationFailed("name", "container name must be alphanumeric with ._- and start with a letter or digit")
	}
	if image == "" {
		image = s.policy.DefaultImage
	}
	if spec.CPUShares == 0 {
		spec.CPUShares = s.policy.DefaultCPUShares
	}
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	count, err := s.catalog.CountActiveByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("counting containers for %s: %w", owner, err)
	}
	if count >= s.policy.PlanLimit {
		return nil, apperror.LimitReached(s.policy.PlanLimit)
	}

	if _, err := s.catalog.GetByOwnerAndName(ctx, owner, name); err == nil {
		return nil, apperror.Conflict("container", name)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("checking container name %s/%s: %w", owner, name, err)
	}

	price := spec.Price()
	ok, err := s.credits.ReserveAndDebit(ctx, owner, price)
	if err != nil {
		return nil, fmt.Errorf("reserving %d credits for %s: %w", price, owner, err)
	}
	if !ok {
		return nil, apperror.InsufficientCredits(price)
	}

	record := &model.Container{
		Owner:     owner,
		Name:      name,
		Resources: spec,
		State:     model.StateProvisioning,
	}
	if err := s.catalog.Insert(ctx, record); err != nil {
		// Admission is rolled back in full: nothing was leased yet, only
		// the reservation needs undoing.
		s.refund(owner, price)
		return nil, fmt.Errorf("inserting container record %s/%s: %w", owner, name, err)
	}

	s.logger.Info("container accepted",
		slog.String("owner", owner),
		slog.String("name", name),
		slog.Int64("price", price),
	)

	s.provisioning.Add(1)
	go func() {
		defer s.provisioning.Done()
		// Deliberately detached from the request context: once accepted,
		// provisioning is at-most-once and not cancellable.
		s.provision(context.Background(), owner, name, image, spec, price)
	}()

	return record, nil
}

// provision performs the slow half of creation: lease a port, drive the
// engine, commit to the catalog. On failure at any step it compensates in
// reverse order and marks the record failed; the original caller is long
// gone, so outcomes land in the catalog and the log only.
func (s *ContainerService) provision(ctx context.Context, owner, name, image string, spec model.ResourceSpec, price int64) {
	port, err := s.allocator.Lease()
	if err != nil {
		s.logger.Warn("provisioning failed: no port available",
			slog.String("owner", owner), slog.String("name", name))
		s.refund(owner, price)
		s.markFailed(owner, name)
		return
	}

	runtimeID, err := s.eng.Create(ctx, engine.CreateRequest{
		Name:          name,
		Image:         image,
		HostPort:      port,
		ContainerPort: s.policy.ContainerPort,
		Resources:     spec,
	})
	if err != nil {
		s.logger.Error("provisioning failed: engine create",
			slog.String("owner", owner), slog.String("name", name),
			slog.String("error", err.Error()))
		s.allocator.Release(port)
		s.refund(owner, price)
		s.markFailed(owner, name)
		return
	}

	if err := s.eng.Start(ctx, runtimeID); err != nil {
		s.logger.Error("provisioning failed: engine start",
			slog.String("owner", owner), slog.String("name", name),
			slog.String("runtimeID", runtimeID),
			slog.String("error", err.Error()))
		// The container exists but never ran; force-remove is best effort.
		if rmErr := s.eng.Remove(ctx, runtimeID, true); rmErr != nil {
			s.logger.Error("rollback remove failed, runtime container may be orphaned",
				slog.String("runtimeID", runtimeID),
				slog.String("error", rmErr.Error()))
		}
		s.allocator.Release(port)
		s.refund(owner, price)
		s.markFailed(owner, name)
		return
	}

	if err := s.catalog.UpdateProvisioned(ctx, owner, name, runtimeID, port, model.StateRunning); err != nil {
		// The runtime container is live but the catalog commit failed: the
		// orphan of record. Reclaim what we can, loudly.
		s.logger.Error("catalog commit failed for live container, compensating",
			slog.String("owner", owner), slog.String("name", name),
			slog.String("runtimeID", runtimeID),
			slog.String("error", err.Error()))
		if rmErr := s.eng.Remove(ctx, runtimeID, true); rmErr != nil {
			s.logger.Error("orphaned runtime container could not be removed",
				slog.String("runtimeID", runtimeID),
				slog.String("error", rmErr.Error()))
		}
		s.allocator.Release(port)
		s.refund(owner, price)
		s.markFailed(owner, name)
		return
	}

	s.logger.Info("container provisioned",
		slog.String("owner", owner),
		slog.String("name", name),
		slog.String("runtimeID", runtimeID),
		slog.Int("port", port),
	)
}

// Start starts the named container. Ownership is enforced by the
// owner-scoped lookup; a foreign or absent name is NotFound either way.
func (s *ContainerService) Start(ctx context.Context, owner, name string) error {
	record, err := s.lookupSettled(ctx, owner, name)
	if err != nil {
		return err
	}

	id, err := s.resolveRuntimeID(ctx, record)
	if err != nil {
		return err
	}

	if err := s.eng.Start(ctx, id); err != nil {
		s.logger.Error("engine start failed",
			slog.String("owner", owner), slog.String("name", name),
			slog.String("error", err.Error()))
		return apperror.Engine("start", err)
	}

	if err := s.catalog.UpdateState(ctx, owner, name, model.StateRunning); err != nil {
		return fmt.Errorf("recording started state for %s/%s: %w", owner, name, err)
	}

	return nil
}

// Stop stops the named container. The port lease and the catalog record are
// kept; a stopped container is resumable.
func (s *ContainerService) Stop(ctx context.Context, owner, name string) error {
	record, err := s.lookupSettled(ctx, owner, name)
	if err != nil {
		return err
	}

	id, err := s.resolveRuntimeID(ctx, record)
	if err != nil {
		return err
	}

	if err := s.eng.Stop(ctx, id); err != nil {
		s.logger.Error("engine stop failed",
			slog.String("owner", owner), slog.String("name", name),
			slog.String("error", err.Error()))
		return apperror.Engine("stop", err)
	}

	if err := s.catalog.UpdateState(ctx, owner, name, model.StateStopped); err != nil {
		return fmt.Errorf("recording stopped state for %s/%s: %w", owner, name, err)
	}

	return nil
}

// Delete removes the named container: runtime first (forced, so running
// containers go too), then the port lease, then the catalog record. Deleting
// an absent name is NotFound with no mutation. Credits are consumed, not
// returned.
func (s *ContainerService) Delete(ctx context.Context, owner, name string) error {
	record, err := s.catalog.GetByOwnerAndName(ctx, owner, name)
	if err != nil {
		return err
	}

	if record.RuntimeID != "" {
		if err := s.eng.Remove(ctx, record.RuntimeID, true); err != nil {
			s.logger.Error("engine remove failed",
				slog.String("owner", owner), slog.String("name", name),
				slog.String("error", err.Error()))
			return apperror.Engine("delete", err)
		}
	}

	s.allocator.Release(record.Port)

	if err := s.catalog.Remove(ctx, owner, name); err != nil {
		return fmt.Errorf("removing container record %s/%s: %w", owner, name, err)
	}

	s.logger.Info("container deleted",
		slog.String("owner", owner),
		slog.String("name", name),
	)

	return nil
}

// List returns the owner's containers. Empty is a normal answer.
func (s *ContainerService) List(ctx context.Context, owner string) ([]model.Container, error) {
	containers, err := s.catalog.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing containers for %s: %w", owner, err)
	}
	return containers, nil
}

// WaitForProvisioning blocks until all detached provisioning workers have
// settled. Used in tests and during shutdown.
func (s *ContainerService) WaitForProvisioning() {
	s.provisioning.Wait()
}

// lookupSettled fetches a record that is past provisioning. Start/stop on an
// in-flight or failed record is a conflict, not an engine call.
func (s *ContainerService) lookupSettled(ctx context.Context, owner, name string) (*model.Container, error) {
	record, err := s.catalog.GetByOwnerAndName(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	switch record.State {
	case model.StateProvisioning:
		return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: "container is still provisioning"}
	case model.StateFailed:
		return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: "container provisioning failed, delete it and retry"}
	}
	return record, nil
}

// resolveRuntimeID prefers the catalog's runtime id and falls back to asking
// the engine for a container carrying the record's name. The catalog stays
// authoritative for existence; the engine only fills in its own identifier.
func (s *ContainerService) resolveRuntimeID(ctx context.Context, record *model.Container) (string, error) {
	if record.RuntimeID != "" {
		return record.RuntimeID, nil
	}

	list, err := s.eng.List(ctx)
	if err != nil {
		return "", apperror.Engine("list", err)
	}
	for _, c := range list {
		for _, n := range c.Names {
			// The daemon reports names with a leading slash.
			if n == "/"+record.Name || n == record.Name {
				return c.ID, nil
			}
		}
	}

	return "", apperror.NotFound("container", record.Name)
}

// refund is the compensation credit-back. A failed refund is not retried;
// it is logged for operator follow-up because there is nobody left to report
// it to.
func (s *ContainerService) refund(owner string, price int64) {
	if err := s.credits.Refund(context.Background(), owner, price); err != nil {
		s.logger.Error("refund failed",
			slog.String("owner", owner),
			slog.Int64("credits", price),
			slog.String("error", err.Error()))
	}
}

func (s *ContainerService) markFailed(owner, name string) {
	if err := s.catalog.UpdateState(context.Background(), owner, name, model.StateFailed); err != nil {
		s.logger.Error("marking container failed",
			slog.String("owner", owner),
			slog.String("name", name),
			slog.String("error", err.Error()))
	}
}

func validateSpec(spec model.ResourceSpec) error {
	if spec.MemoryBytes <= 0 {
		return apperror.ValidationFailed("memory", "memory must be positive")
	}
	if spec.MemorySwapBytes < 0 {
		return apperror.ValidationFailed("memorySwap", "memory swap must not be negative")
	}
	if spec.CPUCores < 1 {
		return apperror.ValidationFailed("cpuCores", "at least one CPU core is required")
	}
	if spec.CPUShares < 2 {
		return apperror.ValidationFailed("cpuShares", "cpu shares must be at least 2")
	}
	return nil
}
