package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dockhive/dockhive/internal/apperror"
	"github.com/dockhive/dockhive/internal/model"
	"github.com/dockhive/dockhive/internal/repository"
)

var _ repository.ContainerRepository = (*DB)(nil)

const containerColumns = `runtime_id, owner, name, memory, memory_swap, cpu_cores, cpu_shares, port, state, created_at, updated_at`

// Insert adds a new container record. The (owner, name) primary key turns a
// duplicate name for the same owner into a conflict; the partial unique index
// on port guards the one-lease-per-port invariant at the storage layer too.
func (db *DB) Insert(ctx context.Context, c *model.Container) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO containers (`+containerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RuntimeID,
		c.Owner,
		c.Name,
		c.Resources.MemoryBytes,
		c.Resources.MemorySwapBytes,
		c.Resources.CPUCores,
		c.Resources.CPUShares,
		c.Port,
		c.State,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting container %s/%s: %w", c.Owner, c.Name, err)
	}

	return nil
}

// ListByOwner returns all of the owner's containers, oldest first. An empty
// result is a normal outcome, not an error.
func (db *DB) ListByOwner(ctx context.Context, owner string) ([]model.Container, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+containerColumns+` FROM containers WHERE owner = ? ORDER BY created_at`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing containers for %s: %w", owner, err)
	}
	defer rows.Close()

	containers := []model.Container{}
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning container row: %w", err)
		}
		containers = append(containers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: listing containers for %s: %w", owner, err)
	}

	return containers, nil
}

// GetByOwnerAndName fetches a single record scoped to the owner. A record
// owned by someone else produces the same ErrNotFound as no record at all, so
// existence of other users' names never leaks.
func (db *DB) GetByOwnerAndName(ctx context.Context, owner, name string) (*model.Container, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+containerColumns+` FROM containers WHERE owner = ? AND name = ?`,
		owner, name,
	)

	c, err := scanContainer(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("container", name)
		}
		return nil, fmt.Errorf("sqlite: getting container %s/%s: %w", owner, name, err)
	}

	return c, nil
}

// CountActiveByOwner counts the owner's records that hold resources
// (everything except failed).
func (db *DB) CountActiveByOwner(ctx context.Context, owner string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM containers WHERE owner = ? AND state != ?`,
		owner, model.StateFailed,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting containers for %s: %w", owner, err)
	}

	return count, nil
}

// UpdateProvisioned commits the runtime id, port and state once the engine
// call chain succeeded.
func (db *DB) UpdateProvisioned(ctx context.Context, owner, name, runtimeID string, port int, state model.ContainerState) error {
	return db.updateContainer(ctx, owner, name,
		`UPDATE containers SET runtime_id = ?, port = ?, state = ?, updated_at = ? WHERE owner = ? AND name = ?`,
		runtimeID, port, state, time.Now(), owner, name,
	)
}

// UpdateState records a lifecycle transition. A record entering the failed
// state gives up its port so the partial unique index frees it for reuse.
func (db *DB) UpdateState(ctx context.Context, owner, name string, state model.ContainerState) error {
	if state == model.StateFailed {
		return db.updateContainer(ctx, owner, name,
			`UPDATE containers SET state = ?, port = 0, updated_at = ? WHERE owner = ? AND name = ?`,
			state, time.Now(), owner, name,
		)
	}
	return db.updateContainer(ctx, owner, name,
		`UPDATE containers SET state = ?, updated_at = ? WHERE owner = ? AND name = ?`,
		state, time.Now(), owner, name,
	)
}

// Remove deletes the record. Delete is the only operation that frees a
// (owner, name) pair.
func (db *DB) Remove(ctx context.Context, owner, name string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM containers WHERE owner = ? AND name = ?`, owner, name,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing container %s/%s: %w", owner, name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: removing container %s/%s: %w", owner, name, err)
	}
	if n == 0 {
		return apperror.NotFound("container", name)
	}

	return nil
}

// LeasedPorts returns every port held by a record, for reseeding the
// allocator after a restart.
func (db *DB) LeasedPorts(ctx context.Context) ([]int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT port FROM containers WHERE port > 0`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing leased ports: %w", err)
	}
	defer rows.Close()

	var ports []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("sqlite: scanning port row: %w", err)
		}
		ports = append(ports, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: listing leased ports: %w", err)
	}

	return ports, nil
}

func (db *DB) updateContainer(ctx context.Context, owner, name, query string, args ...any) error {
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating container %s/%s: %w", owner, name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating container %s/%s: %w", owner, name, err)
	}
	if n == 0 {
		return apperror.NotFound("container", name)
	}

	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanContainer(s scanner) (*model.Container, error) {
	var c model.Container
	err := s.Scan(
		&c.RuntimeID,
		&c.Owner,
		&c.Name,
		&c.Resources.MemoryBytes,
		&c.Resources.MemorySwapBytes,
		&c.Resources.CPUCores,
		&c.Resources.CPUShares,
		&c.Port,
		&c.State,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
