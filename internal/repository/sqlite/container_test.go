package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/dockhive/dockhive/internal/apperror"
	"github.com/dockhive/dockhive/internal/model"
)

func testContainer(owner, name string, port int, state model.ContainerState) *model.Container {
	return &model.Container{
		Owner: owner,
		Name:  name,
		Resources: model.ResourceSpec{
			MemoryBytes:     2 * model.GiB,
			MemorySwapBytes: model.GiB,
			CPUCores:        1,
			CPUShares:       512,
		},
		Port:  port,
		State: state,
	}
}

func TestInsertAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	want := testContainer("alice", "web", 59001, model.StateProvisioning)
	if err := db.Insert(ctx, want); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := db.GetByOwnerAndName(ctx, "alice", "web")
	if err != nil {
		t.Fatalf("GetByOwnerAndName: %v", err)
	}
	if got.Owner != "alice" || got.Name != "web" {
		t.Errorf("got %s/%s, want alice/web", got.Owner, got.Name)
	}
	if got.Port != 59001 {
		t.Errorf("port = %d, want 59001", got.Port)
	}
	if got.State != model.StateProvisioning {
		t.Errorf("state = %s, want %s", got.State, model.StateProvisioning)
	}
	if got.Resources != want.Resources {
		t.Errorf("resources = %+v, want %+v", got.Resources, want.Resources)
	}
}

func TestInsert_DuplicateNameSameOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Insert(ctx, testContainer("alice", "web", 59001, model.StateRunning)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert(ctx, testContainer("alice", "web", 59002, model.StateRunning)); err == nil {
		t.Error("second insert with same owner and name succeeded")
	}
}

func TestInsert_SameNameDifferentOwners(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Insert(ctx, testContainer("alice", "web", 59001, model.StateRunning)); err != nil {
		t.Fatalf("Insert alice/web: %v", err)
	}
	if err := db.Insert(ctx, testContainer("bob", "web", 59002, model.StateRunning)); err != nil {
		t.Errorf("Insert bob/web: %v (names are scoped per owner)", err)
	}
}

func TestInsert_DuplicatePortRejected(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Insert(ctx, testContainer("alice", "a", 59001, model.StateRunning)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert(ctx, testContainer("bob", "b", 59001, model.StateRunning)); err == nil {
		t.Error("second record on port 59001 accepted")
	}
}

func TestInsert_MultiplePortZeroRecordsAllowed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Failed and not-yet-provisioned records all carry port 0; the unique
	// index must not apply to them.
	if err := db.Insert(ctx, testContainer("alice", "a", 0, model.StateFailed)); err != nil {
		t.Fatalf("Insert a: %v", err)
	}
	if err := db.Insert(ctx, testContainer("alice", "b", 0, model.StateProvisioning)); err != nil {
		t.Errorf("Insert b: %v (port 0 must not collide)", err)
	}
}

func TestGetByOwnerAndName_OtherOwnersRecordHidden(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Insert(ctx, testContainer("alice", "web", 59001, model.StateRunning)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	_, err := db.GetByOwnerAndName(ctx, "bob", "web")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound (cross-owner access must look like absence)", err)
	}
}

func TestListByOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Insert(ctx, testContainer("alice", "a", 59001, model.StateRunning)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert(ctx, testContainer("alice", "b", 59002, model.StateStopped)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert(ctx, testContainer("bob", "c", 59003, model.StateRunning)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	containers, err := db.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(containers) != 2 {
		t.Fatalf("len = %d, want 2", len(containers))
	}
	for _, c := range containers {
		if c.Owner != "alice" {
			t.Errorf("listed container owned by %s leaked into alice's view", c.Owner)
		}
	}
}

func TestListByOwner_EmptyIsNotAnError(t *testing.T) {
	db := newTestDB(t)

	containers, err := db.ListByOwner(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if containers == nil {
		t.Error("ListByOwner returned nil, want empty slice")
	}
	if len(containers) != 0 {
		t.Errorf("len = %d, want 0", len(containers))
	}
}

func TestCountActiveByOwner_ExcludesFailed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Insert(ctx, testContainer("alice", "a", 59001, model.StateRunning)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert(ctx, testContainer("alice", "b", 59002, model.StateStopped)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert(ctx, testContainer("alice", "c", 0, model.StateFailed)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	count, err := db.CountActiveByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("CountActiveByOwner: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2 (failed records hold no quota)", count)
	}
}

func TestUpdateProvisioned(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Insert(ctx, testContainer("alice", "web", 0, model.StateProvisioning)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := db.UpdateProvisioned(ctx, "alice", "web", "abc123", 59007, model.StateRunning); err != nil {
		t.Fatalf("UpdateProvisioned: %v", err)
	}

	got, err := db.GetByOwnerAndName(ctx, "alice", "web")
	if err != nil {
		t.Fatalf("GetByOwnerAndName: %v", err)
	}
	if got.RuntimeID != "abc123" {
		t.Errorf("runtime id = %q, want %q", got.RuntimeID, "abc123")
	}
	if got.Port != 59007 {
		t.Errorf("port = %d, want 59007", got.Port)
	}
	if got.State != model.StateRunning {
		t.Errorf("state = %s, want %s", got.State, model.StateRunning)
	}
}

func TestUpdateState_FailedGivesUpPort(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Insert(ctx, testContainer("alice", "web", 59001, model.StateRunning)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := db.UpdateState(ctx, "alice", "web", model.StateFailed); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}

	got, err := db.GetByOwnerAndName(ctx, "alice", "web")
	if err != nil {
		t.Fatalf("GetByOwnerAndName: %v", err)
	}
	if got.Port != 0 {
		t.Errorf("port = %d, want 0 after failing", got.Port)
	}

	// The freed port must be insertable again.
	if err := db.Insert(ctx, testContainer("bob", "other", 59001, model.StateRunning)); err != nil {
		t.Errorf("reusing port of failed record: %v", err)
	}
}

func TestUpdateState_UnknownRecord(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdateState(context.Background(), "alice", "ghost", model.StateStopped)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Insert(ctx, testContainer("alice", "web", 59001, model.StateRunning)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := db.Remove(ctx, "alice", "web"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	// A second remove of the same name reports absence.
	err := db.Remove(ctx, "alice", "web")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Remove: err = %v, want ErrNotFound", err)
	}

	// The (owner, name) pair is free again.
	if err := db.Insert(ctx, testContainer("alice", "web", 59002, model.StateRunning)); err != nil {
		t.Errorf("reinsert after remove: %v", err)
	}
}

func TestLeasedPorts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Insert(ctx, testContainer("alice", "a", 59001, model.StateRunning)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert(ctx, testContainer("alice", "b", 59005, model.StateStopped)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Insert(ctx, testContainer("alice", "c", 0, model.StateFailed)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ports, err := db.LeasedPorts(ctx)
	if err != nil {
		t.Fatalf("LeasedPorts: %v", err)
	}

	got := make(map[int]bool)
	for _, p := range ports {
		got[p] = true
	}
	if len(got) != 2 || !got[59001] || !got[59005] {
		t.Errorf("LeasedPorts = %v, want [59001 59005]", ports)
	}
}
