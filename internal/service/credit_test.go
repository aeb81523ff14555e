package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dockhive/dockhive/internal/apperror"
	"github.com/dockhive/dockhive/internal/model"
)

func newCreditFixture(t *testing.T) (*CreditService, *memUsers, *memCredits) {
	t.Helper()

	users := newMemUsers()
	credits := newMemCredits()
	svc := NewCreditService(credits, users, testLogger)

	for _, u := range []*model.User{
		{Username: "root", Email: "root@example.com", Admin: true, Verified: true},
		{Username: "alice", Email: "alice@example.com", Verified: true},
	} {
		if err := users.Create(context.Background(), u); err != nil {
			t.Fatalf("Create %s: %v", u.Username, err)
		}
	}

	return svc, users, credits
}

func TestBalance_DefaultsToZero(t *testing.T) {
	svc, _, _ := newCreditFixture(t)

	balance, err := svc.Balance(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
}

func TestSetCredits_AdminSetsAbsoluteValue(t *testing.T) {
	svc, _, credits := newCreditFixture(t)
	ctx := context.Background()

	if err := credits.SetBalance(ctx, "alice", 10); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}

	if err := svc.SetCredits(ctx, "root", "alice", 100); err != nil {
		t.Fatalf("SetCredits: %v", err)
	}

	balance, err := svc.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 100 {
		t.Errorf("balance = %d, want 100 (absolute set, not increment)", balance)
	}
}

func TestSetCredits_NonAdminForbidden(t *testing.T) {
	svc, _, _ := newCreditFixture(t)

	err := svc.SetCredits(context.Background(), "alice", "alice", 1_000_000)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestSetCredits_UnknownTarget(t *testing.T) {
	svc, _, _ := newCreditFixture(t)

	err := svc.SetCredits(context.Background(), "root", "ghost", 100)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}
