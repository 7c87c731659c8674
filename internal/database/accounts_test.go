package database

import (
	"context"
	"errors"
	"testing"

	"cc-wager-escrow-go/internal/store"
)

func TestAccounts_CreateAndLookup(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	account, err := service.CreateAccount(ctx, "acct-1", "MagnusFan", true)
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if account.DisplayName != "MagnusFan" || !account.Linked {
		t.Errorf("Unexpected account: %+v", account)
	}

	// Idempotent on id
	if _, err := service.CreateAccount(ctx, "acct-1", "MagnusFan", true); err != nil {
		t.Errorf("Repeated CreateAccount failed: %v", err)
	}

	found, err := service.FindLinkedAccountByName(ctx, "  magnusfan ")
	if err != nil {
		t.Fatalf("FindLinkedAccountByName failed: %v", err)
	}
	if found.Id != "acct-1" {
		t.Errorf("Expected acct-1, got %s", found.Id)
	}

	if _, err := service.GetAccount(ctx, "acct-404"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccounts_DisplayNameCollision(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := service.CreateAccount(ctx, "acct-1", "Rook", true); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if _, err := service.CreateAccount(ctx, "acct-2", "ROOK", true); err == nil {
		t.Fatal("Expected case-insensitive display name collision to fail")
	}
}

func TestAccounts_UnlinkedHiddenFromLookup(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := service.CreateAccount(ctx, "acct-1", "Knight", true); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if _, err := service.CreateAccount(ctx, "acct-2", "Bishop", true); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := service.SetLinked(ctx, "acct-2", false); err != nil {
		t.Fatalf("SetLinked failed: %v", err)
	}

	if _, err := service.FindLinkedAccountByName(ctx, "bishop"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("Expected unlinked account to be hidden, got %v", err)
	}

	linked, err := service.ListLinkedAccounts(ctx)
	if err != nil {
		t.Fatalf("ListLinkedAccounts failed: %v", err)
	}
	if len(linked) != 1 || linked[0].Id != "acct-1" {
		t.Errorf("Expected only acct-1 linked, got %+v", linked)
	}

	all, _ := service.ListAccounts(ctx)
	if len(all) != 2 {
		t.Errorf("Expected 2 accounts, got %d", len(all))
	}

	if err := service.SetLinked(ctx, "acct-404", true); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}
}
