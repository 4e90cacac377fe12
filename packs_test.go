package main

import (
	"database/sql"
	"errors"
	"testing"
)

func testPackStore(t *testing.T) *packStore {
	t.Helper()
	store, err := openPackStore(":memory:")
	if err != nil {
		t.Fatalf("openPackStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPackStoreCRUD(t *testing.T) {
	store := testPackStore(t)

	prompts := []string{"hot vs cold", "round vs pointy"}
	if err := store.Put("alice", "favorites", prompts); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get("alice", "favorites")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 || got[0] != prompts[0] || got[1] != prompts[1] {
		t.Errorf("Get = %v, want %v", got, prompts)
	}

	// Upsert replaces.
	if err := store.Put("alice", "favorites", []string{"up vs down"}); err != nil {
		t.Fatalf("Put (upsert): %v", err)
	}
	got, err = store.Get("alice", "favorites")
	if err != nil {
		t.Fatalf("Get after upsert: %v", err)
	}
	if len(got) != 1 || got[0] != "up vs down" {
		t.Errorf("Get after upsert = %v", got)
	}

	deleted, err := store.Delete("alice", "favorites")
	if err != nil || !deleted {
		t.Fatalf("Delete = (%v, %v), want (true, nil)", deleted, err)
	}
	if _, err := store.Get("alice", "favorites"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Get after delete: %v, want ErrNoRows", err)
	}
}

func TestPackStoreListPerUser(t *testing.T) {
	store := testPackStore(t)

	_ = store.Put("alice", "b-pack", []string{"a vs b"})
	_ = store.Put("alice", "a-pack", []string{"a vs b"})
	_ = store.Put("bob", "other", []string{"a vs b"})

	names, err := store.List("alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != "a-pack" || names[1] != "b-pack" {
		t.Errorf("List = %v, want sorted [a-pack b-pack]", names)
	}

	empty, err := store.List("nobody")
	if err != nil {
		t.Fatalf("List (empty): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("List for unknown user = %v", empty)
	}

	if deleted, _ := store.Delete("alice", "missing"); deleted {
		t.Error("Delete reported success for a missing pack")
	}
}
