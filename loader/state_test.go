package loader

import (
	"path/filepath"
	"testing"
)

func TestStateStorePersistAndRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := OpenStateStore(path)
	if err != nil {
		t.Fatalf("OpenStateStore: %v", err)
	}
	defer store.Close()

	entries := []*PluginEntry{
		{Name: "random", Critical: true},
		{Name: "nonce", Critical: false},
	}
	if err := store.Persist(entries); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	list, err := store.RestoreList()
	if err != nil {
		t.Fatalf("RestoreList: %v", err)
	}
	if list != "random! nonce" {
		t.Fatalf("RestoreList() = %q, want %q", list, "random! nonce")
	}
}

func TestStateStorePersistReplacesPriorState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := OpenStateStore(path)
	if err != nil {
		t.Fatalf("OpenStateStore: %v", err)
	}
	defer store.Close()

	_ = store.Persist([]*PluginEntry{{Name: "old-plugin"}})
	_ = store.Persist([]*PluginEntry{{Name: "new-plugin"}})

	list, err := store.RestoreList()
	if err != nil {
		t.Fatalf("RestoreList: %v", err)
	}
	if list != "new-plugin" {
		t.Fatalf("RestoreList() = %q, want only the most recently persisted state", list)
	}
}

func TestRestoreStateWithoutStoreErrors(t *testing.T) {
	l := NewLoader(noopResolver{})
	if _, err := l.RestoreState(); err == nil {
		t.Fatal("expected error when no StateStore is configured")
	}
}
