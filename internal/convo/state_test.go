package convo

import (
	"testing"

	"github.com/google/uuid"
)

func TestSaveAndLoadCurrentConversationID(t *testing.T) {
	dir := t.TempDir()
	id := uuid.New()

	if err := SaveCurrentConversationID(dir, id); err != nil {
		t.Fatalf("SaveCurrentConversationID() error = %v", err)
	}

	loaded, err := LoadCurrentConversationID(dir)
	if err != nil {
		t.Fatalf("LoadCurrentConversationID() error = %v", err)
	}
	if loaded == nil || *loaded != id {
		t.Errorf("loaded = %v, want %v", loaded, id)
	}
}

func TestLoadCurrentConversationID_Missing(t *testing.T) {
	loaded, err := LoadCurrentConversationID(t.TempDir())
	if err != nil {
		t.Fatalf("LoadCurrentConversationID() error = %v", err)
	}
	if loaded != nil {
		t.Errorf("loaded = %v, want nil for missing state file", loaded)
	}
}

func TestClearCurrentConversationID_Idempotent(t *testing.T) {
	dir := t.TempDir()
	if err := SaveCurrentConversationID(dir, uuid.New()); err != nil {
		t.Fatal(err)
	}

	if err := ClearCurrentConversationID(dir); err != nil {
		t.Fatalf("first clear error = %v", err)
	}
	if err := ClearCurrentConversationID(dir); err != nil {
		t.Fatalf("second clear error = %v", err)
	}

	loaded, err := LoadCurrentConversationID(dir)
	if err != nil || loaded != nil {
		t.Errorf("after clear: loaded=%v err=%v, want nil/nil", loaded, err)
	}
}
