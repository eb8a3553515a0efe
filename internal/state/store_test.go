package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/maine/timeline_watch/internal/timeline"
)

func TestFileStore_Load_Save(t *testing.T) {
	tmpDir := t.TempDir()
	statePath := filepath.Join(tmpDir, "state.json")
	store := NewFileStore(statePath, zaptest.NewLogger(t))
	ctx := context.Background()

	t.Run("load non-existent file returns empty state", func(t *testing.T) {
		state, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}
		if !state.UpdatedAt.IsZero() {
			t.Errorf("Load() UpdatedAt should be zero")
		}
		if len(state.Recipients) != 0 {
			t.Errorf("Load() Recipients should be empty")
		}
	})

	t.Run("save and load state", func(t *testing.T) {
		now := time.Date(2024, 12, 3, 12, 0, 0, 0, time.UTC)
		state := timeline.State{
			UpdatedAt: now,
			Recipients: []timeline.RecipientBinding{
				{Name: "user1", ChatID: "123", UpdatedAt: now},
				{Name: "user2", ChatID: "-100456", UpdatedAt: now},
			},
			Telegram: timeline.TelegramState{
				LastUpdateID: 100,
			},
		}

		if err := store.Save(ctx, state); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		loaded, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if !loaded.UpdatedAt.Equal(state.UpdatedAt) {
			t.Errorf("Load() UpdatedAt = %v, want %v", loaded.UpdatedAt, state.UpdatedAt)
		}
		if len(loaded.Recipients) != len(state.Recipients) {
			t.Fatalf("Load() Recipients len = %v, want %v", len(loaded.Recipients), len(state.Recipients))
		}
		if loaded.Recipients[1].ChatID != "-100456" {
			t.Errorf("Load() Recipients[1].ChatID = %v, want -100456", loaded.Recipients[1].ChatID)
		}
		if loaded.Telegram.LastUpdateID != state.Telegram.LastUpdateID {
			t.Errorf("Load() LastUpdateID = %v, want %v", loaded.Telegram.LastUpdateID, state.Telegram.LastUpdateID)
		}
	})

	t.Run("load corrupted JSON returns empty state", func(t *testing.T) {
		corruptedPath := filepath.Join(tmpDir, "corrupted.json")
		corruptedStore := NewFileStore(corruptedPath, zaptest.NewLogger(t))
		if err := os.WriteFile(corruptedPath, []byte("invalid json {"), 0o644); err != nil {
			t.Fatalf("failed to write corrupted file: %v", err)
		}

		state, err := corruptedStore.Load(ctx)
		if err != nil {
			t.Fatalf("Load() should not return error for corrupted JSON, got %v", err)
		}
		if len(state.Recipients) != 0 {
			t.Errorf("Load() should return empty state for corrupted JSON")
		}

		if _, err := os.Stat(corruptedPath + ".broken"); os.IsNotExist(err) {
			t.Error("Load() should save corrupted file as .broken")
		}
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		nestedPath := filepath.Join(tmpDir, "nested", "path", "state.json")
		nestedStore := NewFileStore(nestedPath, nil)

		state := timeline.State{UpdatedAt: time.Now()}
		if err := nestedStore.Save(ctx, state); err != nil {
			t.Fatalf("Save() should create directory, error = %v", err)
		}

		if _, err := os.Stat(nestedPath); os.IsNotExist(err) {
			t.Error("Save() should create nested directory")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if err := store.Save(cancelled, timeline.State{}); err == nil {
			t.Error("Save() should fail on cancelled context")
		}
	})
}

func TestFileStore_Save_Atomic(t *testing.T) {
	tmpDir := t.TempDir()
	statePath := filepath.Join(tmpDir, "atomic.json")
	store := NewFileStore(statePath, nil)
	ctx := context.Background()

	state := timeline.State{
		UpdatedAt:  time.Now(),
		Recipients: []timeline.RecipientBinding{{Name: "test", ChatID: "1"}},
	}

	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		t.Error("Save() should create state file")
	}
	if _, err := os.Stat(statePath + ".tmp"); err == nil {
		t.Error("Save() should remove temporary file")
	}
}
