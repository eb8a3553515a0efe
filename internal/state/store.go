package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/maine/timeline_watch/internal/timeline"
)

// FileStore хранит состояние подписчиков в JSON-файле.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewFileStore создаёт новый файловый стор.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger.Named("state")}
}

// Path возвращает путь к файлу состояния.
func (s *FileStore) Path() string {
	return s.path
}

// Load читает состояние из файла. Отсутствующий файл означает пустое состояние.
func (s *FileStore) Load(ctx context.Context) (timeline.State, error) {
	if err := ctx.Err(); err != nil {
		return timeline.State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return timeline.State{}, nil
		}
		return timeline.State{}, fmt.Errorf("read state file: %w", err)
	}

	var state timeline.State
	if err := json.Unmarshal(data, &state); err != nil {
		// Повреждённый файл сохраняется рядом с суффиксом .broken, работа продолжается с пустым состоянием
		brokenPath := s.path + ".broken"
		if werr := os.WriteFile(brokenPath, data, 0o644); werr != nil {
			s.logger.Warn("Failed to keep broken state file", zap.String("path", brokenPath), zap.Error(werr))
		}
		s.logger.Warn("State file is corrupted, starting with empty state",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return timeline.State{}, nil
	}

	return state, nil
}

// Save записывает состояние в файл атомарно (через временный файл).
func (s *FileStore) Save(ctx context.Context, state timeline.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp state file: %w", err)
	}

	return nil
}
