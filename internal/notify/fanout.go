package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/maine/timeline_watch/internal/timeline"
)

// Sink принимает пост для уведомления.
type Sink interface {
	Push(ctx context.Context, post timeline.Post) error
}

// Named связывает sink с именем для логов и ошибок.
type Named struct {
	Name string
	Sink Sink
}

// Fanout отправляет каждый пост во все sink по порядку.
// Ошибка одного sink не мешает остальным; все ошибки объединяются.
type Fanout struct {
	sinks  []Named
	logger *zap.Logger
}

// NewFanout создаёт fanout. Пустой список допустим: Push тогда ничего не делает.
func NewFanout(logger *zap.Logger, sinks ...Named) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{sinks: sinks, logger: logger.Named("fanout")}
}

// Len возвращает число подключённых sink.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Push передаёт пост каждому sink.
func (f *Fanout) Push(ctx context.Context, post timeline.Post) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Sink.Push(ctx, post); err != nil {
			f.logger.Warn("Sink rejected post",
				zap.String("sink", s.Name),
				zap.String("post_id", post.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
