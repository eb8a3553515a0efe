package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/maine/timeline_watch/internal/timeline"
)

var (
	// ErrQueueFull возвращается, когда буфер очереди заполнен и пост отброшен.
	ErrQueueFull = errors.New("notification queue full")
	// ErrQueueClosed возвращается после Close.
	ErrQueueClosed = errors.New("notification queue closed")
)

var queueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "timeline_watch_queue_depth",
		Help: "Posts waiting in an asynchronous sink queue.",
	},
	[]string{"sink"},
)

var queueDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "timeline_watch_queue_dropped_total",
		Help: "Posts dropped because a sink queue was full.",
	},
	[]string{"sink"},
)

// Queue отвязывает медленный sink от цикла опроса: Push кладёт пост в буфер,
// один воркер доставляет посты во вложенный sink в порядке поступления.
type Queue struct {
	name   string
	sink   Sink
	logger *zap.Logger
	ch     chan timeline.Post

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewQueue создаёт очередь ёмкостью size перед sink.
func NewQueue(name string, sink Sink, size int, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		name:   name,
		sink:   sink,
		logger: logger.Named("queue").With(zap.String("sink", name)),
		ch:     make(chan timeline.Post, size),
	}
}

// Start запускает воркер. ctx передаётся во вложенный sink.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for post := range q.ch {
			queueDepth.WithLabelValues(q.name).Set(float64(len(q.ch)))
			if err := q.sink.Push(ctx, post); err != nil {
				q.logger.Error("Queued delivery failed",
					zap.String("post_id", post.ID),
					zap.Error(err),
				)
			}
		}
	}()
}

// Push ставит пост в очередь, не дожидаясь доставки.
func (q *Queue) Push(ctx context.Context, post timeline.Post) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ch <- post:
		queueDepth.WithLabelValues(q.name).Set(float64(len(q.ch)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		queueDropped.WithLabelValues(q.name).Inc()
		q.logger.Warn("Queue full, dropping notification", zap.String("post_id", post.ID))
		return ErrQueueFull
	}
}

// Close перестаёт принимать посты и ждёт доставки уже поставленных.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	q.wg.Wait()
}
