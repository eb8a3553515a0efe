package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/maine/timeline_watch/internal/timeline"
)

type recordingSink struct {
	mu    sync.Mutex
	ids   []string
	err   error
	delay time.Duration
}

func (s *recordingSink) Push(_ context.Context, post timeline.Post) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, post.ID)
	return nil
}

func (s *recordingSink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func TestFanout_Push(t *testing.T) {
	ok1 := &recordingSink{}
	broken := &recordingSink{err: errors.New("down")}
	ok2 := &recordingSink{}

	f := NewFanout(zaptest.NewLogger(t),
		Named{Name: "first", Sink: ok1},
		Named{Name: "broken", Sink: broken},
		Named{Name: "second", Sink: ok2},
	)
	assert.Equal(t, 3, f.Len())

	err := f.Push(context.Background(), timeline.Post{ID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: down")

	assert.Equal(t, []string{"1"}, ok1.received())
	assert.Equal(t, []string{"1"}, ok2.received())
}

func TestFanout_Empty(t *testing.T) {
	f := NewFanout(nil)
	assert.NoError(t, f.Push(context.Background(), timeline.Post{ID: "1"}))
}

func TestQueue_DeliversInOrder(t *testing.T) {
	sink := &recordingSink{delay: time.Millisecond}
	q := NewQueue("test", sink, 10, zaptest.NewLogger(t))
	q.Start(context.Background())

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, q.Push(context.Background(), timeline.Post{ID: id}))
	}
	q.Close()

	assert.Equal(t, []string{"1", "2", "3"}, sink.received())
	assert.ErrorIs(t, q.Push(context.Background(), timeline.Post{ID: "4"}), ErrQueueClosed)
}

func TestQueue_FullDrops(t *testing.T) {
	q := NewQueue("test", &recordingSink{}, 1, zaptest.NewLogger(t))

	require.NoError(t, q.Push(context.Background(), timeline.Post{ID: "1"}))
	assert.ErrorIs(t, q.Push(context.Background(), timeline.Post{ID: "2"}), ErrQueueFull)
	q.Close()
}

func TestQueue_SinkErrorDoesNotStopWorker(t *testing.T) {
	sink := &recordingSink{err: errors.New("down")}
	q := NewQueue("test", sink, 10, zaptest.NewLogger(t))
	q.Start(context.Background())

	require.NoError(t, q.Push(context.Background(), timeline.Post{ID: "1"}))
	require.NoError(t, q.Push(context.Background(), timeline.Post{ID: "2"}))
	q.Close()
	q.Close()

	assert.Empty(t, sink.received())
}
