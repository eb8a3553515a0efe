package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maine/timeline_watch/internal/timeline"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestOpen_CreatesDatabase(t *testing.T) {
	_, path := openTestStore(t)
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestStore_PushAndRecent(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	tick := base
	s.now = func() time.Time { return tick }

	first := timeline.Post{
		ID:             "101",
		Author:         "alice",
		Text:           "We launch today",
		MentionedUsers: []string{"bob"},
		CreatedAt:      base.Add(-time.Minute),
	}
	second := timeline.Post{ID: "102", Author: "carol", Text: "launch <b>", Quoted: true, QuotedAuthor: "dave"}

	require.NoError(t, s.Push(ctx, first))
	tick = base.Add(time.Second)
	require.NoError(t, s.Push(ctx, second))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "102", entries[0].Post.ID)
	assert.True(t, entries[0].Post.Quoted)
	assert.Equal(t, "dave", entries[0].Post.QuotedAuthor)
	assert.Empty(t, entries[0].Post.MentionedUsers)
	assert.True(t, entries[0].Post.CreatedAt.IsZero())

	assert.Equal(t, "101", entries[1].Post.ID)
	assert.Equal(t, []string{"bob"}, entries[1].Post.MentionedUsers)
	assert.Equal(t, first.CreatedAt, entries[1].Post.CreatedAt)
	assert.Equal(t, base, entries[1].NotifiedAt)
	assert.Equal(t, "https://twitter.com/alice/status/101", entries[1].URL)
}

func TestStore_PushIgnoresDuplicates(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	post := timeline.Post{ID: "7", Author: "alice", Text: "launch"}
	require.NoError(t, s.Push(ctx, post))
	post.Text = "edited"
	require.NoError(t, s.Push(ctx, post))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "launch", entries[0].Post.Text)
}

func TestStore_RecentLimit(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.Push(ctx, timeline.Post{ID: id, Author: "a", Text: "launch"}))
	}

	entries, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
