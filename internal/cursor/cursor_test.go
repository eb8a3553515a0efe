package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maine/timeline_watch/internal/timeline"
)

func posts(ids ...string) []timeline.Post {
	out := make([]timeline.Post, 0, len(ids))
	for _, id := range ids {
		out = append(out, timeline.Post{ID: id, Author: "alice"})
	}
	return out
}

func TestCursor_BoundsForNextFetch(t *testing.T) {
	c := New()

	_, ok := c.BoundsForNextFetch(true)
	assert.False(t, ok, "bootstrap has no lower bound")

	_, ok = c.BoundsForNextFetch(false)
	assert.False(t, ok, "unset cursor has no lower bound")

	c.Advance(posts("105", "104"))

	since, ok := c.BoundsForNextFetch(false)
	require.True(t, ok)
	assert.Equal(t, "105", since)

	_, ok = c.BoundsForNextFetch(true)
	assert.False(t, ok, "bootstrap ignores the cursor")
}

func TestCursor_Advance(t *testing.T) {
	tests := []struct {
		name    string
		start   []string
		batch   []string
		want    string
		wantSet bool
	}{
		{name: "empty batch on unset cursor", batch: nil, wantSet: false},
		{name: "first batch sets newest", batch: []string{"30", "20", "10"}, want: "30", wantSet: true},
		{name: "empty batch keeps value", start: []string{"30"}, batch: nil, want: "30", wantSet: true},
		{name: "newer batch advances", start: []string{"30"}, batch: []string{"45", "31"}, want: "45", wantSet: true},
		{name: "older batch never regresses", start: []string{"45"}, batch: []string{"40"}, want: "45", wantSet: true},
		{name: "longer decimal id is newer", start: []string{"999"}, batch: []string{"1000"}, want: "1000", wantSet: true},
		{name: "missing id on newest falls through", start: []string{"10"}, batch: []string{"", "12", "11"}, want: "12", wantSet: true},
		{name: "batch without ids is ignored", start: []string{"10"}, batch: []string{"", ""}, want: "10", wantSet: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			if tt.start != nil {
				c.Advance(posts(tt.start...))
			}
			c.Advance(posts(tt.batch...))

			got, ok := c.Value()
			assert.Equal(t, tt.wantSet, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCursor_NeverRegresses(t *testing.T) {
	c := New()
	batches := [][]string{
		{"1500000000000000002", "1500000000000000001"},
		{"1499999999999999999"},
		{"1500000000000000010"},
		{"98"},
		{"1500000000000000009", "1500000000000000008"},
	}

	prev := ""
	for _, batch := range batches {
		c.Advance(posts(batch...))
		got, ok := c.Value()
		require.True(t, ok)
		if prev != "" {
			assert.GreaterOrEqual(t, CompareIDs(got, prev), 0, "cursor moved from %s to %s", prev, got)
		}
		prev = got
	}
	assert.Equal(t, "1500000000000000010", prev)
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"10", "9", 1},
		{"0010", "10", 0},
		{"1500000000000000001", "1500000000000000001", 0},
		{"abc", "abd", -1},
		{"b", "a", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareIDs(tt.a, tt.b), "CompareIDs(%q, %q)", tt.a, tt.b)
	}
}
