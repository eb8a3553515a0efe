package formatter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/maine/timeline_watch/internal/timeline"
)

func TestFormatter_Build(t *testing.T) {
	f := NewFormatter()

	tests := []struct {
		name       string
		post       timeline.Post
		annotation string
		want       string
	}{
		{
			name: "plain post",
			post: timeline.Post{ID: "1", Author: "alice", Text: "We launch today"},
			want: "*@alice*\n\nWe launch today\n\n[Open post](https://twitter.com/alice/status/1)",
		},
		{
			name: "markdown characters escaped",
			post: timeline.Post{ID: "2", Author: "dev_ops", Text: "*big* launch_v2 [beta] `now`"},
			want: "*@dev\\_ops*\n\n\\*big\\* launch\\_v2 \\[beta] \\`now\\`\n\n[Open post](https://twitter.com/dev_ops/status/2)",
		},
		{
			name:       "with annotation",
			post:       timeline.Post{ID: "3", Author: "bob", Text: "launch"},
			annotation: "  Product launch_announcement ",
			want:       "*@bob*\n\nlaunch\n\n_Product launch announcement_\n\n[Open post](https://twitter.com/bob/status/3)",
		},
		{
			name: "quoted post",
			post: timeline.Post{ID: "4", Author: "bob", Text: "launch", Quoted: true, QuotedAuthor: "carol"},
			want: "*@bob* quoting @carol\n\nlaunch\n\n[Open post](https://twitter.com/bob/status/4)",
		},
		{
			name: "empty text",
			post: timeline.Post{ID: "5", Author: "bob", Text: "   "},
			want: "*@bob*\n\n[Open post](https://twitter.com/bob/status/5)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Build(tt.post, tt.annotation)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatter_BuildTruncatesLongText(t *testing.T) {
	f := NewFormatter()
	post := timeline.Post{ID: "9", Author: "alice", Text: strings.Repeat("ы", 5000)}

	got := f.Build(post, "summary")

	assert.LessOrEqual(t, utf8.RuneCountInString(got), telegramMaxMessageLength)
	assert.Contains(t, got, ellipsis+"\n\n_summary_")
	assert.True(t, strings.HasSuffix(got, "(https://twitter.com/alice/status/9)"))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		s     string
		limit int
		want  string
	}{
		{name: "fits", s: "hello", limit: 5, want: "hello"},
		{name: "cut", s: "hello world", limit: 8, want: "hello..."},
		{name: "dangling escape dropped", s: `abcd\_xyz`, limit: 8, want: "abcd..."},
		{name: "no room", s: "hello", limit: 2, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.s, tt.limit))
		})
	}
}
