package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/maine/timeline_watch/internal/config"
	"github.com/maine/timeline_watch/internal/timeline"
)

// mockGeminiClient - мок для тестирования Annotator
type mockGeminiClient struct {
	generateTextFunc func(ctx context.Context, model string, prompt string) (string, error)
}

func (m *mockGeminiClient) GenerateText(ctx context.Context, model string, prompt string) (string, error) {
	if m.generateTextFunc != nil {
		return m.generateTextFunc(ctx, model, prompt)
	}
	return "", errors.New("not implemented")
}

func TestAnnotator_Annotate(t *testing.T) {
	post := timeline.Post{ID: "1800", Author: "alice", Text: "We launch the new API today"}

	tests := []struct {
		name     string
		response string
		err      error
		want     string
		wantErr  bool
	}{
		{
			name:     "plain json",
			response: `{"id": "1800", "summary": "Alice announces a new API launch."}`,
			want:     "Alice announces a new API launch.",
		},
		{
			name:     "json in code block",
			response: "Here you go:\n```json\n{\"id\": \"1800\", \"summary\": \"API launch\\n today.\"}\n```",
			want:     "API launch today.",
		},
		{
			name:     "empty summary",
			response: `{"id": "1800", "summary": "  "}`,
			wantErr:  true,
		},
		{
			name:     "garbage",
			response: "I cannot help with that",
			wantErr:  true,
		},
		{
			name:    "client error",
			err:     errors.New("gemini API quota exceeded"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockGeminiClient{
				generateTextFunc: func(ctx context.Context, model string, prompt string) (string, error) {
					assert.Equal(t, "models/test", model)
					assert.Contains(t, prompt, "Russian")
					assert.Contains(t, prompt, `"text":"We launch the new API today"`)
					_, hasDeadline := ctx.Deadline()
					assert.True(t, hasDeadline)
					return tt.response, tt.err
				},
			}
			annotator := NewAnnotator(client, config.Gemini{Model: "models/test", Language: "Russian", Timeout: time.Second}, zaptest.NewLogger(t))

			got, err := annotator.Annotate(context.Background(), post)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnnotator_EmptyTextSkipsModel(t *testing.T) {
	annotator := NewAnnotator(&mockGeminiClient{}, config.Gemini{}, nil)
	got, err := annotator.Annotate(context.Background(), timeline.Post{ID: "1", Author: "a", Text: " "})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseAnnotation_Truncates(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got, err := parseAnnotation(`{"summary": "` + long + `"}`)
	require.NoError(t, err)
	assert.Len(t, []rune(got), maxAnnotationLength)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         string
		rpd         bool
		rateLimit   bool
		unavailable bool
		temporary   bool
	}{
		{name: "daily quota", err: "Error 429, Quota exceeded for metric generate_content_free_tier_requests, limit: 20", rpd: true},
		{name: "rpm", err: "Error 429: RESOURCE_EXHAUSTED", rateLimit: true},
		{name: "overloaded", err: "Error 503: The model is overloaded", unavailable: true},
		{name: "bad gateway", err: "Error 502: Bad Gateway", temporary: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.rpd, isRPDQuotaError(tt.err))
			assert.Equal(t, tt.rateLimit, isRateLimitError(tt.err))
			assert.Equal(t, tt.unavailable, isServiceUnavailableError(tt.err))
			assert.Equal(t, tt.temporary, isTemporaryError(tt.err))
		})
	}
}
