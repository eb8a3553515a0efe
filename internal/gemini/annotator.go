package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maine/timeline_watch/internal/config"
	"github.com/maine/timeline_watch/internal/timeline"
)

// maxAnnotationLength ограничивает длину аннотации в рунах.
const maxAnnotationLength = 280

// Annotator делает однострочную аннотацию поста через Gemini.
type Annotator struct {
	client   GeminiClient
	model    string
	language string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewAnnotator создаёт аннотатор.
func NewAnnotator(client GeminiClient, cfg config.Gemini, logger *zap.Logger) *Annotator {
	model := cfg.Model
	if model == "" {
		model = config.DefaultGeminiModel
	}
	language := cfg.Language
	if language == "" {
		language = "English"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultGeminiTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Annotator{
		client:   client,
		model:    model,
		language: language,
		timeout:  timeout,
		logger:   logger.Named("annotator"),
	}
}

// Annotate возвращает короткое описание поста на настроенном языке.
func (a *Annotator) Annotate(ctx context.Context, post timeline.Post) (string, error) {
	if strings.TrimSpace(post.Text) == "" {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	input, err := json.Marshal(postInput{ID: post.ID, Author: post.Author, Text: post.Text})
	if err != nil {
		return "", fmt.Errorf("marshal input: %w", err)
	}

	start := time.Now()
	responseText, err := a.client.GenerateText(ctx, a.model, a.buildPrompt(string(input)))
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}

	summary, err := parseAnnotation(responseText)
	if err != nil {
		return "", err
	}

	a.logger.Debug("Post annotated",
		zap.String("post_id", post.ID),
		zap.Duration("took", time.Since(start)),
	)
	return summary, nil
}

func (a *Annotator) buildPrompt(inputJSON string) string {
	return fmt.Sprintf(`You annotate social media posts for a notification feed.
You will receive one post as JSON with fields id, author and text.
Write a single neutral sentence in %s that says what the post is about. Do not invent facts that are not in the text.
Return only JSON without comments in the format:
{"id": "<post id>", "summary": "<one sentence>"}

Input:
%s`, a.language, inputJSON)
}

// parseAnnotation достаёт summary из ответа модели, в том числе обёрнутого в markdown code block.
func parseAnnotation(responseText string) (string, error) {
	var resp annotationResponse
	if err := json.Unmarshal([]byte(responseText), &resp); err != nil {
		cleaned := extractJSON(responseText)
		if cleaned == "" {
			return "", fmt.Errorf("unmarshal response: %w (raw: %s)", err, responseText)
		}
		if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
			return "", fmt.Errorf("unmarshal cleaned response: %w (raw: %s)", err, responseText)
		}
	}

	summary := strings.Join(strings.Fields(resp.Summary), " ")
	if summary == "" {
		return "", fmt.Errorf("empty summary in response")
	}
	if runes := []rune(summary); len(runes) > maxAnnotationLength {
		summary = string(runes[:maxAnnotationLength-3]) + "..."
	}
	return summary, nil
}

// extractJSON вырезает JSON-объект из ответа модели: снимает code block и лишний текст вокруг.
func extractJSON(text string) string {
	if start := strings.Index(text, "```"); start != -1 {
		rest := text[start+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end != -1 {
			text = rest[:end]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

type postInput struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

type annotationResponse struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}
