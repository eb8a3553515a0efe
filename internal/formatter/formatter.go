package formatter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/maine/timeline_watch/internal/timeline"
)

const (
	// telegramMaxMessageLength - максимальная длина сообщения в Telegram (4096 символов)
	telegramMaxMessageLength = 4096
	// ellipsis - символы, добавляемые при обрезке текста поста
	ellipsis = "..."
	// linkTitle - подпись ссылки на пост
	linkTitle = "Open post"
)

// markdownEscaper экранирует служебные символы legacy Markdown в Telegram.
var markdownEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"`", "\\`",
	"[", `\[`,
)

// Formatter собирает уведомление о посте в формате Telegram Markdown.
type Formatter struct {
	maxLength int
}

// NewFormatter создаёт новый экземпляр форматтера.
func NewFormatter() *Formatter {
	return &Formatter{maxLength: telegramMaxMessageLength}
}

// Build возвращает сообщение: автор, текст поста, необязательная аннотация и ссылка.
// Если сообщение не помещается в лимит Telegram, обрезается только текст поста.
func (f *Formatter) Build(post timeline.Post, annotation string) string {
	header := fmt.Sprintf("*@%s*", EscapeMarkdown(post.Author))
	if post.Quoted && post.QuotedAuthor != "" {
		header += fmt.Sprintf(" quoting @%s", EscapeMarkdown(post.QuotedAuthor))
	}

	var footer strings.Builder
	if annotation = strings.TrimSpace(annotation); annotation != "" {
		footer.WriteString("\n\n_")
		footer.WriteString(escapeItalic(annotation))
		footer.WriteString("_")
	}
	footer.WriteString(fmt.Sprintf("\n\n[%s](%s)", linkTitle, post.URL()))

	body := EscapeMarkdown(strings.TrimSpace(post.Text))
	budget := f.maxLength - utf8.RuneCountInString(header) - utf8.RuneCountInString(footer.String()) - 2
	body = truncate(body, budget)

	var sb strings.Builder
	sb.WriteString(header)
	if body != "" {
		sb.WriteString("\n\n")
		sb.WriteString(body)
	}
	sb.WriteString(footer.String())
	return sb.String()
}

// EscapeMarkdown экранирует символы, которые Telegram трактует как разметку.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// escapeItalic готовит текст внутри _..._. Экранирование внутри сущности Telegram не поддерживает,
// поэтому подчёркивания заменяются пробелами.
func escapeItalic(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

// truncate обрезает строку до limit рун, не разрывая escape-последовательность.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(ellipsis)
	if keep <= 0 {
		return ""
	}

	runes := []rune(s)[:keep]
	if runes[len(runes)-1] == '\\' {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + ellipsis
}
