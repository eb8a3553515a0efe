package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maine/timeline_watch/internal/config"
	"github.com/maine/timeline_watch/internal/textnorm"
	"github.com/maine/timeline_watch/internal/timeline"
)

// ErrEmptyQuery возвращается, если запрос после нормализации пуст и совпал бы с любым постом.
var ErrEmptyQuery = errors.New("query is empty after normalization")

// Filter решает, нужно ли уведомлять о посте. Запросы нормализуются один раз при создании.
type Filter struct {
	queries  []string
	excluded map[string]struct{}
}

// New создаёт фильтр из политики. Ошибка здесь - ошибка конфигурации.
func New(policy config.Policy) (*Filter, error) {
	if len(policy.Queries) == 0 {
		return nil, fmt.Errorf("%w: no queries", config.ErrInvalid)
	}

	queries := make([]string, 0, len(policy.Queries))
	seen := make(map[string]struct{}, len(policy.Queries))
	for _, raw := range policy.Queries {
		q := textnorm.Normalize(raw)
		if q == "" {
			return nil, fmt.Errorf("%w: %w: %q", config.ErrInvalid, ErrEmptyQuery, raw)
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
	}

	// Имена пользователей сравниваются как есть, с учётом регистра
	excluded := make(map[string]struct{}, len(policy.ExcludedUsers))
	for _, u := range policy.ExcludedUsers {
		excluded[u] = struct{}{}
	}

	return &Filter{queries: queries, excluded: excluded}, nil
}

// Queries возвращает нормализованные запросы в исходном порядке (без дублей).
func (f *Filter) Queries() []string {
	out := make([]string, len(f.queries))
	copy(out, f.queries)
	return out
}

// ShouldNotify сообщает, подходит ли пост для уведомления.
func (f *Filter) ShouldNotify(post timeline.Post) bool {
	return f.Evaluate(post) == timeline.VerdictAccept
}

// Evaluate проверяет правила по порядку и возвращает первое сработавшее.
// Текст поста ожидается в сыром виде из ленты: HTML-сущности раскрываются здесь.
func (f *Filter) Evaluate(post timeline.Post) timeline.Verdict {
	if post.IsRetweet {
		return timeline.VerdictRetweet
	}

	if !f.matches(textnorm.Normalize(textnorm.UnescapeEntities(post.Text))) {
		return timeline.VerdictNoMatch
	}

	if f.isExcluded(post.Author) {
		return timeline.VerdictExcludedAuthor
	}
	if post.Quoted && f.isExcluded(post.QuotedAuthor) {
		return timeline.VerdictExcludedQuote
	}
	for _, mentioned := range post.MentionedUsers {
		if f.isExcluded(mentioned) {
			return timeline.VerdictExcludedMention
		}
	}

	return timeline.VerdictAccept
}

func (f *Filter) matches(normalized string) bool {
	for _, q := range f.queries {
		if strings.Contains(normalized, q) {
			return true
		}
	}
	return false
}

func (f *Filter) isExcluded(user string) bool {
	if user == "" {
		return false
	}
	_, ok := f.excluded[user]
	return ok
}
