package timeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedPost возвращается, когда у поста из ленты нет обязательных полей.
var ErrMalformedPost = errors.New("malformed post")

// Post описывает пост из ленты списка после получения от клиента.
// Text переписывается один раз (HTML-unescape) перед отправкой в sink, остальные поля не меняются.
type Post struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	Author         string    `json:"author"`
	IsRetweet      bool      `json:"is_retweet"`
	Quoted         bool      `json:"quoted"`                  // пост цитирует другой пост
	QuotedAuthor   string    `json:"quoted_author,omitempty"` // пусто, если Quoted == false
	MentionedUsers []string  `json:"mentioned_users,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate проверяет, что пост можно безопасно пропустить через фильтр.
func (p Post) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: missing id", ErrMalformedPost)
	case p.Author == "":
		return fmt.Errorf("%w: post %s has no author", ErrMalformedPost, p.ID)
	case p.Quoted && p.QuotedAuthor == "":
		return fmt.Errorf("%w: post %s quotes a post without author", ErrMalformedPost, p.ID)
	default:
		return nil
	}
}

// URL возвращает постоянную ссылку на пост.
func (p Post) URL() string {
	return fmt.Sprintf("https://twitter.com/%s/status/%s", p.Author, p.ID)
}

// FetchRequest описывает один запрос ленты списка.
type FetchRequest struct {
	ListID          string
	SinceID         string // пусто - без нижней границы (bootstrap)
	Count           int
	ExcludeRetweets bool
}

// Verdict - результат проверки поста фильтром.
type Verdict string

const (
	VerdictAccept          Verdict = "accept"
	VerdictRetweet         Verdict = "retweet"
	VerdictNoMatch         Verdict = "no_match"
	VerdictExcludedAuthor  Verdict = "excluded_author"
	VerdictExcludedQuote   Verdict = "excluded_quote"
	VerdictExcludedMention Verdict = "excluded_mention"
)

// State хранит служебное состояние подписчиков Telegram между запусками.
// Курсор ленты сюда не входит, он живёт только в памяти процесса.
type State struct {
	UpdatedAt  time.Time          `json:"updated_at"`
	Recipients []RecipientBinding `json:"recipients"`
	Telegram   TelegramState      `json:"telegram"`
}

// RecipientBinding хранит известные чаты для рассылки.
type RecipientBinding struct {
	Name      string    `json:"name"`
	ChatID    string    `json:"chat_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TelegramState хранит служебную информацию для взаимодействия с Bot API.
type TelegramState struct {
	LastUpdateID int64 `json:"last_update_id"`
}
