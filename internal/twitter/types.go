package twitter

import (
	"strings"
	"time"

	"github.com/maine/timeline_watch/internal/timeline"
)

// apiTweet - подмножество объекта Tweet из API v1.1, нужное наблюдателю.
type apiTweet struct {
	IDStr           string      `json:"id_str"`
	Text            string      `json:"text"`
	FullText        string      `json:"full_text"`
	CreatedAt       string      `json:"created_at"`
	User            *apiUser    `json:"user"`
	RetweetedStatus *apiTweet   `json:"retweeted_status"`
	QuotedStatus    *apiTweet   `json:"quoted_status"`
	Entities        apiEntities `json:"entities"`
}

type apiUser struct {
	ScreenName string `json:"screen_name"`
}

type apiEntities struct {
	UserMentions []apiUser `json:"user_mentions"`
}

type apiErrorResponse struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (r apiErrorResponse) message() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// toPost переводит твит в пост ленты. Недостающие поля не отбрасывают пост:
// решение о пропуске принимает цикл опроса через Post.Validate, чтобы курсор всё равно сдвинулся.
func (t apiTweet) toPost() timeline.Post {
	text := t.FullText
	if text == "" {
		text = t.Text
	}

	post := timeline.Post{
		ID:        t.IDStr,
		Text:      text,
		IsRetweet: t.RetweetedStatus != nil,
		Quoted:    t.QuotedStatus != nil,
	}
	if t.User != nil {
		post.Author = t.User.ScreenName
	}
	if t.QuotedStatus != nil && t.QuotedStatus.User != nil {
		post.QuotedAuthor = t.QuotedStatus.User.ScreenName
	}
	for _, m := range t.Entities.UserMentions {
		if m.ScreenName != "" {
			post.MentionedUsers = append(post.MentionedUsers, m.ScreenName)
		}
	}
	if created, err := time.Parse(time.RubyDate, t.CreatedAt); err == nil {
		post.CreatedAt = created
	}
	return post
}
