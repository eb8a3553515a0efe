package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maine/timeline_watch/internal/timeline"
)

// Client получает ленту списка через Twitter API v1.1.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient создаёт клиента. httpClient должен уже добавлять авторизацию (см. NewHTTPClient).
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		client:  httpClient,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// FetchListTimeline возвращает посты списка от новых к старым.
// Все ошибки возвращаются как *timeline.FetchError.
func (c *Client) FetchListTimeline(ctx context.Context, req timeline.FetchRequest) ([]timeline.Post, error) {
	params := url.Values{}
	params.Set("list_id", req.ListID)
	params.Set("count", strconv.Itoa(req.Count))
	params.Set("include_rts", strconv.FormatBool(!req.ExcludeRetweets))
	params.Set("tweet_mode", "extended")
	if req.SinceID != "" {
		params.Set("since_id", req.SinceID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/lists/statuses.json?"+params.Encode(), nil)
	if err != nil {
		return nil, &timeline.FetchError{Kind: timeline.FetchErrorProtocol, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		kind := timeline.FetchErrorTransport
		if errors.Is(err, context.DeadlineExceeded) {
			kind = timeline.FetchErrorTimeout
		}
		return nil, &timeline.FetchError{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, statusError(resp)
	}

	var tweets []apiTweet
	if err := json.NewDecoder(resp.Body).Decode(&tweets); err != nil {
		return nil, &timeline.FetchError{Kind: timeline.FetchErrorProtocol, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode timeline: %w", err)}
	}

	posts := make([]timeline.Post, 0, len(tweets))
	for _, t := range tweets {
		posts = append(posts, t.toPost())
	}
	return posts, nil
}

func statusError(resp *http.Response) *timeline.FetchError {
	fe := &timeline.FetchError{StatusCode: resp.StatusCode}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		fe.Kind = timeline.FetchErrorAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		fe.Kind = timeline.FetchErrorRateLimit
		if reset, err := strconv.ParseInt(resp.Header.Get("x-rate-limit-reset"), 10, 64); err == nil && reset > 0 {
			fe.RetryAt = time.Unix(reset, 0)
		}
	case resp.StatusCode >= 500:
		fe.Kind = timeline.FetchErrorTransport
	default:
		fe.Kind = timeline.FetchErrorProtocol
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && len(apiErr.Errors) > 0 {
		fe.Err = fmt.Errorf("twitter api: %s", apiErr.message())
	} else {
		fe.Err = fmt.Errorf("twitter api status %d", resp.StatusCode)
	}
	return fe
}
