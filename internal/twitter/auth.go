package twitter

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Credentials - данные для app-only авторизации.
type Credentials struct {
	BearerToken    string
	ConsumerKey    string
	ConsumerSecret string
}

// NewHTTPClient возвращает HTTP-клиент, подписывающий запросы bearer-токеном.
// Без готового токена он получается по client credentials через tokenURL и кешируется oauth2.
func NewHTTPClient(ctx context.Context, creds Credentials, tokenURL string, timeout time.Duration) *http.Client {
	base := &http.Client{Timeout: timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	var client *http.Client
	if creds.BearerToken != "" {
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: creds.BearerToken,
			TokenType:   "Bearer",
		}))
	} else {
		cc := clientcredentials.Config{
			ClientID:     creds.ConsumerKey,
			ClientSecret: creds.ConsumerSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		client = cc.Client(ctx)
	}
	client.Timeout = timeout
	return client
}
