package config

import (
	"fmt"
	"os"
)

// EnvConfig содержит токены и другие секреты из переменных окружения.
type EnvConfig struct {
	TwitterBearerToken    string
	TwitterConsumerKey    string
	TwitterConsumerSecret string
	TelegramBotToken      string
	GeminiAPIKey          string
	WebhookAuthToken      string
}

// LoadEnvConfig читает переменные окружения и проверяет их против включённых компонентов.
// Возвращает ошибку, если обязательные переменные отсутствуют или пустые.
func LoadEnvConfig(root Root) (*EnvConfig, error) {
	env := &EnvConfig{
		TwitterBearerToken:    os.Getenv("TWITTER_BEARER_TOKEN"),
		TwitterConsumerKey:    os.Getenv("TWITTER_CONSUMER_KEY"),
		TwitterConsumerSecret: os.Getenv("TWITTER_CONSUMER_SECRET"),
		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		GeminiAPIKey:          os.Getenv("GEMINI_API_KEY"),
		WebhookAuthToken:      os.Getenv("WEBHOOK_AUTH_TOKEN"),
	}

	// Bearer-токен приоритетнее пары ключей: с ним не нужен отдельный запрос за токеном
	if env.TwitterBearerToken == "" && (env.TwitterConsumerKey == "" || env.TwitterConsumerSecret == "") {
		return nil, fmt.Errorf("%w: TWITTER_BEARER_TOKEN or TWITTER_CONSUMER_KEY and TWITTER_CONSUMER_SECRET environment variables are required", ErrInvalid)
	}
	if root.Telegram.Enabled && env.TelegramBotToken == "" {
		return nil, fmt.Errorf("%w: TELEGRAM_BOT_TOKEN environment variable is required when telegram is enabled", ErrInvalid)
	}
	if root.Gemini.Enabled && env.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY environment variable is required when gemini is enabled", ErrInvalid)
	}

	return env, nil
}
