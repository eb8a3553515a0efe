package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	// maxRetries - уведомление ждёт аннотацию недолго, поэтому попыток немного
	maxRetries = 3
	// baseDelay - задержка перед повтором при временных ошибках
	baseDelay = 2 * time.Second
	// rateLimitDelay - пауза после 429 (RPM/TPM)
	rateLimitDelay = 10 * time.Second
	// serviceUnavailableDelay - пауза после 503 (модель перегружена)
	serviceUnavailableDelay = 20 * time.Second
)

// GeminiClient определяет интерфейс для работы с Gemini API.
// Это позволяет легко создавать моки для тестирования.
type GeminiClient interface {
	GenerateText(ctx context.Context, model string, prompt string) (string, error)
}

// Client инкапсулирует работу с Gemini API через официальный SDK.
type Client struct {
	client *genai.Client
	logger *zap.Logger
}

// Убеждаемся, что Client реализует интерфейс GeminiClient.
var _ GeminiClient = (*Client)(nil)

// NewClient создаёт новый клиент для работы с Gemini API. apiKey обязателен.
func NewClient(ctx context.Context, apiKey string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{
		client: client,
		logger: logger.Named("gemini"),
	}, nil
}

// GenerateText отправляет запрос к Gemini API и возвращает текстовый ответ.
// Временные ошибки (429 RPM/TPM, 500, 502, 503, 504) повторяются, исчерпанная дневная квота - нет.
func (c *Client) GenerateText(ctx context.Context, model string, prompt string) (string, error) {
	var lastErr error
	delay := baseDelay

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying Gemini API request",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", maxRetries),
				zap.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
		if err == nil {
			text, textErr := result.Text()
			if textErr != nil {
				return "", fmt.Errorf("get text from result: %w", textErr)
			}
			return text, nil
		}

		lastErr = err
		errStr := err.Error()

		switch {
		case isRPDQuotaError(errStr):
			c.logger.Error("Gemini daily quota exceeded", zap.Error(err))
			return "", fmt.Errorf("gemini API RPD quota exceeded (daily limit reached): %w", err)
		case isRateLimitError(errStr):
			c.logger.Warn("Gemini rate limit (RPM/TPM)", zap.Error(err))
			delay = rateLimitDelay
		case isServiceUnavailableError(errStr):
			c.logger.Warn("Gemini model overloaded", zap.Error(err))
			delay = serviceUnavailableDelay
		case isTemporaryError(errStr):
			c.logger.Warn("Temporary error from Gemini API", zap.Error(err))
			delay = baseDelay * time.Duration(attempt+1)
		case isQuotaExceededError(errStr):
			return "", fmt.Errorf("gemini API quota exceeded: %w", err)
		default:
			return "", fmt.Errorf("generate content: %w", err)
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRPDQuotaError проверяет, является ли ошибка 429 связанной с дневным лимитом запросов.
func isRPDQuotaError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	if !strings.Contains(errLower, "429") {
		return false
	}
	return strings.Contains(errLower, "limit: 20") ||
		strings.Contains(errLower, "generate_content_free_tier_requests") ||
		strings.Contains(errLower, "perday")
}

// isRateLimitError проверяет, является ли ошибка rate limit (RPM/TPM), но не дневной квотой.
func isRateLimitError(errStr string) bool {
	if isRPDQuotaError(errStr) {
		return false
	}
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "rate limit") ||
		strings.Contains(errLower, "429") ||
		strings.Contains(errLower, "too many requests") ||
		strings.Contains(errLower, "resource exhausted") ||
		strings.Contains(errLower, "resource_exhausted")
}

// isServiceUnavailableError проверяет, является ли ошибка 503 (Service Unavailable).
func isServiceUnavailableError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "503") ||
		strings.Contains(errLower, "service unavailable") ||
		strings.Contains(errLower, "overloaded")
}

// isTemporaryError проверяет, является ли ошибка временной (500, 502, 504).
func isTemporaryError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "500") ||
		strings.Contains(errLower, "502") ||
		strings.Contains(errLower, "504") ||
		strings.Contains(errLower, "internal server error") ||
		strings.Contains(errLower, "bad gateway") ||
		strings.Contains(errLower, "gateway timeout")
}

// isQuotaExceededError проверяет другие признаки исчерпанной квоты.
func isQuotaExceededError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "daily limit") ||
		strings.Contains(errLower, "403")
}
