package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/maine/timeline_watch/internal/config"
	"github.com/maine/timeline_watch/internal/timeline"
)

const (
	// retryAttempts - количество попыток отправки при ошибке
	retryAttempts = 3
	// retryDelay - базовая задержка между попытками
	retryDelay = 2 * time.Second
	// maxRetryDelay - верхняя граница задержки
	maxRetryDelay = 10 * time.Second
	// parseMode - разметка сообщений
	parseMode = "Markdown"
)

// ErrNoRecipients возвращается, если уведомление некому отправить.
var ErrNoRecipients = errors.New("no telegram recipients")

// MessageFormatter собирает текст уведомления.
type MessageFormatter interface {
	Build(post timeline.Post, annotation string) string
}

// Annotator добавляет к посту короткую аннотацию (например, от Gemini).
type Annotator interface {
	Annotate(ctx context.Context, post timeline.Post) (string, error)
}

// StateStore хранит состояние подписчиков между запусками.
type StateStore interface {
	Load(ctx context.Context) (timeline.State, error)
	Save(ctx context.Context, state timeline.State) error
}

// SenderDeps перечисляет зависимости отправителя.
type SenderDeps struct {
	Client     TelegramClient
	Recipients *RecipientManager
	Store      StateStore
	Formatter  MessageFormatter
	Annotator  Annotator
	Logger     *zap.Logger
	Config     config.Telegram
}

// Sender доставляет уведомление о посте всем получателям Telegram с учётом rate limit и retry-логики.
type Sender struct {
	client     TelegramClient
	manager    *RecipientManager
	store      StateStore
	formatter  MessageFormatter
	annotator  Annotator
	logger     *zap.Logger
	limiter    *rate.Limiter
	refresh    time.Duration
	retryDelay time.Duration
	now        func() time.Time

	mu          sync.Mutex
	state       timeline.State
	loaded      bool
	recipients  []timeline.RecipientBinding
	refreshedAt time.Time
}

// NewSender создаёт новый экземпляр отправителя.
func NewSender(deps SenderDeps) (*Sender, error) {
	if deps.Client == nil || deps.Recipients == nil || deps.Formatter == nil {
		return nil, fmt.Errorf("telegram sender: client, recipients and formatter are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	perSecond := deps.Config.MessagesPerSecond
	if perSecond <= 0 {
		perSecond = config.DefaultMessagesPerSecond
	}
	refresh := deps.Config.RecipientsRefresh
	if refresh <= 0 {
		refresh = config.DefaultRecipientsRefresh
	}

	return &Sender{
		client:     deps.Client,
		manager:    deps.Recipients,
		store:      deps.Store,
		formatter:  deps.Formatter,
		annotator:  deps.Annotator,
		logger:     logger.Named("telegram"),
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		refresh:    refresh,
		retryDelay: retryDelay,
		now:        time.Now,
	}, nil
}

// Push форматирует пост и отправляет его каждому получателю.
// Ошибка отдельного получателя не прерывает рассылку; ошибка возвращается, только если не доставлено никому.
func (s *Sender) Push(ctx context.Context, post timeline.Post) error {
	recipients, err := s.currentRecipients(ctx)
	if err != nil && len(recipients) == 0 {
		return fmt.Errorf("resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		return ErrNoRecipients
	}

	message := s.formatter.Build(post, s.annotate(ctx, post))

	sentCount := 0
	var errs []error
	for _, recipient := range recipients {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		if err := s.sendWithRetry(ctx, recipient.ChatID, message); err != nil {
			messagesTotal.WithLabelValues("failed").Inc()
			s.logger.Error("Failed to send message",
				zap.String("recipient", recipient.Name),
				zap.String("chat_id", recipient.ChatID),
				zap.String("post_id", post.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("chat %s: %w", recipient.ChatID, err))
			continue
		}

		messagesTotal.WithLabelValues("sent").Inc()
		sentCount++
	}

	s.logger.Info("Notification delivered",
		zap.String("post_id", post.ID),
		zap.Int("sent", sentCount),
		zap.Int("recipients", len(recipients)),
	)
	if sentCount == 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Recipients возвращает текущий список получателей, обновляя его при необходимости.
func (s *Sender) Recipients(ctx context.Context) ([]timeline.RecipientBinding, error) {
	return s.currentRecipients(ctx)
}

func (s *Sender) annotate(ctx context.Context, post timeline.Post) string {
	if s.annotator == nil {
		return ""
	}
	annotation, err := s.annotator.Annotate(ctx, post)
	if err != nil {
		s.logger.Warn("Annotation failed, sending without it",
			zap.String("post_id", post.ID),
			zap.Error(err),
		)
		return ""
	}
	return annotation
}

// currentRecipients возвращает закешированный список, обновляя его не чаще раза в refresh.
// При ошибке обновления остаётся предыдущий список.
func (s *Sender) currentRecipients(ctx context.Context) ([]timeline.RecipientBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recipients != nil && s.now().Sub(s.refreshedAt) < s.refresh {
		return s.recipients, nil
	}

	if !s.loaded && s.store != nil {
		state, err := s.store.Load(ctx)
		if err != nil {
			s.logger.Warn("Failed to load state", zap.Error(err))
		} else {
			s.state = state
		}
	}
	s.loaded = true

	state, recipients, err := s.manager.Resolve(ctx, s.state)
	if err != nil {
		// Известные чаты остаются получателями, даже если автоподписка недоступна
		if len(s.recipients) == 0 {
			s.recipients = recipients
		}
		s.logger.Warn("Failed to refresh recipients, using known list",
			zap.Int("recipients", len(s.recipients)),
			zap.Error(err),
		)
		s.refreshedAt = s.now()
		return s.recipients, err
	}

	if s.store != nil && !sameRecipients(s.state, state) {
		if err := s.store.Save(ctx, state); err != nil {
			s.logger.Warn("Failed to save state", zap.Error(err))
		}
	}
	if len(recipients) != len(s.recipients) {
		s.logger.Info("Recipients updated", zap.Int("recipients", len(recipients)))
	}

	s.state = state
	s.recipients = recipients
	s.refreshedAt = s.now()
	recipientsGauge.Set(float64(len(recipients)))
	return recipients, nil
}

// sendWithRetry отправляет сообщение с повторными попытками при ошибках.
func (s *Sender) sendWithRetry(ctx context.Context, chatID string, message string) error {
	var lastErr error

	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay * time.Duration(attempt)
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > delay {
				delay = apiErr.RetryAfter
			}
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}

			messagesTotal.WithLabelValues("retry").Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := s.client.SendMessage(ctx, chatID, message, parseMode)
		if err == nil {
			return nil
		}

		lastErr = err

		// Для некоторых ошибок (чат не найден, бот заблокирован) повтор не поможет
		if !isRetryableError(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryableError определяет, можно ли повторить отправку при данной ошибке.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429, apiErr.StatusCode >= 500:
			return true
		case apiErr.StatusCode >= 400:
			return false
		}
	}

	errStr := err.Error()

	nonRetryableErrors := []string{
		"chat not found",
		"bot was blocked",
		"user is deactivated",
		"chat_id is empty",
		"message is too long",
		"bad request",
	}

	for _, nonRetryable := range nonRetryableErrors {
		if containsIgnoreCase(errStr, nonRetryable) {
			return false
		}
	}

	// По умолчанию считаем ошибку повторяемой (сетевые ошибки, временные проблемы API)
	return true
}

// containsIgnoreCase проверяет, содержит ли строка подстроку (без учёта регистра).
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func sameRecipients(a, b timeline.State) bool {
	if a.Telegram.LastUpdateID != b.Telegram.LastUpdateID || len(a.Recipients) != len(b.Recipients) {
		return false
	}
	for i := range a.Recipients {
		if a.Recipients[i].ChatID != b.Recipients[i].ChatID || a.Recipients[i].Name != b.Recipients[i].Name {
			return false
		}
	}
	return true
}
