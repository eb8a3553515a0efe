package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maine/timeline_watch/internal/config"
	"github.com/maine/timeline_watch/internal/timeline"
)

const (
	defaultWorkers    = 2
	defaultBufferSize = 100
	maxRetries        = 2
	userAgent         = "timeline-watch/1"
	envelopeType      = "timeline_watch.post"
	schemaVersion     = "1"
)

// ErrBufferFull возвращается Push, когда очередь доставки переполнена.
var ErrBufferFull = errors.New("webhook send buffer full")

// Envelope - JSON, который отправляется на webhook.
type Envelope struct {
	Type          string        `json:"type"`
	SchemaVersion string        `json:"schemaVersion"`
	DeliveryID    string        `json:"deliveryId"`
	Timestamp     string        `json:"timestamp"`
	Data          timeline.Post `json:"data"`
}

// Sender асинхронно доставляет совпавшие посты HTTP POST-запросом.
// Push только ставит пост в очередь; доставкой занимаются воркеры, запущенные Start.
type Sender struct {
	httpClient *http.Client
	logger     *zap.Logger
	url        string
	authToken  string
	backoff    time.Duration
	sendCh     chan Envelope
	wg         sync.WaitGroup
	now        func() time.Time
}

// NewSender создаёт отправителя. Возвращает ошибку, если URL некорректен.
func NewSender(logger *zap.Logger, cfg config.Webhook, authToken string) (*Sender, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("webhook URL must include a host")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultWebhookTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // задаётся пользователем
		logger.Warn("Webhook TLS certificate verification is disabled",
			zap.String("url", RedactURL(cfg.URL)))
	}

	return &Sender{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger:    logger.Named("webhook"),
		url:       cfg.URL,
		authToken: authToken,
		backoff:   time.Second,
		sendCh:    make(chan Envelope, defaultBufferSize),
		now:       time.Now,
	}, nil
}

// Start запускает воркеры доставки.
func (s *Sender) Start(ctx context.Context) {
	for range defaultWorkers {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.logger.Info("Webhook sender started",
		zap.String("url", RedactURL(s.url)),
		zap.Int("workers", defaultWorkers),
	)
}

// Close ждёт, пока воркеры доставят остаток очереди. Вызывать после отмены контекста Start.
func (s *Sender) Close() {
	s.wg.Wait()
}

// Push ставит пост в очередь доставки. При переполненной очереди пост отбрасывается.
func (s *Sender) Push(ctx context.Context, post timeline.Post) error {
	envelope := Envelope{
		Type:          envelopeType,
		SchemaVersion: schemaVersion,
		DeliveryID:    uuid.NewString(),
		Timestamp:     s.now().UTC().Format(time.RFC3339),
		Data:          post,
	}

	select {
	case s.sendCh <- envelope:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		sendTotal.WithLabelValues("dropped").Inc()
		s.logger.Warn("Webhook send buffer full, dropping notification",
			zap.String("post_id", post.ID))
		return ErrBufferFull
	}
}

// worker доставляет посты из очереди. После отмены контекста дочищает очередь и выходит.
func (s *Sender) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case envelope := <-s.sendCh:
					s.handle(ctx, envelope)
				default:
					return
				}
			}
		case envelope := <-s.sendCh:
			s.handle(ctx, envelope)
		}
	}
}

// handle доставляет один пост. После остановки каждая доставка получает собственный таймаут.
func (s *Sender) handle(ctx context.Context, envelope Envelope) {
	if ctx.Err() != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), s.httpClient.Timeout)
		defer cancel()
		ctx = drainCtx
	}

	if err := s.deliver(ctx, envelope); err != nil {
		s.logger.Error("Webhook send failed",
			zap.String("url", RedactURL(s.url)),
			zap.String("delivery_id", envelope.DeliveryID),
			zap.String("post_id", envelope.Data.ID),
			zap.Error(err),
		)
	}
}

// deliver выполняет POST с повторами и линейной задержкой.
func (s *Sender) deliver(ctx context.Context, envelope Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		sendTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries + 1 {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * s.backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				sendTotal.WithLabelValues("error").Inc()
				return fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
			}
			sendTotal.WithLabelValues("retry").Inc()
		}

		lastErr = s.post(ctx, envelope.DeliveryID, body)
		if lastErr == nil {
			return nil
		}

		if !isRetryable(lastErr) {
			sendTotal.WithLabelValues("error").Inc()
			return lastErr
		}

		s.logger.Debug("Webhook send transient failure, will retry",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	sendTotal.WithLabelValues("error").Inc()
	return fmt.Errorf("webhook send failed after %d attempts: %w", maxRetries+1, lastErr)
}

func (s *Sender) post(ctx context.Context, deliveryID string, body []byte) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return &sendError{err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Delivery-ID", deliveryID)
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		sendDuration.WithLabelValues("error").Observe(duration)
		return &sendError{err: err, retryable: true}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		sendTotal.WithLabelValues("success").Inc()
		sendDuration.WithLabelValues("success").Observe(duration)
		return nil
	}

	sendDuration.WithLabelValues("error").Observe(duration)
	return &sendError{
		err:       fmt.Errorf("webhook returned HTTP %d", resp.StatusCode),
		retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
	}
}

type sendError struct {
	err       error
	retryable bool
}

func (e *sendError) Error() string { return e.err.Error() }
func (e *sendError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var se *sendError
	if errors.As(err, &se) {
		return se.retryable
	}
	return true
}

// RedactURL скрывает пароль и значения query-параметров для безопасного логирования.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			q.Set(key, "REDACTED")
		}
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}
