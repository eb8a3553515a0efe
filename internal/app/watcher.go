package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/maine/timeline_watch/internal/config"
	"github.com/maine/timeline_watch/internal/cursor"
	"github.com/maine/timeline_watch/internal/textnorm"
	"github.com/maine/timeline_watch/internal/timeline"
)

// failureEscalation - после стольких неудачных тиков подряд ошибки логируются на уровне Error.
const failureEscalation = 10

var (
	// ErrNotConfigured возвращается, когда наблюдатель запущен без обязательных зависимостей.
	ErrNotConfigured = errors.New("watcher dependencies not configured")
	// ErrTickInFlight возвращается тиком, пришедшим во время незавершённого запроса. Такой тик отбрасывается.
	ErrTickInFlight = errors.New("previous tick still in flight")
	// ErrAlreadyRunning возвращается повторным Start.
	ErrAlreadyRunning = errors.New("watcher already running")
)

// Clock определяет источник времени (удобно подменять в тестах).
type Clock func() time.Time

// FeedClient получает ленту списка от новых постов к старым.
type FeedClient interface {
	FetchListTimeline(ctx context.Context, req timeline.FetchRequest) ([]timeline.Post, error)
}

// Filter решает, заслуживает ли пост уведомления.
type Filter interface {
	Evaluate(post timeline.Post) timeline.Verdict
}

// Sink принимает посты для уведомления. Подтверждение доставки цикл не ждёт.
type Sink interface {
	Push(ctx context.Context, post timeline.Post) error
}

// WatcherDeps перечисляет зависимости и параметры наблюдателя.
type WatcherDeps struct {
	Feed            FeedClient
	Filter          Filter
	Sink            Sink
	Logger          *zap.Logger
	Clock           Clock
	ListID          string
	Interval        time.Duration
	BatchSize       int
	FetchTimeout    time.Duration
	ExcludeRetweets bool
}

// TickReport описывает итог одного тика.
type TickReport struct {
	Bootstrap           bool
	Paused              bool
	Fetched             int
	Notified            int
	Malformed           int
	Cursor              string
	ConsecutiveFailures int
}

// Watcher - цикл опроса: тик таймера → запрос пачки от курсора → фильтр → sink → сдвиг курсора.
// Курсор, пауза и счётчик ошибок меняются только внутри тика, а тики не пересекаются
// благодаря флагу inFlight.
type Watcher struct {
	feed            FeedClient
	filter          Filter
	sink            Sink
	logger          *zap.Logger
	clock           Clock
	listID          string
	interval        time.Duration
	batchSize       int
	fetchTimeout    time.Duration
	excludeRetweets bool

	inFlight            atomic.Bool
	cursor              *cursor.Cursor
	bootstrapped        bool
	pausedUntil         time.Time
	consecutiveFailures int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher создаёт наблюдателя. Незаданные параметры получают значения по умолчанию.
func NewWatcher(deps WatcherDeps) *Watcher {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	batchSize := min(deps.BatchSize, config.MaxBatchSize)
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	fetchTimeout := deps.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = config.DefaultFetchTimeout
	}

	return &Watcher{
		feed:            deps.Feed,
		filter:          deps.Filter,
		sink:            deps.Sink,
		logger:          logger.Named("watcher"),
		clock:           clock,
		listID:          deps.ListID,
		interval:        interval,
		batchSize:       batchSize,
		fetchTimeout:    fetchTimeout,
		excludeRetweets: deps.ExcludeRetweets,
		cursor:          cursor.New(),
	}
}

// Start запускает таймер в отдельной горутине. Первый тик (bootstrap) выполняется сразу.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.validateDeps(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(loopCtx, w.done)

	w.logger.Info("Watcher started",
		zap.String("list_id", w.listID),
		zap.Duration("interval", w.interval),
		zap.Int("batch_size", w.batchSize),
		zap.Duration("fetch_timeout", w.fetchTimeout),
	)
	return nil
}

// Stop останавливает таймер и дожидается завершения текущего тика.
// Тик не прерывается: его длительность ограничена таймаутом запроса.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Info("Watcher stopped", zap.String("cursor", w.cursorValue()))
}

// Run запускает наблюдателя и блокируется до отмены ctx или вызова Stop.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}

	w.mu.Lock()
	done := w.done
	w.mu.Unlock()

	if done != nil {
		select {
		case <-ctx.Done():
		case <-done:
		}
	}
	w.Stop()
	return nil
}

// Tick выполняет один цикл опроса. Если предыдущий тик ещё не завершён, возвращает ErrTickInFlight
// и ничего не делает. Ошибки запроса не меняют курсор.
func (w *Watcher) Tick(ctx context.Context) (TickReport, error) {
	if err := w.validateDeps(); err != nil {
		return TickReport{}, err
	}
	if !w.inFlight.CompareAndSwap(false, true) {
		ticksTotal.WithLabelValues("skipped").Inc()
		return TickReport{}, ErrTickInFlight
	}
	defer w.inFlight.Store(false)

	return w.tick(ctx)
}

// Cursor возвращает текущее значение курсора. Вызывать вне тика.
func (w *Watcher) Cursor() (string, bool) {
	return w.cursor.Value()
}

func (w *Watcher) tick(ctx context.Context) (TickReport, error) {
	if now := w.clock(); now.Before(w.pausedUntil) {
		ticksTotal.WithLabelValues("paused").Inc()
		return TickReport{Paused: true, Cursor: w.cursorValue(), ConsecutiveFailures: w.consecutiveFailures}, nil
	}

	bootstrap := !w.bootstrapped
	sinceID, _ := w.cursor.BoundsForNextFetch(bootstrap)

	posts, err := w.fetch(ctx, timeline.FetchRequest{
		ListID:          w.listID,
		SinceID:         sinceID,
		Count:           w.batchSize,
		ExcludeRetweets: w.excludeRetweets,
	})
	if err != nil {
		w.consecutiveFailures++
		ticksTotal.WithLabelValues("error").Inc()
		return TickReport{Bootstrap: bootstrap, Cursor: w.cursorValue(), ConsecutiveFailures: w.consecutiveFailures}, err
	}
	w.consecutiveFailures = 0
	postsFetchedTotal.Add(float64(len(posts)))

	report := TickReport{Bootstrap: bootstrap, Fetched: len(posts)}
	switch {
	case bootstrap:
		// Первое окно ленты считается уже просмотренным, даже если оно пустое
		w.cursor.Advance(posts)
		w.bootstrapped = true
		ticksTotal.WithLabelValues("bootstrap").Inc()
		w.logger.Info("Baseline established",
			zap.Int("posts", len(posts)),
			zap.String("cursor", w.cursorValue()),
		)
	case len(posts) == 0:
		ticksTotal.WithLabelValues("empty").Inc()
	default:
		report.Notified, report.Malformed = w.process(ctx, posts)
		w.cursor.Advance(posts)
		ticksTotal.WithLabelValues("processed").Inc()
	}

	report.Cursor = w.cursorValue()
	return report, nil
}

func (w *Watcher) fetch(ctx context.Context, req timeline.FetchRequest) ([]timeline.Post, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, w.fetchTimeout)
	defer cancel()

	start := time.Now()
	posts, err := w.feed.FetchListTimeline(fetchCtx, req)
	fetchDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		return posts, nil
	}

	var fe *timeline.FetchError
	if !errors.As(err, &fe) {
		kind := timeline.FetchErrorTransport
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			kind = timeline.FetchErrorTimeout
		}
		fe = &timeline.FetchError{Kind: kind, Err: err}
	}
	fetchErrorsTotal.WithLabelValues(string(fe.Kind)).Inc()

	if fe.Kind == timeline.FetchErrorRateLimit && fe.RetryAt.After(w.clock()) {
		w.pausedUntil = fe.RetryAt
	}
	return nil, fmt.Errorf("fetch list timeline: %w", fe)
}

// process прогоняет пачку через фильтр по порядку и возвращает число уведомлений и битых постов.
func (w *Watcher) process(ctx context.Context, posts []timeline.Post) (notified, malformed int) {
	for _, post := range posts {
		if err := post.Validate(); err != nil {
			malformed++
			malformedPostsTotal.Inc()
			w.logger.Warn("Skipping malformed post", zap.Error(err))
			continue
		}

		verdict := w.filter.Evaluate(post)
		verdictsTotal.WithLabelValues(string(verdict)).Inc()
		if verdict != timeline.VerdictAccept {
			w.logger.Debug("Post filtered out",
				zap.String("post_id", post.ID),
				zap.String("author", post.Author),
				zap.String("verdict", string(verdict)),
			)
			continue
		}

		post.Text = textnorm.UnescapeEntities(post.Text)
		if err := w.sink.Push(ctx, post); err != nil {
			sinkErrorsTotal.Inc()
			w.logger.Error("Failed to push notification",
				zap.String("post_id", post.ID),
				zap.Error(err),
			)
			continue
		}
		notified++
	}
	return notified, malformed
}

func (w *Watcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	var inflight sync.WaitGroup
	defer inflight.Wait()

	// Остановка таймера не отменяет уже начатый тик
	tickCtx := context.WithoutCancel(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.dispatch(tickCtx, &inflight)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.dispatch(tickCtx, &inflight)
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, inflight *sync.WaitGroup) {
	if w.inFlight.Load() {
		ticksTotal.WithLabelValues("skipped").Inc()
		w.logger.Debug("Previous tick still in flight, dropping tick")
		return
	}

	inflight.Add(1)
	go func() {
		defer inflight.Done()
		report, err := w.Tick(ctx)
		w.logTick(report, err)
	}()
}

func (w *Watcher) logTick(report TickReport, err error) {
	if err != nil {
		if errors.Is(err, ErrTickInFlight) {
			w.logger.Debug("Previous tick still in flight, dropping tick")
			return
		}

		fields := []zap.Field{
			zap.Error(err),
			zap.String("cursor", report.Cursor),
			zap.Int("consecutive_failures", report.ConsecutiveFailures),
		}
		var fe *timeline.FetchError
		if errors.As(err, &fe) {
			fields = append(fields, zap.String("kind", string(fe.Kind)))
			if !fe.RetryAt.IsZero() {
				fields = append(fields, zap.Time("retry_at", fe.RetryAt))
			}
			if fe.IsRetryable() && report.ConsecutiveFailures < failureEscalation {
				w.logger.Warn("Timeline fetch failed, retrying on next tick", fields...)
				return
			}
		}
		w.logger.Error("Timeline fetch failed", fields...)
		return
	}

	switch {
	case report.Paused:
		w.logger.Debug("Fetching paused until rate limit reset")
	case report.Notified > 0 || report.Malformed > 0:
		w.logger.Info("Processed new posts",
			zap.Int("fetched", report.Fetched),
			zap.Int("notified", report.Notified),
			zap.Int("malformed", report.Malformed),
			zap.String("cursor", report.Cursor),
		)
	default:
		w.logger.Debug("Tick completed",
			zap.Int("fetched", report.Fetched),
			zap.String("cursor", report.Cursor),
		)
	}
}

func (w *Watcher) cursorValue() string {
	v, _ := w.cursor.Value()
	return v
}

func (w *Watcher) validateDeps() error {
	switch {
	case w.feed == nil,
		w.filter == nil,
		w.sink == nil,
		w.clock == nil,
		w.listID == "":
		return ErrNotConfigured
	default:
		return nil
	}
}
