package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maine/timeline_watch/internal/app"
	"github.com/maine/timeline_watch/internal/archive"
	"github.com/maine/timeline_watch/internal/config"
	"github.com/maine/timeline_watch/internal/filter"
	"github.com/maine/timeline_watch/internal/formatter"
	"github.com/maine/timeline_watch/internal/gemini"
	"github.com/maine/timeline_watch/internal/logging"
	"github.com/maine/timeline_watch/internal/notify"
	"github.com/maine/timeline_watch/internal/state"
	"github.com/maine/timeline_watch/internal/telegram"
	"github.com/maine/timeline_watch/internal/twitter"
	"github.com/maine/timeline_watch/internal/webhook"
)

const (
	telegramQueueSize = 100
	shutdownTimeout   = 5 * time.Second
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the list timeline and push matching posts to the configured sinks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatcher(cmd, opts)
		},
	}
}

func runWatcher(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := config.LoadRoot(opts.ConfigPath)
	if err != nil {
		return err
	}
	env, err := config.LoadEnvConfig(cfg)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	f, err := filter.New(cfg.Policy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sinks, err := buildSinks(ctx, cfg, env, logger)
	if err != nil {
		return err
	}
	defer sinks.close()

	if cfg.Metrics.Listen != "" {
		srv := startMetricsServer(cfg.Metrics.Listen, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	httpClient := twitter.NewHTTPClient(ctx, twitter.Credentials{
		BearerToken:    env.TwitterBearerToken,
		ConsumerKey:    env.TwitterConsumerKey,
		ConsumerSecret: env.TwitterConsumerSecret,
	}, cfg.Twitter.TokenURL, cfg.Watcher.FetchTimeout)

	watcher := app.NewWatcher(app.WatcherDeps{
		Feed:            twitter.NewClient(httpClient, cfg.Twitter.BaseURL),
		Filter:          f,
		Sink:            sinks.fanout,
		Logger:          logger,
		ListID:          cfg.Watcher.ListID,
		Interval:        cfg.Watcher.PollInterval,
		BatchSize:       cfg.Watcher.BatchSize,
		FetchTimeout:    cfg.Watcher.FetchTimeout,
		ExcludeRetweets: cfg.Watcher.ExcludeRetweetsEnabled(),
	})

	logger.Info("Starting watcher",
		zap.String("list_id", cfg.Watcher.ListID),
		zap.Strings("queries", f.Queries()),
		zap.Int("excluded_users", len(cfg.Policy.ExcludedUsers)),
		zap.Int("sinks", sinks.fanout.Len()),
	)

	if err := watcher.Run(ctx); err != nil {
		return fmt.Errorf("run watcher: %w", err)
	}
	logger.Info("Shutting down")
	return nil
}

// sinkSet - подключённые sink и функции их остановки в порядке вызова.
type sinkSet struct {
	fanout  *notify.Fanout
	closers []func()
}

func (s *sinkSet) close() {
	for _, c := range s.closers {
		c()
	}
}

// buildSinks собирает sink из конфигурации: архив, Telegram (через очередь) и webhook.
func buildSinks(ctx context.Context, cfg config.Root, env *config.EnvConfig, logger *zap.Logger) (*sinkSet, error) {
	set := &sinkSet{}
	var named []notify.Named

	// Доставка продолжается после сигнала остановки, пока очереди не опустеют
	sinkCtx, cancelSinks := context.WithCancel(context.WithoutCancel(ctx))

	fail := func(err error) (*sinkSet, error) {
		cancelSinks()
		set.close()
		return nil, err
	}

	if cfg.Archive.Path != "" {
		store, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			return fail(fmt.Errorf("open archive: %w", err))
		}
		named = append(named, notify.Named{Name: "archive", Sink: store})
		set.closers = append(set.closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close archive", zap.Error(err))
			}
		})
	}

	if cfg.Telegram.Enabled {
		tgClient := telegram.NewClient(env.TelegramBotToken, "")

		var annotator telegram.Annotator
		if cfg.Gemini.Enabled {
			geminiClient, err := gemini.NewClient(ctx, env.GeminiAPIKey, logger)
			if err != nil {
				return fail(fmt.Errorf("create gemini client: %w", err))
			}
			annotator = gemini.NewAnnotator(geminiClient, cfg.Gemini, logger)
		}

		sender, err := telegram.NewSender(telegram.SenderDeps{
			Client:     tgClient,
			Recipients: telegram.NewRecipientManager(tgClient, cfg.Telegram.AutoSubscribe, cfg.Telegram.ChatIDs),
			Store:      state.NewFileStore(cfg.Telegram.StatePath, logger),
			Formatter:  formatter.NewFormatter(),
			Annotator:  annotator,
			Logger:     logger,
			Config:     cfg.Telegram,
		})
		if err != nil {
			return fail(err)
		}

		queue := notify.NewQueue("telegram", sender, telegramQueueSize, logger)
		queue.Start(sinkCtx)
		named = append(named, notify.Named{Name: "telegram", Sink: queue})
		// Очередь закрывается первой, чтобы дослать накопленное
		set.closers = append([]func(){queue.Close}, set.closers...)
	}

	if cfg.Webhook.URL != "" {
		sender, err := webhook.NewSender(logger, cfg.Webhook, env.WebhookAuthToken)
		if err != nil {
			return fail(fmt.Errorf("%w: webhook: %v", config.ErrInvalid, err))
		}
		sender.Start(sinkCtx)
		named = append(named, notify.Named{Name: "webhook", Sink: sender})
		set.closers = append(set.closers, func() {
			cancelSinks()
			sender.Close()
		})
	}

	set.closers = append(set.closers, cancelSinks)
	set.fanout = notify.NewFanout(logger, named...)
	return set, nil
}

func startMetricsServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("Metrics server listening", zap.String("addr", addr))
	return srv
}
