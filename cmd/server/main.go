package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tubebrief/internal/config"
	"tubebrief/internal/crypto"
	"tubebrief/internal/httpapi"
	"tubebrief/internal/mail"
	"tubebrief/internal/metrics"
	"tubebrief/internal/notify"
	"tubebrief/internal/providers"
	"tubebrief/internal/providers/registry"
	"tubebrief/internal/quota"
	"tubebrief/internal/queue"
	"tubebrief/internal/storage"
	"tubebrief/internal/transcript"
	"tubebrief/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("provider", cfg.Provider.Kind).
		Str("db_driver", cfg.DB.Driver).
		Bool("dev_mode", cfg.DevMode).
		Msg("starting tubebrief")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	keeper, err := crypto.NewKeeper(cfg.Crypto.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryption")
	}

	m := metrics.Global()
	mailQueue := queue.NewStreamQueue(rdb, cfg.Redis.MailStream, cfg.Redis.MailGroup, cfg.Worker.ConsumerName, cfg.Redis.MailBlock)
	mailer := mail.NewSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.From, log.Logger)

	notifier := notify.NewRegistry()
	notifier.Subscribe(func(ev notify.UsageEvent) {
		log.Debug().
			Str("user_id", ev.UserID).
			Int("current", ev.Current).
			Str("tier", ev.Tier).
			Msg("usage updated")
	})

	httpClient := &http.Client{Timeout: cfg.HTTP.ClientTimeout}
	newProvider := func(apiKey string) (providers.Provider, error) {
		return registry.Build(registry.BuildOptions{
			Kind:        cfg.Provider.Kind,
			BaseURL:     cfg.Provider.BaseURL,
			APIKey:      apiKey,
			HTTPClient:  httpClient,
			MaxRetries:  cfg.HTTP.MaxRetries,
			BackoffBase: cfg.HTTP.BackoffBase,
		})
	}

	api := httpapi.NewServer(httpapi.Config{
		Store:         store,
		Gate:          quota.New(store, cfg.Usage.FreeLimit),
		Limiter:       queue.NewRateLimiter(rdb, cfg.Rate.PerHour),
		Throttle:      queue.NewResetThrottle(rdb, cfg.Redis.ResetThrottle),
		MailQueue:     mailQueue,
		Keeper:        keeper,
		Notifier:      notifier,
		Metrics:       m,
		Logger:        log.Logger,
		Transcripts:   transcript.NewFetcher("", httpClient),
		NewProvider:   newProvider,
		ServerAPIKey:  cfg.Provider.APIKey,
		DefaultModel:  cfg.Provider.Model,
		SessionSecret: []byte(cfg.Session.Secret),
		SessionTTL:    cfg.Session.TTL,
		ResetSecret:   cfg.Usage.ResetSecret,
		PublicURL:     cfg.PublicURL,
		DevMode:       cfg.DevMode,
		StreamTimeout: cfg.HTTP.ClientTimeout,
	})

	errCh := make(chan error, 2)

	mailWorker := worker.New(worker.Config{
		Queue:         mailQueue,
		Mailer:        mailer,
		MaxJobRetries: cfg.Worker.MaxRetries,
		Logger:        log.Logger,
		Metrics:       m,
	})
	go func() {
		if err := mailWorker.Start(ctx, cfg.Worker.Concurrency); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("mail worker failed: %w", err)
		}
	}()
	log.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("mail worker started")

	router := api.Router()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
