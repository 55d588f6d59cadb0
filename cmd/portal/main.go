package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"applydesk/internal/app"
	"applydesk/internal/config"
	"applydesk/internal/index"
	"applydesk/internal/mail"
	"applydesk/internal/queue"
	"applydesk/internal/ratelimit"
	"applydesk/internal/server"
	"applydesk/internal/session"
	"applydesk/internal/storage"
	"applydesk/internal/store"
	"applydesk/internal/util"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()
	path := *configPath
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.Log.Level)

	st, err := newStore(cfg, logger)
	if err != nil {
		logger.Error("init store failed", "error", err)
		os.Exit(1)
	}
	idx, err := index.NewElasticIndex(cfg.Search.Addresses, cfg.Search.Username, cfg.Search.Password)
	if err != nil {
		logger.Error("init search index failed", "error", err)
		os.Exit(1)
	}
	objects, err := newObjectStore(cfg, logger)
	if err != nil {
		logger.Error("init object storage failed", "error", err)
		os.Exit(1)
	}
	notifyQueue, err := queue.NewNotifyQueue(queue.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		Stream:   cfg.Notify.Stream,
		Group:    cfg.Notify.Group,
	})
	if err != nil {
		logger.Error("init notify queue failed", "error", err)
		os.Exit(1)
	}
	mailer := newMailer(cfg, logger)

	application, err := app.New(app.Config{
		Store:        st,
		Index:        idx,
		Objects:      objects,
		Notifier:     notifyQueue,
		Mailer:       mailer,
		BaseURL:      cfg.HTTP.BaseURL,
		FromEmail:    cfg.Mail.FromEmail,
		FromName:     cfg.Mail.FromName,
		DefaultOrgID: cfg.Org.DefaultID,
	})
	if err != nil {
		logger.Error("init app failed", "error", err)
		os.Exit(1)
	}

	loginLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.Redis.Addr, cfg.Redis.Password, "applydesk:ratelimit", cfg.Limits.LoginPerMinute, time.Minute)
	if err != nil {
		logger.Error("init login limiter failed", "error", err)
		os.Exit(1)
	}
	resetLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.Redis.Addr, cfg.Redis.Password, "applydesk:ratelimit", cfg.Limits.ResetPerHour, time.Hour)
	if err != nil {
		logger.Error("init reset limiter failed", "error", err)
		os.Exit(1)
	}
	applyLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.Redis.Addr, cfg.Redis.Password, "applydesk:ratelimit", cfg.Limits.ApplyPerMinute, time.Minute)
	if err != nil {
		logger.Error("init apply limiter failed", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(server.Config{
		App:                application,
		Sessions:           session.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Session.TTL),
		BaseURL:            cfg.HTTP.BaseURL,
		DefaultOrgID:       cfg.Org.DefaultID,
		TrustedProxies:     cfg.HTTP.TrustedProxies,
		LoginLimiter:       loginLimiter,
		ResetLimiter:       resetLimiter,
		ApplyLimiter:       applyLimiter,
		GitHubClientID:     cfg.OAuth.GitHub.ClientID,
		GitHubClientSecret: cfg.OAuth.GitHub.ClientSecret,
		GoogleClientID:     cfg.OAuth.Google.ClientID,
		GoogleClientSecret: cfg.OAuth.Google.ClientSecret,
	})
	if err != nil {
		logger.Error("init server failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifyQueue.Start(ctx, cfg.Notify.Concurrency, application.ProcessNotification)

	httpServer := srv.HTTPServer(cfg.HTTP.Addr)
	go func() {
		logger.Info("portal listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func newStore(cfg config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Postgres.DSN == "" {
		logger.Warn("no postgres dsn configured, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	return store.NewGormStore(cfg.Postgres.DSN)
}

func newObjectStore(cfg config.Config, logger *slog.Logger) (storage.ObjectStore, error) {
	if cfg.Storage.Endpoint == "" {
		logger.Warn("no storage endpoint configured, using in-memory object store")
		return storage.NewMemoryStore(), nil
	}
	return storage.NewMinioStore(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.UseSSL)
}

func newMailer(cfg config.Config, logger *slog.Logger) mail.Mailer {
	if cfg.Mail.APIKey == "" {
		logger.Warn("no mail api key configured, mail will be logged only")
		return mail.LogMailer{}
	}
	return mail.NewMandrillClient(cfg.Mail.BaseURL, cfg.Mail.APIKey)
}
