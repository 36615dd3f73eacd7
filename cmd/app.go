package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/api"
	"github.com/vindennt/outfred-gateway/internal/auth"
	"github.com/vindennt/outfred-gateway/internal/config"
	"github.com/vindennt/outfred-gateway/internal/db"
	"github.com/vindennt/outfred-gateway/internal/mail"
	"github.com/vindennt/outfred-gateway/internal/nav"
	"github.com/vindennt/outfred-gateway/internal/notify"
	"github.com/vindennt/outfred-gateway/internal/storage"
	"github.com/vindennt/outfred-gateway/internal/supabase"
	"github.com/vindennt/outfred-gateway/internal/verification"
	"github.com/vindennt/outfred-gateway/internal/ws"
)

const janitorInterval = time.Minute

// app is the wired process. close releases everything opened by newApp in
// reverse order.
type app struct {
	handler http.Handler
	relay   *mail.Relay
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}

	store, err := openStore(ctx, cfg, logger, a)
	if err != nil {
		return nil, err
	}

	relay, err := newRelay(ctx, cfg, logger, a)
	if err != nil {
		a.close()
		return nil, err
	}
	a.relay = relay

	resolver := cfg.Resolver()
	factory := supabase.NewFactory(resolver, store, logger,
		supabase.WithRedirectURL(cfg.Supabase.RedirectURL),
	)
	client := factory.Client()

	notifications := notify.NewService(store, logger)
	languages := nav.NewLanguages(store, cfg.Language, logger)
	settings := nav.NewSiteSettings(store, logger)

	registry := auth.NewRegistry(auth.Deps{
		Client:      client,
		Sessions:    factory,
		Mailer:      relay,
		Notifier:    notifications,
		Codes:       verification.New(store, logger),
		Languages:   languages,
		RedirectURL: cfg.Supabase.RedirectURL,
		Logger:      logger,
	})
	a.closers = append(a.closers, registry.Close)

	janitorCtx, stopJanitor := context.WithCancel(context.WithoutCancel(ctx))
	go registry.RunJanitor(janitorCtx, janitorInterval, cfg.SessionIdleTimeout)
	a.closers = append(a.closers, stopJanitor)

	authenticator := auth.NewAuthenticator(auth.NewTokenVerifier(client, cfg.Supabase.JWTSecret), registry, logger)

	hub := ws.NewHub(authenticator.Identify, notifications, settings, logger,
		ws.WithOriginPatterns(originPatterns(cfg.AllowedOrigins)),
	)
	a.closers = append(a.closers,
		notifications.Watch(hub.NotifyUnread),
		settings.WatchLogo(hub.BroadcastLogo),
	)

	a.handler = api.NewRouter(api.Deps{
		Auth:           auth.NewHandlers(registry, !cfg.Development(), logger),
		Authenticator:  authenticator,
		Email:          mail.NewHandler(relay, cfg.Email.RatePerMinute, cfg.Email.Burst, logger),
		Header:         nav.NewBuilder(languages, settings, notifications, cfg.Development(), logger),
		Languages:      languages,
		Settings:       settings,
		Notifications:  notifications,
		Push:           hub,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	return a, nil
}

// openStore uses Redis when configured so sessions and notifications survive
// restarts and are shared between replicas.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, a *app) (storage.Store, error) {
	if cfg.RedisURL == "" {
		logger.Info("using in-memory store")
		return storage.NewMemoryStore(), nil
	}

	rdb, err := storage.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	store, err := storage.NewRedisStore(ctx, rdb, logger)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not start redis store: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing redis store", zap.Error(err))
		}
	})
	logger.Info("using redis store")
	return store, nil
}

func newRelay(ctx context.Context, cfg *config.Config, logger *zap.Logger, a *app) (*mail.Relay, error) {
	var repo db.SMTPSettingsRepository
	if cfg.DatabaseURL != "" {
		pool, err := db.OpenPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("could not connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		repo = db.NewPgSettingsRepository(pool)
		logger.Info("reading smtp settings from postgres")
	} else {
		resolver := cfg.Resolver()
		client := db.NewClient(resolver.Get("SUPABASE_URL"), resolver.Get("SUPABASE_ANON_KEY"), cfg.Supabase.ServiceRoleKey)
		if !client.Configured() {
			logger.Warn("supabase is not configured; the email relay will report SMTP as unavailable")
		}
		repo = db.NewRestSettingsRepository(client)
	}

	transport := mail.NewSMTPTransport(logger, mail.WithTimeout(30*time.Second))
	return mail.NewRelay(repo, transport, logger), nil
}

// originPatterns turns CORS origins into the host patterns the websocket
// handshake checks against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		patterns = append(patterns, o)
	}
	return patterns
}
