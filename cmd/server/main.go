package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dholuo-chat/internal/chat"
	"dholuo-chat/internal/config"
	"dholuo-chat/internal/db"
	"dholuo-chat/internal/events"
	"dholuo-chat/internal/insights"
	myMiddleware "dholuo-chat/internal/middleware"
	"dholuo-chat/internal/relay"
	"dholuo-chat/internal/responder"
	"dholuo-chat/internal/translate"
	"dholuo-chat/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 15 * time.Second

func main() {
	addr := flag.String("addr", "", "http service address (overrides ADDR)")
	flag.Parse()

	cfg := config.Load()
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("❌ invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("❌ server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// 1. Platform
	database, err := db.NewDatabase(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()
	logger.Info("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(ctx); err != nil {
		return err
	}
	logger.Info("✅ Database schema initialized")

	cache := newTranslationCache(ctx, cfg, logger)

	publisher := newPublisher(ctx, cfg, logger)
	defer publisher.Close()

	// 2. Features
	var remote translate.Provider
	if cfg.IsRemoteTranslatorConfigured() {
		remote = translate.NewRemoteProvider(cfg.Translator.RemoteURL, cfg.Translator.Timeout)
		logger.Info("remote translator enabled", "url", cfg.Translator.RemoteURL)
	}
	translator := translate.NewService(translate.DefaultDictionary(), translate.Options{
		Remote:   remote,
		Cache:    cache,
		CacheTTL: cfg.Translator.CacheTTL,
		Logger:   logger,
	})

	userService := user.NewService(user.NewRepository(database.Pool), cfg.Server.JWTSecret)
	userHandler := user.NewHandler(userService)
	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	chatService := chat.NewService(chat.NewRepository(database.Pool), publisher, logger)
	chatHandler := chat.NewHandler(chatService, logger)

	analyzer := insights.NewService()
	engine := relay.NewEngine(chatService, translator, analyzer, responder.NewService(translator, logger), relay.Options{
		BaseLanguage:  cfg.Translator.BaseLanguage,
		BranchTimeout: cfg.Relay.BranchTimeout,
		Logger:        logger,
	})

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := relay.NewHub(logger)
	go hub.Run(hubCtx)

	relayHandler := relay.NewHandler(hub, engine, translator, analyzer, cfg.Server.AllowedOrigins, logger)

	// 3. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Get("/ws", relayHandler.ServeWs)
	r.Post("/translate", relayHandler.Translate)
	r.Post("/api/translate", relayHandler.Translate)
	r.Get("/api/translate/test", relayHandler.TranslateStatus)
	r.Get("/api/languages", chatHandler.Languages)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/conversations", chatHandler.ListConversations)
		r.Post("/api/conversations", chatHandler.StartConversation)
		r.Get("/api/conversations/{id}", chatHandler.GetConversation)
		r.Put("/api/conversations/{id}", chatHandler.UpdateConversation)
		r.Delete("/api/conversations/{id}", chatHandler.DeleteConversation)
		r.Post("/api/linguistic-insights", relayHandler.LinguisticInsights)
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 Server starting", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; the hub closes them.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	stopHub()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Warn("in-flight relay branches did not finish before shutdown", "error", err)
	}
	return nil
}

// newTranslationCache prefers Redis and falls back to process memory when it is unreachable.
func newTranslationCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) translate.Cache {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("⚠️ Redis unavailable, using in-memory translation cache", "addr", cfg.Redis.Addr, "error", err)
		rdb.Close()
		return translate.NewMemoryCache()
	}
	logger.Info("✅ Connected to Redis", "addr", cfg.Redis.Addr)
	return translate.NewRedisCache(rdb)
}

func newPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) events.Publisher {
	if !cfg.IsAMQPConfigured() {
		logger.Info("AMQP_URL not set, message events disabled")
		return events.NewFallback(logger)
	}
	pub, err := events.NewRabbitPublisher(ctx, cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	if err != nil {
		logger.Warn("⚠️ RabbitMQ unavailable, message events disabled", "error", err)
		return events.NewFallback(logger)
	}
	logger.Info("✅ Connected to RabbitMQ", "exchange", cfg.AMQP.Exchange)
	return pub
}
