// Orientador - UTMACH vocational orientation interview server
package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/orientador/internal/api"
	"github.com/ashureev/orientador/internal/chat"
	"github.com/ashureev/orientador/internal/completion"
	"github.com/ashureev/orientador/internal/config"
	"github.com/ashureev/orientador/internal/dialogue"
	"github.com/ashureev/orientador/internal/health"
	"github.com/ashureev/orientador/internal/identity"
	"github.com/ashureev/orientador/internal/metrics"
	"github.com/ashureev/orientador/internal/middleware"
	"github.com/ashureev/orientador/internal/prompts"
	"github.com/ashureev/orientador/internal/questions"
	"github.com/ashureev/orientador/internal/sink"
	"github.com/ashureev/orientador/internal/store"
	"github.com/ashureev/orientador/internal/telegram"
	"github.com/ashureev/orientador/internal/validator"
	"github.com/ashureev/orientador/web"
)

const completionTemperature = 0.7

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.Store.Driver)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := store.New(ctx, store.Options{
		Driver:      cfg.Store.Driver,
		SQLitePath:  cfg.DBPath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Database connected")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.MustNewMetrics(reg)

	system, err := prompts.SystemPrompt(cfg.Completion.SystemPromptFile)
	if err != nil {
		return err
	}

	temperature := completionTemperature
	completer := completion.NewInstrumented(completion.NewClient(completion.ClientConfig{
		BaseURL:     cfg.Completion.BaseURL,
		APIKey:      cfg.Completion.APIKey,
		Model:       cfg.Completion.Model,
		Timeout:     cfg.Completion.Timeout,
		Temperature: &temperature,
	}), m, logger)

	answers, err := newValidator(cfg, completer, system, logger)
	if err != nil {
		return err
	}
	source, err := newQuestionSource(cfg, completer, system, logger)
	if err != nil {
		return err
	}

	var recorder sink.Sink = sink.NewLogSink(logger)
	if cfg.Sink.WebhookURL != "" {
		recorder = sink.NewWebhookSink(cfg.Sink.WebhookURL, cfg.Sink.Timeout)
	}
	results := sink.NewAsync(recorder, cfg.Sink.QueueSize, cfg.Sink.Timeout, m, logger)
	defer results.Close()

	engine, err := dialogue.NewEngine(dialogue.EngineConfig{
		QuestionCount: cfg.Interview.QuestionCount,
		MaxRetries:    cfg.Interview.MaxRetries,
		FollowUp:      cfg.Interview.FollowUp,
		SystemPrompt:  system,
	}, dialogue.Deps{
		Completer: completer,
		Validator: answers,
		Source:    source,
		Repo:      repo,
		Sink:      results,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	sessions, err := dialogue.NewManager(dialogue.ManagerConfig{
		MaxLiveSessions: cfg.Interview.MaxLiveSessions,
		IdleTimeout:     cfg.Interview.IdleTimeout,
	}, engine, repo, m, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sessions.Close(closeCtx)
	}()

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return err
	}

	chatHandler := chat.NewHandler(sessions, conversationLogger, chat.HandlerConfig{
		RateLimitRequests: cfg.RateLimit.RequestsPerWindow,
		RateLimitWindow:   cfg.RateLimit.WindowDuration,
		AllowedOrigins:    cfg.AllowedOrigins,
		IsDev:             cfg.IsDevelopment(),
	})
	defer chatHandler.Close()

	healthHandler := api.NewHealthHandler(repo, 2*time.Second, sessions.Live)
	conversationHandler := api.NewConversationHandler(repo, cfg.AdminToken)
	if cfg.AdminToken == "" {
		slog.Warn("Conversation admin API disabled (ADMIN_TOKEN not set); use orientadorctl instead")
	}

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins, identity.SessionHeaderName))

	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	conversationHandler.RegisterRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))
		chatHandler.RegisterRoutes(r)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// No WriteTimeout: WebSocket connections stay open.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	var bot *telegram.Transport
	if cfg.Telegram.BotToken != "" {
		bot, err = telegram.New(cfg.Telegram.BotToken, sessions, logger)
		if err != nil {
			return err
		}
	} else {
		slog.Info("Telegram transport disabled (TELEGRAM_BOT_TOKEN not set)")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	dialogue.StartTTLWorker(gctx, repo, cfg.Store.SessionTTL, 0)
	slog.Info("TTL worker started", "session_ttl", cfg.Store.SessionTTL)

	if bot != nil {
		g.Go(func() error { return bot.Run(gctx) })
	}

	if cfg.GRPCHealthAddr != "" {
		hs := health.NewServer(repo, 15*time.Second, logger)
		g.Go(func() error { return hs.Serve(gctx, cfg.GRPCHealthAddr) })
	}

	return g.Wait()
}

func newValidator(cfg *config.Config, completer completion.Completer, system string, logger *slog.Logger) (validator.Validator, error) {
	vcfg := validator.DefaultConfig()
	if cfg.Interview.ValidatorFile != "" {
		loaded, err := validator.LoadConfig(cfg.Interview.ValidatorFile)
		if err != nil {
			return nil, err
		}
		vcfg = loaded
	}
	if cfg.Interview.ValidatorMode == "scored" {
		return validator.NewScored(vcfg, completer, system, logger), nil
	}
	return validator.NewHeuristic(vcfg), nil
}

func newQuestionSource(cfg *config.Config, completer completion.Completer, system string, logger *slog.Logger) (questions.Source, error) {
	if cfg.Interview.QuestionSource == "pooled" {
		pool, err := questions.LoadPool(cfg.Interview.PoolFile)
		if err != nil {
			return nil, err
		}
		return questions.NewPooled(pool, rand.New(rand.NewSource(time.Now().UnixNano()))), nil
	}
	return questions.NewGenerative(completer, system, logger), nil
}
