package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tripflow_backend/internal/auth"
	"tripflow_backend/internal/automation"
	consultantrepo "tripflow_backend/internal/consultants/repository"
	"tripflow_backend/internal/conversation"
	"tripflow_backend/internal/conversation/agent"
	"tripflow_backend/internal/conversation/assign"
	"tripflow_backend/internal/conversation/handoff"
	convrepo "tripflow_backend/internal/conversation/repository"
	convservice "tripflow_backend/internal/conversation/service"
	"tripflow_backend/internal/conversation/stage"
	"tripflow_backend/internal/conversation/trigger"
	"tripflow_backend/internal/email"
	"tripflow_backend/internal/events"
	apphttp "tripflow_backend/internal/http"
	"tripflow_backend/internal/http/router"
	leadrepo "tripflow_backend/internal/leads/repository"
	"tripflow_backend/internal/notification"
	"tripflow_backend/internal/realtime"
	"tripflow_backend/internal/scheduler"
	"tripflow_backend/internal/storage"
	"tripflow_backend/internal/webhook"
	"tripflow_backend/platform/config"
	"tripflow_backend/platform/db"
	"tripflow_backend/platform/logger"
	"tripflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	broker := realtime.NewBroker(log)
	val := validator.New()

	outbound, closeOutbound := initOutboundClient(cfg, log)
	if closeOutbound != nil {
		defer closeOutbound()
	}

	mediaStore, err := storage.NewMediaStore(cfg, log)
	if err != nil {
		log.Error("failed to initialize media storage", "error", err)
		panic("failed to initialize media storage: " + err.Error())
	}
	if mediaStore != nil {
		if err := withRetry(ctx, log, "ensure media bucket", 5, 2*time.Second, func() error {
			return mediaStore.EnsureBucketExists(ctx)
		}); err != nil {
			log.Error("failed to ensure media bucket exists", "error", err)
			panic("failed to ensure media bucket exists: " + err.Error())
		}
		log.Info("media storage initialized", "bucket", cfg.GetMinioBucketMessageMedia())
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadsRepo := leadrepo.New(pool)
	consultantsRepo := consultantrepo.New(pool)
	conversationsRepo := convrepo.New(pool)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	selector := assign.New(consultantsRepo, rng, log)

	responder, err := agent.NewAssistant(cfg, log)
	if err != nil {
		log.Error("failed to initialize AI responder", "error", err)
		panic("failed to initialize AI responder: " + err.Error())
	}
	if responder == nil {
		log.Warn("AI responder disabled; conversations stay silent in AI mode")
	}

	orchestrator := convservice.New(
		conversationsRepo,
		leadsRepo,
		trigger.New(),
		stage.New(),
		handoff.New(cfg.GetHandoffHighValueBudget()),
		selector,
		assistantResponder(responder),
		outbound,
		broker,
		eventBus,
		log,
	)

	conversationModule := conversation.NewModule(orchestrator, val)

	alertSender := email.NewAlertSender(cfg, log)
	notificationModule := notification.NewModule(pool, broker, alertSender, log)
	notificationModule.RegisterHandlers(eventBus)

	automationModule := automation.NewModule(pool, leadsRepo, selector, notificationModule.Service(), eventBus, log)
	automationModule.RegisterHandlers(eventBus)

	authModule := auth.NewModule(auth.NewService(consultantsRepo, cfg, log), val)

	webhookService := webhook.NewService(
		webhook.NewDeduper(initDedupRedis(cfg, log)),
		leadsRepo,
		orchestrator,
		webhookMedia(mediaStore),
		eventBus,
		log,
	)
	webhookModule := webhook.NewModule(webhookService, cfg.GetWebhookAPIKey())

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			authModule,
			conversationModule,
			notificationModule,
			webhookModule,
			realtime.NewModule(broker),
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initOutboundClient builds the asynq client for queued channel sends. With
// no Redis configured the orchestrator runs without outbound delivery.
func initOutboundClient(cfg config.SchedulerConfig, log *logger.Logger) (convservice.OutboundEnqueuer, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; outbound channel sends disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize outbound client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func initDedupRedis(cfg config.WebhookConfig, log *logger.Logger) *redis.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; webhook deduplication disabled")
		return nil
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("invalid REDIS_URL; webhook deduplication disabled", "error", err)
		return nil
	}
	return redis.NewClient(opt)
}

// webhookMedia keeps a disabled media store out of the interface value, so
// the webhook service's nil check works.
func webhookMedia(store *storage.MediaStore) webhook.MediaStore {
	if store == nil {
		return nil
	}
	return store
}

// assistantResponder does the same for a disabled assistant.
func assistantResponder(a *agent.Assistant) convservice.Responder {
	if a == nil {
		return nil
	}
	return a
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
