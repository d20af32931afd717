// The worker consumes queued background tasks: outbound channel sends and
// the periodic no-contact sweep. Automation handlers run here too, so rule
// actions fired by the sweep stay off the API process.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tripflow_backend/internal/automation"
	"tripflow_backend/internal/channel"
	consultantrepo "tripflow_backend/internal/consultants/repository"
	"tripflow_backend/internal/conversation/assign"
	"tripflow_backend/internal/email"
	"tripflow_backend/internal/events"
	leadrepo "tripflow_backend/internal/leads/repository"
	"tripflow_backend/internal/notification"
	"tripflow_backend/internal/realtime"
	"tripflow_backend/internal/scheduler"
	"tripflow_backend/platform/config"
	"tripflow_backend/platform/db"
	"tripflow_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	broker := realtime.NewBroker(log)

	leadsRepo := leadrepo.New(pool)
	consultantsRepo := consultantrepo.New(pool)

	whatsappClient := channel.NewWhatsAppClient(cfg, log)
	instagramClient := channel.NewInstagramClient(cfg, log)
	dispatcher := channel.NewDispatcher(leadsRepo, whatsappClient, instagramClient, log)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	selector := assign.New(consultantsRepo, rng, log)

	alertSender := email.NewAlertSender(cfg, log)
	notificationModule := notification.NewModule(pool, broker, alertSender, log)
	notificationModule.RegisterHandlers(eventBus)

	automationModule := automation.NewModule(pool, leadsRepo, selector, notificationModule.Service(), eventBus, log)
	automationModule.RegisterHandlers(eventBus)

	worker, err := scheduler.NewWorker(cfg, dispatcher, leadsRepo, eventBus, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		periodic.Run(ctx)
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining tasks")
	wg.Wait()
}
