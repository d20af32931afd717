package scheduler

import (
	"context"
	"fmt"
	"time"

	"tripflow_backend/internal/channel"
	"tripflow_backend/internal/events"
	leadrepo "tripflow_backend/internal/leads/repository"
	"tripflow_backend/platform/config"
	"tripflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// WorkerConfig is what the worker needs from configuration.
type WorkerConfig interface {
	config.SchedulerConfig
	config.NoContactConfig
}

// Worker consumes queued tasks: outbound channel sends and the periodic
// no-contact sweep.
type Worker struct {
	server         *asynq.Server
	mux            *asynq.ServeMux
	dispatcher     *channel.Dispatcher
	leads          *leadrepo.Repository
	bus            events.Bus
	noContactHours int
	log            *logger.Logger
}

func NewWorker(cfg WorkerConfig, dispatcher *channel.Dispatcher, leads *leadrepo.Repository, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	noContactHours := cfg.GetNoContactHours()
	if noContactHours < 1 {
		noContactHours = 24
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:         server,
		mux:            mux,
		dispatcher:     dispatcher,
		leads:          leads,
		bus:            bus,
		noContactHours: noContactHours,
		log:            log,
	}

	mux.HandleFunc(TaskOutboundMessage, w.handleOutboundMessage)
	mux.HandleFunc(TaskNoContactCheck, w.handleNoContactCheck)

	return w, nil
}

func (w *Worker) handleOutboundMessage(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOutboundMessagePayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	return w.dispatcher.Dispatch(ctx, leadID, payload.Channel, payload.Text)
}

// handleNoContactCheck publishes a no-contact event for every lead that has
// been silent past the configured window. The rule engine decides what to
// do with each.
func (w *Worker) handleNoContactCheck(ctx context.Context, _ *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	cutoff := time.Now().Add(-time.Duration(w.noContactHours) * time.Hour)
	silent, err := w.leads.ListSilentSince(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, lead := range silent {
		hours := w.noContactHours
		if lead.LastContactAt != nil {
			hours = int(time.Since(*lead.LastContactAt).Hours())
		}
		w.bus.Publish(ctx, events.LeadNoContact{
			BaseEvent:    events.NewBaseEvent(),
			LeadID:       lead.ID,
			HoursSilent:  hours,
			CurrentStage: lead.Stage,
		})
	}

	if len(silent) > 0 {
		w.log.Info("no-contact sweep finished", "leads", len(silent))
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
