package scheduler

import (
	"context"
	"fmt"

	"tripflow_backend/platform/config"
	"tripflow_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic registers the recurring no-contact sweep with asynq's scheduler.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
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

	scheduler := asynq.NewScheduler(opt, nil)
	if _, err := scheduler.Register("@every 1h", NewNoContactCheckTask(), asynq.Queue(queue)); err != nil {
		return nil, fmt.Errorf("register no-contact sweep: %w", err)
	}

	return &Periodic{scheduler: scheduler, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		p.scheduler.Shutdown()
	}()

	if err := p.scheduler.Run(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
	}
}
