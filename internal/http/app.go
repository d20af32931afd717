package http

import (
	"context"

	"tripflow_backend/internal/events"
	"tripflow_backend/platform/config"
	"tripflow_backend/platform/logger"
)

// RouterConfig combines the config interfaces the router needs.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized application dependencies. Populated by the
// composition root and passed to the router.
type App struct {
	Config   RouterConfig
	Logger   *logger.Logger
	Health   HealthChecker
	EventBus events.Bus
	Modules  []Module
}
