// Package conversation ties the orchestrator's service and HTTP surface
// into one mountable module.
package conversation

import (
	"tripflow_backend/internal/conversation/handler"
	"tripflow_backend/internal/conversation/service"
	apphttp "tripflow_backend/internal/http"
	"tripflow_backend/platform/validator"
)

type Module struct {
	service *service.Service
	handler *handler.Handler
}

func NewModule(svc *service.Service, val *validator.Validator) *Module {
	return &Module{
		service: svc,
		handler: handler.New(svc, val),
	}
}

// Service exposes the orchestrator to collaborating modules.
func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) Name() string { return "conversation" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}
