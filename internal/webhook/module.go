package webhook

import (
	apphttp "tripflow_backend/internal/http"
)

// Module mounts the public channel webhook endpoints. They sit on the open
// v1 group behind API-key auth; gateways cannot carry consultant JWTs.
type Module struct {
	handler *Handler
	apiKey  string
}

func NewModule(service *Service, apiKey string) *Module {
	return &Module{handler: NewHandler(service), apiKey: apiKey}
}

func (m *Module) Name() string { return "webhook" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhook")
	group.Use(APIKeyAuth(m.apiKey))
	group.POST("/whatsapp", m.handler.HandleWhatsApp)
	group.POST("/instagram", m.handler.HandleInstagram)
}
