package realtime

import (
	apphttp "tripflow_backend/internal/http"
)

// Module exposes the broker's SSE endpoints.
type Module struct {
	broker *Broker
}

func NewModule(broker *Broker) *Module {
	return &Module{broker: broker}
}

func (m *Module) Name() string { return "realtime" }

// RegisterRoutes mounts the stream endpoints. Both require authentication:
// streams carry lead conversation content.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/stream", m.broker.ConsultantStreamHandler())
	ctx.Protected.GET("/conversations/:id/stream", m.broker.ConversationStreamHandler())
}
