package notification

import (
	"strconv"

	"tripflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type handler struct {
	svc *Service
}

func newHandler(svc *Service) *handler {
	return &handler{svc: svc}
}

func (h *handler) registerRoutes(rg *gin.RouterGroup) {
	rg.GET("/notifications", h.list)
	rg.PATCH("/notifications/:id/read", h.markRead)
}

func (h *handler) list(c *gin.Context) {
	consultantID, ok := httpkit.ConsultantID(c)
	if !ok {
		httpkit.Error(c, 401, "unauthenticated", nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 50 {
		limit = 50
	}

	items, err := h.svc.List(c.Request.Context(), consultantID, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": items})
}

func (h *handler) markRead(c *gin.Context) {
	consultantID, ok := httpkit.ConsultantID(c)
	if !ok {
		httpkit.Error(c, 401, "unauthenticated", nil)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, 400, "invalid id", nil)
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), id, consultantID); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "ok"})
}
