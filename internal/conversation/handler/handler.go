// Package handler exposes the conversation endpoints consultants use to
// inspect, take over, and return conversations.
package handler

import (
	"net/http"
	"strconv"

	"tripflow_backend/internal/conversation/service"
	"tripflow_backend/platform/httpkit"
	"tripflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/conversations", h.List)
	rg.GET("/conversations/:id", h.Get)
	rg.POST("/conversations/:id/accept", h.Accept)
	rg.POST("/conversations/:id/finish", h.Finish)
	rg.POST("/conversations/:id/close", h.Close)
	rg.POST("/conversations/:id/messages", h.SendMessage)
}

// List returns conversations, optionally filtered by status.
// GET /api/v1/conversations?status=waiting_handoff
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	conversations, err := h.svc.List(c.Request.Context(), c.Query("status"), limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": conversations})
}

// Get returns one conversation with its message log.
// GET /api/v1/conversations/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}

	conv, messages, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{
		"conversation": conv,
		"messages":     messages,
	})
}

// Accept puts the authenticated consultant in charge of a waiting handoff.
// POST /api/v1/conversations/:id/accept
func (h *Handler) Accept(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	consultantID, ok := h.consultant(c)
	if !ok {
		return
	}

	conv, err := h.svc.AcceptHandoff(c.Request.Context(), id, consultantID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, conv)
}

// Finish returns a human-attended conversation to the AI.
// POST /api/v1/conversations/:id/finish
func (h *Handler) Finish(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	consultantID, ok := h.consultant(c)
	if !ok {
		return
	}

	conv, err := h.svc.FinishHumanAttendance(c.Request.Context(), id, consultantID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, conv)
}

// Close terminates a conversation.
// POST /api/v1/conversations/:id/close
func (h *Handler) Close(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}

	conv, err := h.svc.Close(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, conv)
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required,min=1,max=4000"`
}

// SendMessage sends a consultant message into a human-attended conversation.
// POST /api/v1/conversations/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	id, ok := h.conversationID(c)
	if !ok {
		return
	}
	consultantID, ok := h.consultant(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	msg, err := h.svc.ConsultantSend(c.Request.Context(), id, consultantID, req.Text)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, msg)
}

func (h *Handler) conversationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid conversation id", nil)
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) consultant(c *gin.Context) (uuid.UUID, bool) {
	consultantID, ok := httpkit.ConsultantID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "unauthenticated", nil)
		return uuid.UUID{}, false
	}
	return consultantID, true
}
