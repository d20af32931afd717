package webhook

import (
	"net/http"
	"strings"

	"tripflow_backend/internal/conversation/domain"
	"tripflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ---- WhatsApp (gowa gateway) ----

type gowaWebhookPayload struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Pushname  string `json:"pushname"`
	Message   struct {
		Text string `json:"text"`
	} `json:"message"`
	Image *struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
		Caption  string `json:"caption"`
	} `json:"image"`
}

// HandleWhatsApp processes an inbound WhatsApp delivery.
// POST /api/v1/webhook/whatsapp
func (h *Handler) HandleWhatsApp(c *gin.Context) {
	var payload gowaWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}

	in := InboundMessage{
		Channel:    domain.ChannelWhatsApp,
		MessageID:  payload.MessageID,
		From:       jidToPhone(payload.From),
		SenderName: payload.Pushname,
		Text:       payload.Message.Text,
	}
	if payload.Image != nil {
		in.MediaURL = payload.Image.URL
		in.MediaMIME = payload.Image.MimeType
		if in.Text == "" {
			in.Text = payload.Image.Caption
		}
	}

	result, err := h.service.ProcessInbound(c.Request.Context(), in)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// jidToPhone strips the JID suffix gowa uses ("5511999990000@s.whatsapp.net").
func jidToPhone(jid string) string {
	number, _, _ := strings.Cut(jid, "@")
	return number
}

// ---- Instagram (Graph messaging) ----

type graphWebhookPayload struct {
	Entry []struct {
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Message struct {
				MID         string `json:"mid"`
				Text        string `json:"text"`
				Attachments []struct {
					Type    string `json:"type"`
					Payload struct {
						URL string `json:"url"`
					} `json:"payload"`
				} `json:"attachments"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// HandleInstagram processes a batch of inbound Instagram messaging events.
// POST /api/v1/webhook/instagram
func (h *Handler) HandleInstagram(c *gin.Context) {
	var payload graphWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}

	results := make([]ProcessResult, 0)
	for _, entry := range payload.Entry {
		for _, m := range entry.Messaging {
			in := InboundMessage{
				Channel:   domain.ChannelInstagram,
				MessageID: m.Message.MID,
				From:      m.Sender.ID,
				Text:      m.Message.Text,
			}
			if len(m.Message.Attachments) > 0 {
				in.MediaURL = m.Message.Attachments[0].Payload.URL
			}

			result, err := h.service.ProcessInbound(c.Request.Context(), in)
			if httpkit.HandleError(c, err) {
				return
			}
			results = append(results, result)
		}
	}

	httpkit.OK(c, gin.H{"results": results})
}
