package realtime

import (
	"encoding/json"

	"tripflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func sseHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

// stream pumps events from the subscribed channels to the client until it
// disconnects. Closing any source channel also ends the stream.
func stream(c *gin.Context, sources ...<-chan Event) {
	sseHeaders(c)
	c.SSEvent("connected", gin.H{"ok": true})
	c.Writer.Flush()

	merged := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	defer close(done)

	for _, src := range sources {
		go func(src <-chan Event) {
			for ev := range src {
				select {
				case merged <- ev:
				case <-done:
					return
				}
			}
		}(src)
	}

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case ev := <-merged:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			c.SSEvent(ev.Name, string(data))
			c.Writer.Flush()
		}
	}
}

// ConversationStreamHandler streams events for one conversation to the
// authenticated consultant viewing it.
func (b *Broker) ConversationStreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			httpkit.Error(c, 400, "invalid conversation id", nil)
			return
		}

		ch, cancel := b.Subscribe(ConversationGroup(conversationID))
		defer cancel()
		stream(c, ch)
	}
}

// ConsultantStreamHandler streams the authenticated consultant's own
// notification feed plus the broadcast group.
func (b *Broker) ConsultantStreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		consultantID, ok := httpkit.ConsultantID(c)
		if !ok {
			httpkit.Error(c, 401, "unauthorized", nil)
			return
		}

		own, cancelOwn := b.Subscribe(ConsultantGroup(consultantID))
		defer cancelOwn()
		all, cancelAll := b.Subscribe(GroupBroadcast)
		defer cancelAll()
		stream(c, own, all)
	}
}
