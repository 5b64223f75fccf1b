package handlers

import (
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"mark-operator.backend/internal/usecases"
	"mark-operator.backend/pkg/logger"
	"mark-operator.backend/pkg/utils"
)

// EventEnqueuer accepts a webhook event for asynchronous processing. It
// reports false when the invoice already has a queued or in-flight event.
type EventEnqueuer interface {
	Enqueue(id string, eventType usecases.EventType) bool
}

// WebhookHandler receives indexer webhooks and feeds the event queue
type WebhookHandler struct {
	queue          EventEnqueuer
	minBlockNumber uint64
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(queue EventEnqueuer, minBlockNumber uint64) *WebhookHandler {
	return &WebhookHandler{queue: queue, minBlockNumber: minBlockNumber}
}

type webhookPayload struct {
	GsGid       string `json:"_gs_gid"`
	Intent      string `json:"intent" binding:"required"`
	BlockNumber uint64 `json:"block_number"`
}

// HandleWebhook processes POST /webhook?name=<event>
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	eventType, ok := eventTypeFromName(c.Query("name"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown webhook name"})
		return
	}

	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	webhookID := payload.GsGid
	if webhookID == "" {
		webhookID = uuid.New().String()
	}

	if payload.BlockNumber < h.minBlockNumber {
		c.JSON(http.StatusOK, gin.H{
			"message":   "stale event dropped",
			"processed": false,
			"webhookId": webhookID,
		})
		return
	}

	invoiceID, err := invoiceIDFromIntent(payload.Intent)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid intent: " + err.Error()})
		return
	}

	accepted := h.queue.Enqueue(invoiceID, eventType)
	message := "event enqueued"
	if !accepted {
		message = "event already in flight"
	}
	logger.Debug(c.Request.Context(), "webhook received",
		zap.String("event_type", string(eventType)),
		zap.String("invoice_id", invoiceID),
		zap.Bool("accepted", accepted))

	c.JSON(http.StatusOK, gin.H{
		"message":   message,
		"processed": accepted,
		"webhookId": webhookID,
	})
}

func eventTypeFromName(name string) (usecases.EventType, bool) {
	switch usecases.EventType(name) {
	case usecases.EventInvoiceEnqueued:
		return usecases.EventInvoiceEnqueued, true
	case usecases.EventSettlementEnqueued:
		return usecases.EventSettlementEnqueued, true
	}
	return "", false
}

// invoiceIDFromIntent derives the 32-byte invoice id from the intent
// field. Indexers send the raw intent bytes base64-encoded with the id
// in the first word; some relays pass the id through as hex already.
func invoiceIDFromIntent(intent string) (string, error) {
	if strings.HasPrefix(intent, "0x") || strings.HasPrefix(intent, "0X") {
		return utils.NormalizeHex(intent), nil
	}
	raw, err := base64.StdEncoding.DecodeString(intent)
	if err != nil {
		return "", err
	}
	if len(raw) > 32 {
		raw = raw[:32]
	}
	return "0x" + hex.EncodeToString(raw), nil
}
