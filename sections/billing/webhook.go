package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"commune-backend/common"
	"commune-backend/metrics"
	"commune-backend/services"
	"commune-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v84"
)

// EventVerifier checks a webhook signature and decodes the event.
type EventVerifier interface {
	ConstructWebhookEvent(payload []byte, signature string) (stripe.Event, error)
}

// EventLedger de-duplicates redelivered events. See storage.EventLedger.
type EventLedger interface {
	Begin(ctx context.Context, eventID string) (bool, error)
	Complete(ctx context.Context, eventID string) error
	Abort(ctx context.Context, eventID string) error
}

// WebhookHandler serves the Stripe webhook endpoint
type WebhookHandler struct {
	logger     *slog.Logger
	verifier   EventVerifier
	reconciler *Reconciler
	ledger     EventLedger
	metrics    *metrics.WebhookMetrics
}

// NewWebhookHandler creates the webhook handler. ledger and m may be nil.
func NewWebhookHandler(verifier EventVerifier, reconciler *Reconciler, ledger EventLedger, m *metrics.WebhookMetrics) *WebhookHandler {
	return &WebhookHandler{
		logger:     slog.With("handler", "WebhookHandler"),
		verifier:   verifier,
		reconciler: reconciler,
		ledger:     ledger,
		metrics:    m,
	}
}

// HandleWebhook verifies and applies one Stripe event. Verification failures are 400 so
// Stripe stops retrying; processing failures are 500 so it retries.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	start := time.Now()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, common.STRIPE_WEBHOOK_BODY_LIMIT)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Warn("Failed to read webhook body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	event, err := h.verifier.ConstructWebhookEvent(payload, c.GetHeader(common.STRIPE_SIGNATURE_HEADER))
	if errors.Is(err, services.ErrNoSignature) {
		h.metrics.Record("", metrics.OutcomeInvalidSignature, start)
		c.JSON(http.StatusBadRequest, gin.H{"error": "No signature"})
		return
	}
	if err != nil {
		h.metrics.Record("", metrics.OutcomeInvalidSignature, start)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	eventType := string(event.Type)
	ctx := c.Request.Context()
	logger := h.logger.With("event_id", event.ID, "type", eventType)

	claimed := false
	if h.ledger != nil {
		done, err := h.ledger.Begin(ctx, event.ID)
		switch {
		case errors.Is(err, storage.ErrEventInFlight):
			logger.Warn("Webhook event already in flight")
			h.metrics.Record(eventType, metrics.OutcomeInFlight, start)
			c.JSON(http.StatusConflict, gin.H{"error": "Webhook in progress"})
			return
		case err != nil:
			// The ledger only saves work; upserts keep a replay safe without it.
			logger.Warn("Event ledger unavailable, processing without de-duplication", "error", err)
		case done:
			logger.Info("Duplicate webhook event acknowledged")
			h.metrics.Record(eventType, metrics.OutcomeDuplicate, start)
			c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
			return
		default:
			claimed = true
		}
	}

	if err := h.reconciler.Reconcile(ctx, event); err != nil {
		logger.Error("Webhook handler failed", "error", err)
		if claimed {
			if abortErr := h.ledger.Abort(ctx, event.ID); abortErr != nil {
				logger.Warn("Failed to release webhook event", "error", abortErr)
			}
		}
		h.metrics.Record(eventType, metrics.OutcomeFailed, start)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook handler failed"})
		return
	}

	if claimed {
		if err := h.ledger.Complete(ctx, event.ID); err != nil {
			logger.Warn("Failed to record webhook event", "error", err)
		}
	}

	h.metrics.Record(eventType, metrics.OutcomeProcessed, start)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
