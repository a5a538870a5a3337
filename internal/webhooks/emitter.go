package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/portsidehq/portside/internal/idgen"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	webhookEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portside",
		Subsystem: "webhook",
		Name:      "emit_total",
		Help:      "Total webhook emit attempts by event type.",
	}, []string{"event_type"})

	webhookEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portside",
		Subsystem: "webhook",
		Name:      "emit_errors_total",
		Help:      "Total webhook emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(webhookEmitTotal, webhookEmitErrors)
}

// Emitter wraps a Dispatcher to emit lifecycle events across subsystems.
// All methods are fire-and-forget: errors are logged but never returned.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

func (e *Emitter) emit(accountID string, eventType EventType, data map[string]interface{}) {
	if e == nil || e.d == nil {
		return
	}
	webhookEmitTotal.WithLabelValues(string(eventType)).Inc()
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.d.DispatchToAccount(ctx, accountID, event); err != nil {
		webhookEmitErrors.WithLabelValues(string(eventType)).Inc()
		e.logger.Warn("webhook emit failed", "event", eventType, "account", accountID, "error", err)
	}
}

// --- Tier request events ---

// EmitTierRequestCreated emits a tier.request.created event.
func (e *Emitter) EmitTierRequestCreated(accountID, requestID, requestType, currentTier, requestedTier string) {
	e.emit(accountID, EventTierRequestCreated, map[string]interface{}{
		"requestId":     requestID,
		"accountId":     accountID,
		"requestType":   requestType,
		"currentTier":   currentTier,
		"requestedTier": requestedTier,
	})
}

// EmitTierRequestApproved emits a tier.request.approved event.
func (e *Emitter) EmitTierRequestApproved(accountID, requestID, newTier, adminNotes string) {
	e.emit(accountID, EventTierRequestApproved, map[string]interface{}{
		"requestId":  requestID,
		"accountId":  accountID,
		"newTier":    newTier,
		"adminNotes": adminNotes,
	})
}

// EmitTierRequestRejected emits a tier.request.rejected event.
func (e *Emitter) EmitTierRequestRejected(accountID, requestID, reason string) {
	e.emit(accountID, EventTierRequestRejected, map[string]interface{}{
		"requestId": requestID,
		"accountId": accountID,
		"reason":    reason,
	})
}

// EmitTierRequestCancelled emits a tier.request.cancelled event.
func (e *Emitter) EmitTierRequestCancelled(accountID, requestID string) {
	e.emit(accountID, EventTierRequestCancelled, map[string]interface{}{
		"requestId": requestID,
		"accountId": accountID,
	})
}

// --- Vendor profile events ---

// EmitVendorUpdated emits a vendor.updated event.
func (e *Emitter) EmitVendorUpdated(accountID, profileID string, changedFields []string) {
	e.emit(accountID, EventVendorUpdated, map[string]interface{}{
		"profileId":     profileID,
		"accountId":     accountID,
		"changedFields": changedFields,
	})
}

// EmitVendorPublished emits a vendor.published event.
func (e *Emitter) EmitVendorPublished(accountID, profileID, slug string) {
	e.emit(accountID, EventVendorPublished, map[string]interface{}{
		"profileId": profileID,
		"accountId": accountID,
		"slug":      slug,
	})
}
