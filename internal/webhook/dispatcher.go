package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdesk/fleetdesk/internal/shared"
)

// Delivery is a signed outbound event waiting for transport. ID lets the
// receiver deduplicate retried deliveries.
type Delivery struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body"`
}

// Enqueuer hands deliveries to the background queue.
type Enqueuer interface {
	EnqueueWebhookDelivery(ctx context.Context, d Delivery) error
}

// Dispatcher fans domain events out to the configured webhook endpoint.
type Dispatcher struct {
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewDispatcher constructs a dispatcher. A nil enqueuer disables dispatch.
func NewDispatcher(enqueuer Enqueuer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{enqueuer: enqueuer, logger: logger}
}

// Dispatch marshals payload and queues it under the event name. Delivery is
// best effort; a queue failure is logged, not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, payload any) {
	if d == nil || d.enqueuer == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("webhook marshal", slog.String("event", event), slog.Any("error", err))
		return
	}
	if err := d.enqueuer.EnqueueWebhookDelivery(ctx, Delivery{ID: uuid.NewString(), Event: event, Body: body}); err != nil {
		d.logger.Error("webhook enqueue", slog.String("event", event), slog.Any("error", err))
	}
}

// AuditFanout records audit entries and mirrors them to the webhook endpoint.
type AuditFanout struct {
	next       shared.AuditRecorder
	dispatcher *Dispatcher
}

// NewAuditFanout wraps next so every audit entry also becomes a webhook event.
func NewAuditFanout(next shared.AuditRecorder, dispatcher *Dispatcher) *AuditFanout {
	return &AuditFanout{next: next, dispatcher: dispatcher}
}

type auditEvent struct {
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// Record persists the entry, then dispatches it as an "audit.recorded" event.
func (f *AuditFanout) Record(ctx context.Context, log shared.AuditLog) error {
	var err error
	if f.next != nil {
		err = f.next.Record(ctx, log)
	}
	at := log.At
	if at.IsZero() {
		at = time.Now()
	}
	f.dispatcher.Dispatch(ctx, "audit.recorded", auditEvent{
		ActorID:  log.ActorID,
		Action:   log.Action,
		Entity:   log.Entity,
		EntityID: log.EntityID,
		Meta:     log.Meta,
		At:       at,
	})
	return err
}
