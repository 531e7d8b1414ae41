package webhook

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/internal/shared"
)

type capturingEnqueuer struct {
	deliveries []Delivery
	err        error
}

func (e *capturingEnqueuer) EnqueueWebhookDelivery(_ context.Context, d Delivery) error {
	e.deliveries = append(e.deliveries, d)
	return e.err
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatchQueuesPayload(t *testing.T) {
	enq := &capturingEnqueuer{}
	d := NewDispatcher(enq, discardLogger())

	d.Dispatch(context.Background(), "action.completed", map[string]any{"log_id": 42})

	require.Len(t, enq.deliveries, 1)
	require.Equal(t, "action.completed", enq.deliveries[0].Event)
	require.NotEmpty(t, enq.deliveries[0].ID)
	require.JSONEq(t, `{"log_id":42}`, string(enq.deliveries[0].Body))
}

func TestDispatchNilEnqueuerIsNoop(t *testing.T) {
	d := NewDispatcher(nil, discardLogger())
	d.Dispatch(context.Background(), "action.completed", map[string]any{})
}

func TestAuditFanoutRecordsAndDispatches(t *testing.T) {
	enq := &capturingEnqueuer{}
	audit := &recordingAudit{}
	fanout := NewAuditFanout(audit, NewDispatcher(enq, discardLogger()))

	err := fanout.Record(context.Background(), shared.AuditLog{
		ActorID:  7,
		Action:   "ACTION_BEGIN",
		Entity:   "action_log",
		EntityID: "42",
	})
	require.NoError(t, err)
	require.Len(t, audit.logs, 1)
	require.Len(t, enq.deliveries, 1)
	require.Equal(t, "audit.recorded", enq.deliveries[0].Event)
	require.Contains(t, string(enq.deliveries[0].Body), `"ACTION_BEGIN"`)
}
