package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/internal/webhook"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleWebhookDeliverSignsPayload(t *testing.T) {
	signer := webhook.NewSigner("s3cret")
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(webhook.SignatureHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, signer, discardLogger())
	task, err := NewWebhookDeliverTask(webhook.Delivery{Event: "audit.recorded", Body: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)

	require.NoError(t, sender.HandleWebhookDeliver(context.Background(), task))
	require.NotEmpty(t, gotBody)
	require.True(t, signer.Verify(gotBody, gotSig))
}

func TestHandleWebhookDeliverEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, webhook.NewSigner("s3cret"), discardLogger())
	task, err := NewWebhookDeliverTask(webhook.Delivery{Event: "audit.recorded", Body: json.RawMessage(`{}`)})
	require.NoError(t, err)

	require.Error(t, sender.HandleWebhookDeliver(context.Background(), task))
}

func TestHandleWebhookDeliverNoEndpointConfigured(t *testing.T) {
	sender := NewWebhookSender("", webhook.NewSigner("s3cret"), discardLogger())
	task, err := NewWebhookDeliverTask(webhook.Delivery{Event: "audit.recorded", Body: json.RawMessage(`{}`)})
	require.NoError(t, err)

	require.NoError(t, sender.HandleWebhookDeliver(context.Background(), task))
}

type countingSweeper struct {
	calls int
	n     int64
}

func (s *countingSweeper) SweepExpired(_ context.Context) (int64, error) {
	s.calls++
	return s.n, nil
}

func TestScreenViewSweepHandler(t *testing.T) {
	sweeper := &countingSweeper{n: 2}
	handler := NewScreenViewSweepHandler(sweeper, discardLogger())

	require.NoError(t, handler(context.Background(), asynq.NewTask(TaskTypeScreenViewSweep, nil)))
	require.Equal(t, 1, sweeper.calls)
}

func TestHandleSendEmailBadPayloadSkipsRetry(t *testing.T) {
	mailer := NewMailer(SMTPConfig{Host: "localhost", Port: 1025, From: "noreply@fleetdesk.local"}, discardLogger())
	err := mailer.HandleSendEmail(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
