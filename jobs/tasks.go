package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetdesk/fleetdesk/internal/webhook"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeWebhookDeliver is the task type for outbound webhook calls.
	TaskTypeWebhookDeliver = "webhook:deliver"
	// TaskTypeScreenViewSweep retires expired screen view requests.
	TaskTypeScreenViewSweep = "screenview:sweep"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// SMTPConfig locates the outbound mail relay.
type SMTPConfig struct {
	Host string
	Port int
	From string
}

// Mailer sends queued mail through a plain SMTP relay.
type Mailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewMailer constructs a Mailer.
func NewMailer(cfg SMTPConfig, logger *slog.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: logger}
}

// HandleSendEmail processes TaskTypeSendEmail tasks.
func (m *Mailer) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.cfg.From, payload.To, payload.Subject, payload.Body)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := smtp.SendMail(addr, nil, m.cfg.From, []string{payload.To}, []byte(msg)); err != nil {
		m.logger.Warn("send email", slog.String("to", payload.To), slog.Any("error", err))
		return err
	}
	return nil
}

// NewWebhookDeliverTask constructs an Asynq task for a delivery.
func NewWebhookDeliverTask(d webhook.Delivery) (*asynq.Task, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeWebhookDeliver, data), nil
}

// WebhookSender posts signed deliveries to the configured endpoint.
type WebhookSender struct {
	url    string
	signer *webhook.Signer
	client *http.Client
	logger *slog.Logger
}

// NewWebhookSender constructs a WebhookSender.
func NewWebhookSender(url string, signer *webhook.Signer, logger *slog.Logger) *WebhookSender {
	return &WebhookSender{
		url:    url,
		signer: signer,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// HandleWebhookDeliver processes TaskTypeWebhookDeliver tasks.
func (s *WebhookSender) HandleWebhookDeliver(ctx context.Context, t *asynq.Task) error {
	if s.url == "" {
		return nil
	}
	var d webhook.Delivery
	if err := json.Unmarshal(t.Payload(), &d); err != nil {
		return asynq.SkipRetry
	}
	body, err := json.Marshal(d)
	if err != nil {
		return asynq.SkipRetry
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.SignatureHeader, s.signer.Sign(body))

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		s.logger.Warn("webhook deliver", slog.String("event", d.Event), slog.Int("status", resp.StatusCode))
		return fmt.Errorf("webhook deliver: endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Sweeper retires expired pending records on a schedule.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// NewScreenViewSweepTask constructs the cron task.
func NewScreenViewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeScreenViewSweep, nil)
}

// NewScreenViewSweepHandler processes TaskTypeScreenViewSweep tasks.
func NewScreenViewSweepHandler(sweeper Sweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		swept, err := sweeper.SweepExpired(ctx)
		if err != nil {
			return err
		}
		if swept > 0 {
			logger.Info("screen view sweep", slog.Int64("expired", swept))
		}
		return nil
	}
}
