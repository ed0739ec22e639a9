package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/arcagent/gateway/internal/agent"
	"github.com/arcagent/gateway/internal/observability/metrics"
	"github.com/arcagent/gateway/pkg/logging"
)

var twilioTracer = otel.Tracer("arcagent.internal.messaging.twilio")

// emptyTwimlAck tells Twilio the message was received and nothing should be
// sent synchronously; the reply arrives later through the outbound path.
const emptyTwimlAck = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

type messagePublisher interface {
	EnqueueMessage(ctx context.Context, req agent.MessageRequest) error
}

// Handler handles the messaging webhook endpoints.
type Handler struct {
	webhookSecret string
	publicBaseURL string
	publisher     messagePublisher
	metrics       *metrics.GatewayMetrics
	logger        *logging.Logger
}

// NewHandler creates a new messaging handler. publicBaseURL is the externally
// visible base URL used for signature verification behind proxies; leave it
// empty to reconstruct the URL from request headers. metrics may be nil.
func NewHandler(webhookSecret, publicBaseURL string, publisher messagePublisher, m *metrics.GatewayMetrics, logger *logging.Logger) *Handler {
	if publisher == nil {
		panic("messaging: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		webhookSecret: webhookSecret,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		publisher:     publisher,
		metrics:       m,
		logger:        logger,
	}
}

func (h *Handler) webhookURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL + r.URL.RequestURI()
	}
	return buildAbsoluteURL(r)
}

// TwilioWebhook handles POST /webhooks/twilio/incoming. The channel contract
// is an always-successful ack: once the caller is authenticated, every
// outcome, including a payload we cannot use, answers 200 with an empty
// TwiML body. Replies travel the asynchronous outbound path instead.
func (h *Handler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := twilioTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()

	if h.webhookSecret != "" {
		if !ValidateTwilioSignature(r, h.webhookSecret, h.webhookURL(r)) {
			h.logger.Warn("invalid twilio signature")
			span.RecordError(errors.New("invalid twilio signature"))
			h.countInbound("unauthorized")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		span.RecordError(err)
		h.countInbound("invalid")
		h.ack(w)
		return
	}

	sender := NormalizeSender(webhook.From)
	span.SetAttributes(
		attribute.String("arcagent.twilio.message_sid", webhook.MessageSid),
		attribute.String("arcagent.sender", sender),
	)

	if sender == "" || webhook.Body == "" {
		h.logger.Warn("twilio payload missing sender or body", "message_sid", webhook.MessageSid)
		h.countInbound("invalid")
		h.ack(w)
		return
	}

	msgReq := agent.MessageRequest{
		Sender:     sender,
		Message:    webhook.Body,
		MessageSID: webhook.MessageSid,
		Metadata: map[string]string{
			"twilio_account_sid": webhook.AccountSid,
			"channel_address":    webhook.From,
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := h.publisher.EnqueueMessage(publishCtx, msgReq); err != nil {
		h.logger.Error("failed to enqueue message", "error", err, "message_sid", webhook.MessageSid)
		span.RecordError(err)
		h.countInbound("enqueue_failed")
		h.ack(w)
		return
	}

	h.logger.Info("twilio webhook accepted", "sender", sender, "message_sid", webhook.MessageSid)
	h.countInbound("accepted")
	h.ack(w)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

func (h *Handler) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwimlAck))
}

func (h *Handler) countInbound(status string) {
	if h.metrics != nil {
		h.metrics.InboundMessages.WithLabelValues(status).Inc()
	}
}
