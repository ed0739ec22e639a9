package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/arcagent/gateway/internal/agent"
)

type capturePublisher struct {
	requests []agent.MessageRequest
	err      error
}

func (p *capturePublisher) EnqueueMessage(_ context.Context, req agent.MessageRequest) error {
	if p.err != nil {
		return p.err
	}
	p.requests = append(p.requests, req)
	return nil
}

func postWebhook(t *testing.T, handler *Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/incoming", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.TwilioWebhook(rec, req)
	return rec
}

func TestTwilioWebhookEnqueuesNormalizedSender(t *testing.T) {
	publisher := &capturePublisher{}
	handler := NewHandler("", "", publisher, nil, nil)

	rec := postWebhook(t, handler, url.Values{
		"MessageSid": {"SM123"},
		"From":       {"whatsapp:+14155551234"},
		"Body":       {"check my balance"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Fatalf("expected xml ack, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "<Response></Response>") {
		t.Fatalf("expected empty TwiML ack, got %q", rec.Body.String())
	}

	if len(publisher.requests) != 1 {
		t.Fatalf("expected one enqueued request, got %d", len(publisher.requests))
	}
	req := publisher.requests[0]
	if req.Sender != "+14155551234" {
		t.Fatalf("expected normalized sender, got %q", req.Sender)
	}
	if req.Message != "check my balance" || req.MessageSID != "SM123" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestTwilioWebhookAcksMissingFields(t *testing.T) {
	publisher := &capturePublisher{}
	handler := NewHandler("", "", publisher, nil, nil)

	rec := postWebhook(t, handler, url.Values{
		"MessageSid": {"SM124"},
		"From":       {"whatsapp:+14155551234"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("channel contract requires 200, got %d", rec.Code)
	}
	if len(publisher.requests) != 0 {
		t.Fatalf("expected nothing enqueued, got %d", len(publisher.requests))
	}
}

func TestTwilioWebhookAcksEnqueueFailure(t *testing.T) {
	publisher := &capturePublisher{err: errors.New("queue full")}
	handler := NewHandler("", "", publisher, nil, nil)

	rec := postWebhook(t, handler, url.Values{
		"MessageSid": {"SM125"},
		"From":       {"whatsapp:+14155551234"},
		"Body":       {"hello"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("ack must not depend on processing, got %d", rec.Code)
	}
}

func TestTwilioWebhookRejectsBadSignature(t *testing.T) {
	publisher := &capturePublisher{}
	handler := NewHandler("auth-token", "", publisher, nil, nil)

	form := url.Values{
		"MessageSid": {"SM126"},
		"From":       {"whatsapp:+14155551234"},
		"Body":       {"hello"},
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/incoming", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "bogus")
	rec := httptest.NewRecorder()
	handler.TwilioWebhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(publisher.requests) != 0 {
		t.Fatalf("expected nothing enqueued, got %d", len(publisher.requests))
	}
}

func TestTwilioWebhookAcceptsValidSignature(t *testing.T) {
	publisher := &capturePublisher{}
	handler := NewHandler("auth-token", "", publisher, nil, nil)

	form := url.Values{
		"MessageSid": {"SM127"},
		"From":       {"whatsapp:+14155551234"},
		"Body":       {"hello"},
	}
	req := httptest.NewRequest(http.MethodPost, "http://gateway.test/webhooks/twilio/incoming", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	payload := buildSignaturePayload("http://gateway.test/webhooks/twilio/incoming", form)
	req.Header.Set("X-Twilio-Signature", computeSignature(payload, "auth-token"))

	rec := httptest.NewRecorder()
	handler.TwilioWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid signature, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(publisher.requests) != 1 {
		t.Fatalf("expected one enqueued request, got %d", len(publisher.requests))
	}
}

func TestHealthCheck(t *testing.T) {
	handler := NewHandler("", "", &capturePublisher{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.HealthCheck(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", body["status"])
	}
	if body["timestamp"] == "" {
		t.Fatal("expected a timestamp")
	}
}
