package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

const maxWebhookBody = 512 << 10

// Enqueuer hands an envelope to a background worker instead of processing inline.
type Enqueuer interface {
	Send(ctx context.Context, body string) error
}

// Webhook serves SNS HTTP(S) deliveries of SES receipt notifications.
type Webhook struct {
	handler  *Handler
	queue    Enqueuer
	topicARN string
	client   *http.Client
	logger   *logging.Logger

	verifier   *SignatureVerifier
	skipVerify bool
}

// WebhookOption customizes a Webhook.
type WebhookOption func(*Webhook)

// WithTopicARN rejects envelopes from any other topic.
func WithTopicARN(arn string) WebhookOption {
	return func(w *Webhook) {
		w.topicARN = strings.TrimSpace(arn)
	}
}

// WithEnqueuer acknowledges notifications after queueing them for the worker.
func WithEnqueuer(q Enqueuer) WebhookOption {
	return func(w *Webhook) {
		w.queue = q
	}
}

// WithSignatureVerifier replaces the default SNS signature verifier.
func WithSignatureVerifier(v *SignatureVerifier) WebhookOption {
	return func(w *Webhook) {
		w.verifier = v
	}
}

// WithoutSignatureVerification accepts unsigned envelopes. Local use only.
func WithoutSignatureVerification() WebhookOption {
	return func(w *Webhook) {
		w.skipVerify = true
	}
}

// WithConfirmClient sets the client used to confirm SNS subscriptions and
// download signing certificates.
func WithConfirmClient(c *http.Client) WebhookOption {
	return func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	}
}

// NewWebhook builds the SNS webhook handler.
func NewWebhook(handler *Handler, logger *logging.Logger, opts ...WebhookOption) *Webhook {
	if handler == nil {
		panic("inbound: handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Webhook{
		handler: handler,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.verifier == nil {
		w.verifier = NewSignatureVerifier(w.client)
	}
	return w
}

// ServeHTTP verifies the SNS signature, then confirms subscriptions or
// processes (or enqueues) receipt notifications.
func (wh *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := wh.logger.WithContext(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	env, err := ParseEnvelope(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sns envelope"})
		return
	}
	if !wh.skipVerify {
		if err := wh.verifier.Verify(ctx, body); err != nil {
			if !errors.Is(err, ErrInvalidSignature) {
				log.Error("sns signature check failed", "error", err, "sns_message_id", env.MessageID)
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": "signature check failed"})
				return
			}
			log.Warn("rejecting unsigned sns envelope", "error", err, "sns_message_id", env.MessageID)
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid signature"})
			return
		}
	}
	if wh.topicARN != "" && env.TopicArn != wh.topicARN {
		log.Warn("sns envelope from unexpected topic", "topic_arn", env.TopicArn)
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "unexpected topic"})
		return
	}

	switch env.Type {
	case "SubscriptionConfirmation":
		if err := wh.confirm(ctx, env.SubscribeURL); err != nil {
			log.Error("sns subscription confirmation failed", "error", err, "topic_arn", env.TopicArn)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "confirmation failed"})
			return
		}
		log.Info("sns subscription confirmed", "topic_arn", env.TopicArn)
		writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
		return
	case "UnsubscribeConfirmation":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if wh.queue != nil {
		if err := wh.queue.Send(ctx, string(body)); err != nil {
			log.Error("failed to enqueue inbound notification", "error", err, "sns_message_id", env.MessageID)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "enqueue failed"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	res, err := wh.handler.HandleEnvelope(ctx, body)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case Permanent(err):
		// SNS retries anything but 2xx; a permanent failure would loop.
		log.Warn("dropping inbound notification", "error", err, "sns_message_id", env.MessageID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "dropped", "reason": err.Error()})
	default:
		log.Error("inbound notification failed", "error", err, "sns_message_id", env.MessageID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "processing failed"})
	}
}

func (wh *Webhook) confirm(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("inbound: parse subscribe url: %w", err)
	}
	if u.Scheme != "https" || !strings.HasSuffix(u.Hostname(), ".amazonaws.com") {
		return fmt.Errorf("inbound: refusing subscribe url host %q", u.Host)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("inbound: build confirm request: %w", err)
	}
	resp, err := wh.client.Do(req)
	if err != nil {
		return fmt.Errorf("inbound: confirm subscription: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("inbound: confirm subscription: status %d", resp.StatusCode)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
