// Package callback posts conversation lifecycle notifications to the
// planner system of record.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	"github.com/groupize/aime-planner-chatbot/internal/retry"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

const (
	defaultPathPrefix = "/api/v1/chatbot"
	defaultUserAgent  = "AIME-Planner-Chatbot/1.0"
	healthPath        = "/api/v1/health"
	timestampLayout   = "2006-01-02T15:04:05.999999Z"
)

var tracer = otel.Tracer("aime.internal.callback")

// Config controls the callback client.
type Config struct {
	BaseURL       string
	APIKey        string
	PathPrefix    string
	Timeout       time.Duration
	HealthTimeout time.Duration
	Retry         retry.Policy
	HTTPClient    *http.Client
	Logger        *logging.Logger
	UserAgent     string
	Now           func() time.Time
}

// Client implements conversation.CallbackAPI over JSON/HTTP.
type Client struct {
	baseURL       string
	apiKey        string
	prefix        string
	timeout       time.Duration
	healthTimeout time.Duration
	policy        retry.Policy
	httpClient    *http.Client
	logger        *logging.Logger
	userAgent     string
	now           func() time.Time
}

var _ conversation.CallbackAPI = (*Client)(nil)

// New validates cfg and fills defaults.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("callback: base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("callback: API key is required")
	}
	prefix := strings.TrimSpace(cfg.PathPrefix)
	if prefix == "" {
		prefix = defaultPathPrefix
	}
	prefix = "/" + strings.Trim(prefix, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 10 * time.Second
	}
	policy := cfg.Retry
	if policy.MaxAttempts <= 0 {
		policy = retry.Default()
	}
	if policy.Retryable == nil {
		policy.Retryable = retryable
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:       baseURL,
		apiKey:        cfg.APIKey,
		prefix:        prefix,
		timeout:       timeout,
		healthTimeout: healthTimeout,
		policy:        policy,
		httpClient:    httpClient,
		logger:        logger,
		userAgent:     userAgent,
		now:           now,
	}, nil
}

// Started reports the initial outreach outcome.
func (c *Client) Started(ctx context.Context, n conversation.StartedNotice) error {
	return c.post(ctx, "started", fmt.Sprintf("/conversations/%s/started", n.ConversationID), n.ConversationID, startedPayload{
		ConversationID:   n.ConversationID,
		VendorEmail:      n.VendorEmail,
		InitialEmailSent: n.EmailSent,
		Timestamp:        c.timestamp(),
		CallbackData:     n.CallbackData,
	})
}

// Updated reports progress after a vendor reply.
func (c *Client) Updated(ctx context.Context, n conversation.UpdateNotice) error {
	answered := make([]conversation.Question, 0, len(n.Questions))
	for _, q := range n.Questions {
		if q.Answered {
			answered = append(answered, q)
		}
	}
	return c.post(ctx, "update", "/conversation_updates", n.ConversationID, updatePayload{
		ConversationID:    n.ConversationID,
		Status:            string(n.Status),
		QuestionsAnswered: formatQuestions(answered),
		IsFinal:           n.IsFinal,
		Timestamp:         c.timestamp(),
		RawEmailContent:   n.RawEmail,
		AttemptCount:      n.AttemptCount,
		CallbackData:      n.CallbackData,
	})
}

// Completed reports a terminal conversation with all answers gathered.
func (c *Client) Completed(ctx context.Context, n conversation.CompletedNotice) error {
	completedAt := n.CompletedAt
	if completedAt.IsZero() {
		completedAt = c.now()
	}
	return c.post(ctx, "completed", fmt.Sprintf("/conversations/%s/completed", n.ConversationID), n.ConversationID, completedPayload{
		ConversationID: n.ConversationID,
		FinalStatus:    string(n.FinalStatus),
		AllAnswers:     formatQuestions(n.Questions),
		AttemptCount:   n.AttemptCount,
		CompletedAt:    completedAt.UTC().Format(timestampLayout),
		CallbackData:   n.CallbackData,
	})
}

// ReportError posts to the errors channel.
func (c *Client) ReportError(ctx context.Context, r conversation.ErrorReport) error {
	errCtx := r.Context
	if errCtx == nil {
		errCtx = map[string]any{}
	}
	return c.post(ctx, "error", "/errors", r.ConversationID, errorPayload{
		ConversationID: r.ConversationID,
		ErrorType:      r.ErrorType,
		ErrorMessage:   r.Message,
		Context:        errCtx,
		Timestamp:      c.timestamp(),
	})
}

// Health checks GET /api/v1/health.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	return c.policy.Do(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	})
}

func (c *Client) post(ctx context.Context, kind, path, conversationID string, payload any) error {
	ctx, span := tracer.Start(ctx, "callback."+kind)
	defer span.End()
	span.SetAttributes(attribute.String("aime.conversation_id", conversationID))

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("callback: marshal %s payload: %w", kind, err)
	}
	policy := c.policy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.WithContext(ctx).Warn("callback: retrying request", "kind", kind, "attempt", attempt, "delay", delay, "error", err, "conversation_id", conversationID)
	}
	// The timeout bounds each attempt, not the whole retry sequence.
	err = policy.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.do(attemptCtx, http.MethodPost, c.baseURL+c.prefix+path, body)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "callback failed")
		return fmt.Errorf("callback: %s: %w", kind, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	}
	return &retry.StatusError{Service: "callback", StatusCode: resp.StatusCode, Body: string(data)}
}

func (c *Client) timestamp() string {
	return c.now().UTC().Format(timestampLayout)
}

// retryable narrows retry.IsTransient to the statuses the system of record
// documents as transient.
func retryable(err error) bool {
	var status *retry.StatusError
	if errors.As(err, &status) {
		switch status.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return retry.IsTransient(err)
}
