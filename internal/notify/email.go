package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	"github.com/groupize/aime-planner-chatbot/internal/retry"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
	systemTag        = "aime-planner"
)

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey      string
	FromEmail   string
	FromName    string
	Environment string
	// Host overrides the API host; tests point it at an httptest server.
	Host string
}

// SendGridGateway delivers outreach mail through the SendGrid v3 API.
type SendGridGateway struct {
	apiKey      string
	host        string
	fromEmail   string
	fromName    string
	environment string
	logger      *logging.Logger
}

var _ conversation.MailGateway = (*SendGridGateway)(nil)

// NewSendGridGateway returns nil when no API key is configured.
func NewSendGridGateway(cfg SendGridConfig, logger *logging.Logger) *SendGridGateway {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "AIME Planner"
	}
	if cfg.Host == "" {
		cfg.Host = sendGridHost
	}
	return &SendGridGateway{
		apiKey:      cfg.APIKey,
		host:        strings.TrimRight(cfg.Host, "/"),
		fromEmail:   cfg.FromEmail,
		fromName:    cfg.FromName,
		environment: cfg.Environment,
		logger:      logger,
	}
}

// Send posts one message and returns the provider message id.
func (s *SendGridGateway) Send(ctx context.Context, msg conversation.OutboundEmail) (string, error) {
	message := s.build(msg)

	request := sendgrid.GetRequest(s.apiKey, sendGridEndpoint, s.host)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "conversation_id", msg.ConversationID)
		if ambiguous(err) {
			return "", fmt.Errorf("notify: sendgrid send: %w: %v", conversation.ErrDeliveryUnconfirmed, err)
		}
		return "", fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "conversation_id", msg.ConversationID)
		return "", &retry.StatusError{Service: "sendgrid", StatusCode: response.StatusCode, Body: response.Body}
	}

	messageID := headerValue(response.Headers, "X-Message-Id")
	if messageID == "" {
		messageID = "sg-" + uuid.NewString()
	}
	s.logger.Info("email sent via sendgrid", "conversation_id", msg.ConversationID, "status", response.StatusCode, "message_id", messageID)
	return messageID, nil
}

func (s *SendGridGateway) build(msg conversation.OutboundEmail) *mail.SGMailV3 {
	fromName := s.fromName
	if msg.FromName != "" {
		fromName = msg.FromName
	}
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(fromName, s.fromEmail))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", msg.Body))

	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail(fromName, msg.ReplyTo))
	}
	m.SetCustomArg("conversation_id", msg.ConversationID)
	m.SetCustomArg("system", systemTag)
	if s.environment != "" {
		m.SetCustomArg("environment", s.environment)
	}
	if msg.DedupToken != "" {
		m.SetHeader("X-AIME-Dedup-Token", msg.DedupToken)
	}
	return m
}

func headerValue(headers map[string][]string, key string) string {
	if v := http.Header(headers).Get(key); v != "" {
		return v
	}
	for k, vals := range headers {
		if strings.EqualFold(k, key) && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

// ambiguous reports errors after which the provider may or may not have
// accepted the message.
func ambiguous(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StubGateway logs outbound mail instead of sending it. Used in local runs.
type StubGateway struct {
	logger *logging.Logger
}

var _ conversation.MailGateway = (*StubGateway)(nil)

// NewStubGateway creates a stub gateway.
func NewStubGateway(logger *logging.Logger) *StubGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubGateway{logger: logger}
}

// Send logs the message and returns a synthetic delivery id.
func (s *StubGateway) Send(_ context.Context, msg conversation.OutboundEmail) (string, error) {
	s.logger.Info("stub mail gateway: would send email", "conversation_id", msg.ConversationID, "to", msg.To, "subject", msg.Subject)
	return "stub-" + uuid.NewString(), nil
}
