package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds configuration for AWS SES.
type SESConfig struct {
	FromEmail        string
	FromName         string
	Environment      string
	ConfigurationSet string
}

// SESGateway sends outreach mail via AWS SES v2.
type SESGateway struct {
	client sesAPI
	cfg    SESConfig
	logger *logging.Logger
}

var _ conversation.MailGateway = (*SESGateway)(nil)

// NewSESGateway returns nil when client is nil.
func NewSESGateway(client sesAPI, cfg SESConfig, logger *logging.Logger) *SESGateway {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "AIME Planner"
	}
	return &SESGateway{client: client, cfg: cfg, logger: logger}
}

// Send delivers msg and returns the SES message id.
func (s *SESGateway) Send(ctx context.Context, msg conversation.OutboundEmail) (string, error) {
	fromName := s.cfg.FromName
	if msg.FromName != "" {
		fromName = msg.FromName
	}
	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%s <%s>", msg.ToName, msg.To)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", fromName, s.cfg.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("conversation_id"), Value: aws.String(msg.ConversationID)},
			{Name: aws.String("system"), Value: aws.String(systemTag)},
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if s.cfg.Environment != "" {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String("environment"), Value: aws.String(s.cfg.Environment)})
	}
	if s.cfg.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(s.cfg.ConfigurationSet)
	}

	output, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("SES send failed", "error", err, "conversation_id", msg.ConversationID)
		if ambiguous(err) {
			return "", fmt.Errorf("notify: SES send: %w: %v", conversation.ErrDeliveryUnconfirmed, err)
		}
		return "", fmt.Errorf("notify: SES send: %w", err)
	}

	messageID := aws.ToString(output.MessageId)
	s.logger.Info("email sent via SES", "conversation_id", msg.ConversationID, "message_id", messageID)
	return messageID, nil
}
