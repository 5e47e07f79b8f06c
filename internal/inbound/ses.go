package inbound

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

const maxRawMessageBytes = 10 << 20

var (
	// ErrIgnored marks notifications that carry no received mail (setup pings, bounces).
	ErrIgnored = errors.New("inbound: notification carries no received mail")
	// ErrMalformed marks payloads that can never be decoded.
	ErrMalformed = errors.New("inbound: malformed notification")
)

// Envelope is an SNS message as delivered over HTTP or to an SQS subscription.
type Envelope struct {
	events.SNSEntity
	SubscribeURL string `json:"SubscribeURL,omitempty"`
	Token        string `json:"Token,omitempty"`
}

// Notification is the SES receipt notification published by the SNS or S3 receipt action.
type Notification struct {
	NotificationType string                    `json:"notificationType"`
	Mail             events.SimpleEmailMessage `json:"mail"`
	Receipt          events.SimpleEmailReceipt `json:"receipt"`
	Content          string                    `json:"content,omitempty"`
}

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Decoder turns SES notifications into engine inbound emails.
type Decoder struct {
	objects objectGetter
	logger  *logging.Logger
}

// NewDecoder builds a decoder. objects may be nil when receipt rules deliver content inline.
func NewDecoder(objects objectGetter, logger *logging.Logger) *Decoder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Decoder{objects: objects, logger: logger}
}

// ParseEnvelope decodes an SNS envelope.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: sns envelope: %v", ErrMalformed, err)
	}
	return &env, nil
}

// DecodeEnvelope handles an SNS envelope, or a bare notification when raw delivery is enabled.
func (d *Decoder) DecodeEnvelope(ctx context.Context, body []byte) (conversation.InboundEmail, error) {
	env, err := ParseEnvelope(body)
	if err != nil {
		return conversation.InboundEmail{}, err
	}
	switch {
	case env.Type == "" && env.Message == "":
		return d.DecodeNotification(ctx, body)
	case env.Type != "" && env.Type != "Notification":
		return conversation.InboundEmail{}, fmt.Errorf("%w: sns %s", ErrIgnored, env.Type)
	}
	return d.DecodeNotification(ctx, []byte(env.Message))
}

// DecodeNotification decodes an SES receipt notification, fetching raw MIME from S3 when needed.
func (d *Decoder) DecodeNotification(ctx context.Context, raw []byte) (conversation.InboundEmail, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return conversation.InboundEmail{}, fmt.Errorf("%w: ses notification: %v", ErrMalformed, err)
	}
	if n.NotificationType != "" && n.NotificationType != "Received" {
		return conversation.InboundEmail{}, fmt.Errorf("%w: %s", ErrIgnored, n.NotificationType)
	}
	if n.Mail.MessageID == "" && len(n.Mail.Destination) == 0 && len(n.Receipt.Recipients) == 0 {
		return conversation.InboundEmail{}, fmt.Errorf("%w: no mail object", ErrMalformed)
	}

	email := conversation.InboundEmail{
		MessageID:  n.Mail.MessageID,
		To:         recipients(n),
		Subject:    strings.TrimSpace(n.Mail.CommonHeaders.Subject),
		ReceivedAt: n.Mail.Timestamp,
	}
	if len(n.Mail.CommonHeaders.From) > 0 {
		email.From = bareAddress(n.Mail.CommonHeaders.From[0])
	}
	if email.From == "" {
		email.From = bareAddress(n.Mail.Source)
	}

	content, err := d.rawContent(ctx, n)
	if err != nil {
		return conversation.InboundEmail{}, err
	}
	if len(content) > 0 {
		parsed, err := ParseMIME(content)
		if err != nil {
			d.logger.Warn("inbound mime parse failed, using raw content", "error", err, "message_id", email.MessageID)
			email.Body = string(content)
		} else {
			email.Body = parsed.Text
			if email.Subject == "" {
				email.Subject = parsed.Subject
			}
			if email.From == "" {
				email.From = parsed.From
			}
			if len(email.To) == 0 {
				email.To = parsed.To
			}
			if email.ReceivedAt.IsZero() {
				email.ReceivedAt = parsed.Date
			}
		}
	}
	email.Body = CleanBody(email.Body)
	return email, nil
}

func (d *Decoder) rawContent(ctx context.Context, n Notification) ([]byte, error) {
	if n.Content != "" {
		return contentBytes(n.Content), nil
	}
	action := n.Receipt.Action
	if !strings.EqualFold(action.Type, "S3") || action.BucketName == "" || action.ObjectKey == "" {
		return nil, nil
	}
	if d.objects == nil {
		return nil, fmt.Errorf("inbound: mail stored at s3://%s/%s but no s3 client configured", action.BucketName, action.ObjectKey)
	}

	out, err := d.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(action.BucketName),
		Key:    aws.String(action.ObjectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("inbound: fetch s3://%s/%s: %w", action.BucketName, action.ObjectKey, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxRawMessageBytes))
	if err != nil {
		return nil, fmt.Errorf("inbound: read s3://%s/%s: %w", action.BucketName, action.ObjectKey, err)
	}
	return data, nil
}

// contentBytes accepts the SNS action's UTF-8 or BASE64 encoding.
func contentBytes(content string) []byte {
	if strings.Contains(content, ":") {
		return []byte(content)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(content), ""))
	if err != nil {
		return []byte(content)
	}
	return decoded
}

func recipients(n Notification) []string {
	seen := map[string]bool{}
	var out []string
	add := func(list []string) {
		for _, raw := range list {
			addr := bareAddress(raw)
			key := strings.ToLower(addr)
			if addr == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, addr)
		}
	}
	add(n.Receipt.Recipients)
	add(n.Mail.Destination)
	add(n.Mail.CommonHeaders.To)
	return out
}
