package inbound

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

// Processor is the engine operation inbound mail is fed into.
type Processor interface {
	ProcessInbound(ctx context.Context, msg conversation.InboundEmail) (*conversation.InboundResult, error)
}

// Handler decodes SES notifications and feeds them to the engine.
type Handler struct {
	decoder   *Decoder
	processor Processor
	logger    *logging.Logger
}

// NewHandler wires a decoder to the engine.
func NewHandler(decoder *Decoder, processor Processor, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("inbound: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if decoder == nil {
		decoder = NewDecoder(nil, logger)
	}
	return &Handler{decoder: decoder, processor: processor, logger: logger}
}

// HandleEnvelope processes one SNS envelope (HTTP webhook or SQS body).
func (h *Handler) HandleEnvelope(ctx context.Context, body []byte) (*conversation.InboundResult, error) {
	email, err := h.decoder.DecodeEnvelope(ctx, body)
	if err != nil {
		return nil, err
	}
	return h.process(ctx, email)
}

// HandleNotification processes one SES notification already unwrapped from SNS.
func (h *Handler) HandleNotification(ctx context.Context, raw []byte) (*conversation.InboundResult, error) {
	email, err := h.decoder.DecodeNotification(ctx, raw)
	if err != nil {
		return nil, err
	}
	return h.process(ctx, email)
}

// HandleSNSEvent is the Lambda entrypoint for SNS-delivered SES notifications.
// Only retryable failures are returned so the platform redelivers them.
func (h *Handler) HandleSNSEvent(ctx context.Context, event events.SNSEvent) error {
	var errs []error
	for _, record := range event.Records {
		_, err := h.HandleNotification(ctx, []byte(record.SNS.Message))
		if err == nil {
			continue
		}
		if Permanent(err) {
			h.logger.Warn("dropping inbound notification", "error", err, "sns_message_id", record.SNS.MessageID)
			continue
		}
		h.logger.Error("inbound notification failed", "error", err, "sns_message_id", record.SNS.MessageID)
		errs = append(errs, fmt.Errorf("sns message %s: %w", record.SNS.MessageID, err))
	}
	return errors.Join(errs...)
}

func (h *Handler) process(ctx context.Context, email conversation.InboundEmail) (*conversation.InboundResult, error) {
	res, err := h.processor.ProcessInbound(ctx, email)
	if err != nil {
		return nil, err
	}
	h.logger.WithConversation(res.ConversationID).Info("inbound email processed",
		"message_id", email.MessageID,
		"outcome", res.Outcome,
		"status", res.Status,
		"attempt_count", res.AttemptCount,
	)
	return res, nil
}

// Permanent reports whether redelivering the same event can never succeed.
func Permanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIgnored) || errors.Is(err, ErrMalformed) {
		return true
	}
	switch conversation.ErrorKind(err) {
	case conversation.KindValidation, conversation.KindParse, conversation.KindNotFound, conversation.KindTerminalState:
		return true
	}
	return false
}
