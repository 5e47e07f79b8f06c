package conversation

import (
	"context"
	"time"
)

// Store persists conversations with optimistic concurrency.
type Store interface {
	Get(ctx context.Context, id string) (*Conversation, error)
	// PutIfVersion writes conv only when the stored version equals expected.
	// expected == 0 means the record must not exist yet. The returned copy
	// carries the new version.
	PutIfVersion(ctx context.Context, conv *Conversation, expected int64) (*Conversation, error)
	// List returns up to limit conversations, most recently created first.
	List(ctx context.Context, limit int) ([]*Conversation, error)
}

// OutboundEmail is one message handed to the mail gateway.
type OutboundEmail struct {
	ConversationID string
	To             string
	ToName         string
	FromName       string
	Subject        string
	Body           string
	ReplyTo        string
	// DedupToken identifies the logical send so a retried decision never
	// produces a second email.
	DedupToken string
}

// MailGateway delivers outbound email and returns a provider delivery id.
type MailGateway interface {
	Send(ctx context.Context, msg OutboundEmail) (string, error)
}

// ComposeKind selects the outreach template.
type ComposeKind string

const (
	ComposeInitial  ComposeKind = "initial"
	ComposeFollowUp ComposeKind = "followup"
)

// ComposeRequest is everything the text capability needs to write an email.
type ComposeRequest struct {
	Kind        ComposeKind
	Event       EventMetadata
	Vendor      VendorInfo
	Questions   []Question
	Attempt     int
	MaxAttempts int
	History     []EmailExchange
}

// ComposedEmail is the subject and plain-text body to send.
type ComposedEmail struct {
	Subject string
	Body    string
}

// ExtractionResult is the validated outcome of reading a vendor reply.
// Malformed results carry no answers; the round simply counts as unanswered.
type ExtractionResult struct {
	Answers   map[QuestionID]string
	Summary   string
	Malformed bool
	Reason    string
}

// Extracted builds a well-formed result.
func Extracted(answers map[QuestionID]string, summary string) ExtractionResult {
	return ExtractionResult{Answers: answers, Summary: summary}
}

// MalformedExtraction builds a degraded result.
func MalformedExtraction(reason string) ExtractionResult {
	return ExtractionResult{Malformed: true, Reason: reason}
}

// TextCapability composes outreach emails and extracts answers from replies.
type TextCapability interface {
	Compose(ctx context.Context, req ComposeRequest) (ComposedEmail, error)
	Extract(ctx context.Context, body string, pending []Question) (ExtractionResult, error)
}

// StartedNotice reports the outcome of the initial outreach.
type StartedNotice struct {
	ConversationID string
	VendorEmail    string
	EmailSent      bool
	CallbackData   map[string]any
}

// UpdateNotice reports progress after an inbound reply.
type UpdateNotice struct {
	ConversationID string
	Status         Status
	Questions      []Question
	IsFinal        bool
	RawEmail       string
	AttemptCount   int
	CallbackData   map[string]any
}

// CompletedNotice reports a terminal conversation with every answer gathered.
type CompletedNotice struct {
	ConversationID string
	FinalStatus    Status
	Questions      []Question
	AttemptCount   int
	CallbackData   map[string]any
	CompletedAt    time.Time
}

// ErrorReport goes to the errors channel for monitoring.
type ErrorReport struct {
	ConversationID string
	ErrorType      string
	Message        string
	Context        map[string]any
}

// Error types sent on the errors channel.
const (
	ErrorTypeEmailSending        = "email_sending_failed"
	ErrorTypeEmailUnconfirmed    = "email_delivery_unconfirmed"
	ErrorTypeFollowUpSending     = "followup_sending_failed"
	ErrorTypeMaxAttemptsExceeded = "max_attempts_exceeded"
	ErrorTypeExtraction          = "extraction_degraded"
	ErrorTypeProcessing          = "processing_error"
)

// CallbackAPI notifies the system of record. Failures are logged by the
// engine and never change conversation state.
type CallbackAPI interface {
	Started(ctx context.Context, n StartedNotice) error
	Updated(ctx context.Context, n UpdateNotice) error
	Completed(ctx context.Context, n CompletedNotice) error
	ReportError(ctx context.Context, r ErrorReport) error
}

// SendLedger remembers delivered emails by dedup token.
type SendLedger interface {
	Lookup(ctx context.Context, token string) (deliveryID string, found bool, err error)
	Record(ctx context.Context, token, deliveryID string) error
}

// Observer receives engine events for metrics. All methods must be cheap.
type Observer interface {
	Initiated(emailSent bool)
	Inbound(outcome string)
	FollowUpSent()
	Finalized(status Status)
	ExtractionDegraded()
	CallbackFailed(kind string)
	VersionConflict()
	Duration(op string, d time.Duration)
}

type noopObserver struct{}

func (noopObserver) Initiated(bool)                 {}
func (noopObserver) Inbound(string)                 {}
func (noopObserver) FollowUpSent()                  {}
func (noopObserver) Finalized(Status)               {}
func (noopObserver) ExtractionDegraded()            {}
func (noopObserver) CallbackFailed(string)          {}
func (noopObserver) VersionConflict()               {}
func (noopObserver) Duration(string, time.Duration) {}
