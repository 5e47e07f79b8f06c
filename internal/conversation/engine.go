package conversation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/groupize/aime-planner-chatbot/internal/retry"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

var engineTracer = otel.Tracer("aime.internal.conversation.engine")

// ErrDeliveryUnconfirmed marks a send whose outcome is unknown; it is never retried.
var ErrDeliveryUnconfirmed = errors.New("conversation: email delivery unconfirmed")

// Inbound outcomes reported to the observer and returned to callers.
const (
	OutcomeProcessed    = "processed"
	OutcomeDuplicate    = "duplicate"
	OutcomeTerminal     = "ignored_terminal"
	OutcomeRejected     = "rejected_transition"
	OutcomeUnroutable   = "unroutable"
	OutcomeUnknown      = "unknown_conversation"
	OutcomeStoreFailure = "store_failure"
)

// InboundEmail is a vendor reply after transport decoding.
type InboundEmail struct {
	MessageID  string
	From       string
	To         []string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// InboundResult summarizes what processing an inbound email did.
type InboundResult struct {
	ConversationID string       `json:"conversation_id"`
	Outcome        string       `json:"outcome"`
	Status         Status       `json:"status"`
	AttemptCount   int          `json:"attempt_count"`
	FollowUpSent   bool         `json:"follow_up_sent"`
	Answered       []QuestionID `json:"answered,omitempty"`
}

// Engine drives the conversation lifecycle against the injected capabilities.
type Engine struct {
	store     Store
	mail      MailGateway
	text      TextCapability
	callbacks CallbackAPI
	ledger    SendLedger
	addresser Addresser
	observer  Observer
	logger    *logging.Logger

	maxAttempts     int
	listLimit       int
	fromName        string
	storePolicy     retry.Policy
	mailPolicy      retry.Policy
	storeTimeout    time.Duration
	mailTimeout     time.Duration
	textTimeout     time.Duration
	callbackTimeout time.Duration
	now             func() time.Time
	newID           func() string
}

const maxListLimit = 100

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithMaxAttempts sets the vendor reply budget for new conversations.
func WithMaxAttempts(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithSendLedger replaces the in-memory send ledger.
func WithSendLedger(l SendLedger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.ledger = l
		}
	}
}

// WithObserver wires metrics.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithRetryPolicy sets the policy for storage reads and mail sends.
func WithRetryPolicy(p retry.Policy) EngineOption {
	return func(e *Engine) {
		e.storePolicy = p
		e.mailPolicy = p
	}
}

// WithTimeouts sets per-call timeouts. Zero values keep the defaults.
func WithTimeouts(store, mailSend, text, callback time.Duration) EngineOption {
	return func(e *Engine) {
		if store > 0 {
			e.storeTimeout = store
		}
		if mailSend > 0 {
			e.mailTimeout = mailSend
		}
		if text > 0 {
			e.textTimeout = text
		}
		if callback > 0 {
			e.callbackTimeout = callback
		}
	}
}

// WithListLimit sets the default page size for List.
func WithListLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 && n <= maxListLimit {
			e.listLimit = n
		}
	}
}

// WithFromName sets the display name on outbound mail.
func WithFromName(name string) EngineOption {
	return func(e *Engine) {
		e.fromName = name
	}
}

// WithClock overrides time.Now. Used by tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides conversation id generation. Used by tests.
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// NewEngine wires the lifecycle engine. Store, mail and text are required;
// a nil callbacks client disables notifications.
func NewEngine(store Store, mailer MailGateway, text TextCapability, callbacks CallbackAPI, addresser Addresser, logger *logging.Logger, opts ...EngineOption) *Engine {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if mailer == nil {
		panic("conversation: mail gateway cannot be nil")
	}
	if text == nil {
		panic("conversation: text capability cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		store:           store,
		mail:            mailer,
		text:            text,
		callbacks:       callbacks,
		ledger:          NewMemoryLedger(),
		addresser:       addresser,
		observer:        noopObserver{},
		logger:          logger,
		maxAttempts:     4,
		listLimit:       50,
		fromName:        "AIME Planner",
		storePolicy:     retry.Default(),
		mailPolicy:      retry.Default(),
		storeTimeout:    10 * time.Second,
		mailTimeout:     30 * time.Second,
		textTimeout:     30 * time.Second,
		callbackTimeout: 30 * time.Second,
		now:             time.Now,
		newID:           func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initiate validates the request, sends the outreach email and persists the
// new conversation. A failed send still persists the conversation as failed
// and is reported through EmailSent=false rather than an error.
func (e *Engine) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	ctx, span := engineTracer.Start(ctx, "conversation.initiate")
	defer span.End()
	started := e.now()
	defer func() { e.observer.Duration("initiate", e.now().Sub(started)) }()

	if req == nil {
		return nil, newValidationError("request is required")
	}
	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	now := e.now().UTC()
	vendor := req.VendorInfo
	if parsed, err := mail.ParseAddress(vendor.Email); err == nil {
		vendor.Email = parsed.Address
	}
	conv := &Conversation{
		ID:            e.newID(),
		Status:        StatusPending,
		EventMetadata: req.EventMetadata,
		VendorInfo:    vendor,
		Questions:     resetAnswers(cloneQuestions(req.Questions)),
		MaxAttempts:   e.maxAttempts,
		CallbackData:  cloneMap(req.CallbackData),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	span.SetAttributes(attribute.String("aime.conversation_id", conv.ID))
	log := e.logger.WithContext(ctx).WithConversation(conv.ID)

	composed, sendErr := e.compose(ctx, ComposeRequest{
		Kind:        ComposeInitial,
		Event:       conv.EventMetadata,
		Vendor:      conv.VendorInfo,
		Questions:   conv.Questions,
		MaxAttempts: conv.MaxAttempts,
	})
	var deliveryID string
	if sendErr == nil {
		deliveryID, sendErr = e.send(ctx, conv, composed, initialToken(conv.ID))
	}

	if sendErr != nil {
		log.Error("initial outreach failed", "error", sendErr)
		span.RecordError(sendErr)
		_ = conv.Transition(StatusFailed)
	} else {
		_ = conv.Transition(StatusInProgress)
		conv.appendExchange(EmailExchange{
			Direction:  DirectionOutbound,
			Timestamp:  now,
			Subject:    composed.Subject,
			RawText:    composed.Body,
			Summary:    fmt.Sprintf("initial outreach with %d questions", len(conv.Questions)),
			DeliveryID: deliveryID,
		})
	}

	stored, err := e.put(ctx, conv, 0)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		log.Error("failed to persist new conversation", "error", err, "email_sent", sendErr == nil)
		return nil, externalErr("store", "create", err)
	}

	emailSent := sendErr == nil
	e.observer.Initiated(emailSent)
	log.Info("conversation initiated", "status", stored.Status, "email_sent", emailSent, "questions", len(stored.Questions))

	e.notify(ctx, log, "started", func(ctx context.Context) error {
		return e.callbacks.Started(ctx, StartedNotice{
			ConversationID: stored.ID,
			VendorEmail:    stored.VendorInfo.Email,
			EmailSent:      emailSent,
			CallbackData:   stored.CallbackData,
		})
	})
	if !emailSent {
		e.reportError(ctx, log, ErrorReport{
			ConversationID: stored.ID,
			ErrorType:      sendErrorType(sendErr, ErrorTypeEmailSending),
			Message:        sendErr.Error(),
			Context:        map[string]any{"vendor_email": stored.VendorInfo.Email, "stage": "initial"},
		})
	}

	return &InitiateResult{
		ConversationID: stored.ID,
		EmailSent:      emailSent,
		VendorEmail:    stored.VendorInfo.Email,
		QuestionsCount: len(stored.Questions),
		Status:         stored.Status,
	}, nil
}

// inboundPlan is the outcome of deriving a decision against one snapshot.
type inboundPlan struct {
	conv         *Conversation
	outcome      string
	changed      []QuestionID
	followUpSent bool
	rawBody      string
	reports      []ErrorReport
}

// ProcessInbound applies a vendor reply. It never replies to the sender on
// failure; problems surface through the errors callback and logs.
func (e *Engine) ProcessInbound(ctx context.Context, msg InboundEmail) (*InboundResult, error) {
	ctx, span := engineTracer.Start(ctx, "conversation.process_inbound")
	defer span.End()
	started := e.now()
	defer func() { e.observer.Duration("process_inbound", e.now().Sub(started)) }()

	id, err := e.addresser.Resolve(msg.To)
	if err != nil {
		e.observer.Inbound(OutcomeUnroutable)
		e.logger.WithContext(ctx).Warn("dropping inbound email", "error", err, "to", msg.To, "from", msg.From)
		return nil, err
	}
	span.SetAttributes(attribute.String("aime.conversation_id", id))
	log := e.logger.WithContext(ctx).WithConversation(id)
	fingerprint := inboundFingerprint(msg)

	for round := 0; round < 2; round++ {
		current, err := e.load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			e.observer.Inbound(OutcomeUnknown)
			log.Warn("inbound email for unknown conversation", "from", msg.From)
			return nil, err
		}
		if err != nil {
			e.observer.Inbound(OutcomeStoreFailure)
			span.RecordError(err)
			return nil, externalErr("store", "get", err)
		}

		plan := e.derive(ctx, log, current, msg, fingerprint)
		stored, err := e.put(ctx, plan.conv, current.Version)
		if errors.Is(err, ErrVersionConflict) {
			e.observer.VersionConflict()
			log.Warn("version conflict, re-deriving from latest state", "round", round+1)
			continue
		}
		if err != nil {
			e.observer.Inbound(OutcomeStoreFailure)
			span.RecordError(err)
			return nil, externalErr("store", "put", err)
		}

		e.observer.Inbound(plan.outcome)
		if plan.followUpSent {
			e.observer.FollowUpSent()
		}
		if plan.outcome == OutcomeProcessed && stored.Status.Terminal() {
			e.observer.Finalized(stored.Status)
		}
		log.Info("inbound email processed",
			"outcome", plan.outcome,
			"status", stored.Status,
			"attempt_count", stored.AttemptCount,
			"answered", len(plan.changed),
		)
		e.notifyInbound(ctx, log, stored, plan)

		return &InboundResult{
			ConversationID: stored.ID,
			Outcome:        plan.outcome,
			Status:         stored.Status,
			AttemptCount:   stored.AttemptCount,
			FollowUpSent:   plan.followUpSent,
			Answered:       plan.changed,
		}, nil
	}

	span.SetStatus(codes.Error, "version conflict")
	return nil, externalErr("store", "put", ErrVersionConflict)
}

// derive computes the next state on a clone of current. It may send a
// follow-up; the send ledger keeps a re-derivation from mailing twice.
func (e *Engine) derive(ctx context.Context, log *logging.Logger, current *Conversation, msg InboundEmail, fingerprint string) *inboundPlan {
	conv := current.Clone()
	now := e.now().UTC()
	received := msg.ReceivedAt
	if received.IsZero() {
		received = now
	}
	exchange := EmailExchange{
		Direction:   DirectionInbound,
		Timestamp:   received.UTC(),
		Subject:     msg.Subject,
		RawText:     msg.Body,
		MessageID:   msg.MessageID,
		Fingerprint: fingerprint,
	}
	plan := &inboundPlan{conv: conv, rawBody: msg.Body}

	if conv.Status.Terminal() {
		exchange.Summary = "received after conversation " + string(conv.Status)
		conv.appendExchange(exchange)
		conv.UpdatedAt = now
		plan.outcome = OutcomeTerminal
		log.Info("inbound email for terminal conversation recorded", "status", conv.Status)
		return plan
	}
	if conv.hasInbound(msg.MessageID, fingerprint) {
		exchange.Summary = "duplicate delivery"
		conv.appendExchange(exchange)
		conv.UpdatedAt = now
		plan.outcome = OutcomeDuplicate
		log.Info("duplicate inbound delivery recorded", "message_id", msg.MessageID)
		return plan
	}
	if !CanTransition(conv.Status, StatusAwaitingResponse) {
		terr := &TransitionError{From: conv.Status, To: StatusAwaitingResponse}
		log.Warn("inbound email rejected by state machine", "error", terr)
		exchange.Summary = "received while " + string(conv.Status)
		conv.appendExchange(exchange)
		conv.UpdatedAt = now
		plan.outcome = OutcomeRejected
		return plan
	}

	extraction := e.extract(ctx, log, msg.Body, conv.ExtractionTargets())
	if extraction.Malformed {
		e.observer.ExtractionDegraded()
	}
	plan.changed = conv.MergeAnswers(extraction.Answers, now)
	exchange.QuestionsAddressed = plan.changed
	exchange.Summary = extraction.Summary
	if exchange.Summary == "" {
		exchange.Summary = summarize(msg.Body, len(plan.changed))
	}
	conv.appendExchange(exchange)
	conv.UpdatedAt = now
	plan.outcome = OutcomeProcessed

	consumed := conv.AttemptCount + 1
	decision := Decide(conv.PendingRequired(), consumed, conv.MaxAttempts)
	switch decision.Kind {
	case ActionFinalizeComplete:
		e.transition(log, conv, StatusCompleted)

	case ActionFinalizeFailed:
		conv.AttemptCount = consumed
		e.transition(log, conv, StatusFailed)
		plan.reports = append(plan.reports, ErrorReport{
			ConversationID: conv.ID,
			ErrorType:      ErrorTypeMaxAttemptsExceeded,
			Message:        fmt.Sprintf("required questions still unanswered after %d attempts", conv.AttemptCount),
			Context:        map[string]any{"pending_questions": questionIDs(conv.PendingRequired())},
		})

	case ActionSendFollowUp:
		composed, err := e.compose(ctx, ComposeRequest{
			Kind:        ComposeFollowUp,
			Event:       conv.EventMetadata,
			Vendor:      conv.VendorInfo,
			Questions:   decision.Questions,
			Attempt:     consumed,
			MaxAttempts: conv.MaxAttempts,
			History:     conv.LastExchanges(2),
		})
		var deliveryID string
		if err == nil {
			deliveryID, err = e.send(ctx, conv, composed, followUpToken(conv.ID, consumed))
		}
		if err != nil {
			log.Error("follow-up send failed", "error", err, "attempt", consumed)
			e.transition(log, conv, StatusFailed)
			plan.reports = append(plan.reports, ErrorReport{
				ConversationID: conv.ID,
				ErrorType:      sendErrorType(err, ErrorTypeFollowUpSending),
				Message:        err.Error(),
				Context:        map[string]any{"attempt": consumed},
			})
			break
		}
		conv.AttemptCount = consumed
		e.transition(log, conv, StatusAwaitingResponse)
		conv.appendExchange(EmailExchange{
			Direction:  DirectionOutbound,
			Timestamp:  e.now().UTC(),
			Subject:    composed.Subject,
			RawText:    composed.Body,
			Summary:    fmt.Sprintf("follow-up %d for %d questions", consumed, len(decision.Questions)),
			DeliveryID: deliveryID,
		})
		plan.followUpSent = true
	}

	if extraction.Malformed {
		plan.reports = append(plan.reports, ErrorReport{
			ConversationID: conv.ID,
			ErrorType:      ErrorTypeExtraction,
			Message:        extraction.Reason,
			Context:        map[string]any{"attempt": consumed},
		})
	}
	return plan
}

func (e *Engine) transition(log *logging.Logger, conv *Conversation, to Status) {
	if err := conv.Transition(to); err != nil {
		log.Warn("transition rejected", "error", err)
	}
}

// Cancel moves a live conversation to cancelled.
func (e *Engine) Cancel(ctx context.Context, id, reason string) (*Conversation, error) {
	ctx, span := engineTracer.Start(ctx, "conversation.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("aime.conversation_id", id))
	log := e.logger.WithContext(ctx).WithConversation(id)

	for round := 0; round < 2; round++ {
		current, err := e.load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, err
			}
			return nil, externalErr("store", "get", err)
		}
		if current.Status.Terminal() {
			return nil, &TerminalStateError{ConversationID: id, Status: current.Status}
		}
		conv := current.Clone()
		if err := conv.Transition(StatusCancelled); err != nil {
			return nil, err
		}
		conv.UpdatedAt = e.now().UTC()
		stored, err := e.put(ctx, conv, current.Version)
		if errors.Is(err, ErrVersionConflict) {
			e.observer.VersionConflict()
			continue
		}
		if err != nil {
			return nil, externalErr("store", "put", err)
		}
		e.observer.Finalized(StatusCancelled)
		log.Info("conversation cancelled", "reason", reason)
		e.notify(ctx, log, "completed", func(ctx context.Context) error {
			return e.callbacks.Completed(ctx, CompletedNotice{
				ConversationID: stored.ID,
				FinalStatus:    stored.Status,
				Questions:      stored.Questions,
				AttemptCount:   stored.AttemptCount,
				CallbackData:   stored.CallbackData,
				CompletedAt:    stored.UpdatedAt,
			})
		})
		return stored, nil
	}
	return nil, externalErr("store", "put", ErrVersionConflict)
}

// Get loads a conversation.
func (e *Engine) Get(ctx context.Context, id string) (*Conversation, error) {
	conv, err := e.load(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, externalErr("store", "get", err)
	}
	return conv, err
}

// List returns recent conversations for monitoring.
func (e *Engine) List(ctx context.Context, limit int) ([]*Conversation, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = e.listLimit
	}
	convs, err := retry.DoValue(ctx, e.storePolicy, func(ctx context.Context) ([]*Conversation, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
		defer cancel()
		return e.store.List(callCtx, limit)
	})
	if err != nil {
		return nil, externalErr("store", "list", err)
	}
	return convs, nil
}

func (e *Engine) load(ctx context.Context, id string) (*Conversation, error) {
	policy := e.storePolicy
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, ErrNotFound) && retry.IsTransient(err)
	}
	return retry.DoValue(ctx, policy, func(ctx context.Context) (*Conversation, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
		defer cancel()
		return e.store.Get(callCtx, id)
	})
}

// put is a single conditional write; conflicts are handled by the caller.
func (e *Engine) put(ctx context.Context, conv *Conversation, expected int64) (*Conversation, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.store.PutIfVersion(callCtx, conv, expected)
}

func (e *Engine) compose(ctx context.Context, req ComposeRequest) (ComposedEmail, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.textTimeout)
	defer cancel()
	out, err := e.text.Compose(callCtx, req)
	if err != nil {
		return ComposedEmail{}, externalErr("text", "compose", err)
	}
	if strings.TrimSpace(out.Body) == "" {
		return ComposedEmail{}, externalErr("text", "compose", errors.New("empty body"))
	}
	return out, nil
}

func (e *Engine) extract(ctx context.Context, log *logging.Logger, body string, pending []Question) ExtractionResult {
	if len(pending) == 0 {
		return Extracted(nil, "")
	}
	if strings.TrimSpace(body) == "" {
		return MalformedExtraction("empty email body")
	}
	callCtx, cancel := context.WithTimeout(ctx, e.textTimeout)
	defer cancel()
	res, err := e.text.Extract(callCtx, body, pending)
	if err != nil {
		log.Warn("answer extraction failed, treating as no answers", "error", err)
		return MalformedExtraction(err.Error())
	}
	if res.Malformed {
		log.Warn("answer extraction returned malformed output", "reason", res.Reason)
		res.Answers = nil
	}
	return res
}

// send delivers through the ledger so a token is mailed at most once.
func (e *Engine) send(ctx context.Context, conv *Conversation, composed ComposedEmail, token string) (string, error) {
	if id, found, err := e.ledger.Lookup(ctx, token); err == nil && found {
		return id, nil
	} else if err != nil {
		e.logger.WithContext(ctx).Warn("send ledger lookup failed", "error", err, "token", token)
	}

	msg := OutboundEmail{
		ConversationID: conv.ID,
		To:             conv.VendorInfo.Email,
		ToName:         conv.VendorInfo.Name,
		FromName:       e.fromName,
		Subject:        composed.Subject,
		Body:           composed.Body,
		ReplyTo:        e.addresser.ReplyTo(conv.ID),
		DedupToken:     token,
	}
	policy := e.mailPolicy
	policy.Retryable = func(err error) bool {
		if errors.Is(err, ErrDeliveryUnconfirmed) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		return retry.IsTransient(err)
	}
	deliveryID, err := retry.DoValue(ctx, policy, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.mailTimeout)
		defer cancel()
		return e.mail.Send(callCtx, msg)
	})
	if err != nil {
		return "", externalErr("mail", "send", err)
	}
	if err := e.ledger.Record(ctx, token, deliveryID); err != nil {
		e.logger.WithContext(ctx).Warn("send ledger record failed", "error", err, "token", token)
	}
	return deliveryID, nil
}

func (e *Engine) notifyInbound(ctx context.Context, log *logging.Logger, conv *Conversation, plan *inboundPlan) {
	if plan.outcome != OutcomeProcessed {
		return
	}
	final := conv.Status.Terminal()
	e.notify(ctx, log, "update", func(ctx context.Context) error {
		return e.callbacks.Updated(ctx, UpdateNotice{
			ConversationID: conv.ID,
			Status:         conv.Status,
			Questions:      conv.Questions,
			IsFinal:        final,
			RawEmail:       plan.rawBody,
			AttemptCount:   conv.AttemptCount,
			CallbackData:   conv.CallbackData,
		})
	})
	if final {
		e.notify(ctx, log, "completed", func(ctx context.Context) error {
			return e.callbacks.Completed(ctx, CompletedNotice{
				ConversationID: conv.ID,
				FinalStatus:    conv.Status,
				Questions:      conv.Questions,
				AttemptCount:   conv.AttemptCount,
				CallbackData:   conv.CallbackData,
				CompletedAt:    conv.UpdatedAt,
			})
		})
	}
	for _, report := range plan.reports {
		e.reportError(ctx, log, report)
	}
}

func (e *Engine) reportError(ctx context.Context, log *logging.Logger, report ErrorReport) {
	e.notify(ctx, log, "error", func(ctx context.Context) error {
		return e.callbacks.ReportError(ctx, report)
	})
}

// notify runs a best-effort callback; failures are logged and counted only.
func (e *Engine) notify(ctx context.Context, log *logging.Logger, kind string, call func(context.Context) error) {
	if e.callbacks == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, e.callbackTimeout)
	defer cancel()
	if err := call(callCtx); err != nil {
		e.observer.CallbackFailed(kind)
		log.Warn("callback notification failed", "kind", kind, "error", err)
	}
}

func (c *Conversation) hasInbound(messageID, fingerprint string) bool {
	for _, ex := range c.EmailExchanges {
		if ex.Direction != DirectionInbound {
			continue
		}
		if messageID != "" && ex.MessageID == messageID {
			return true
		}
		if messageID == "" && ex.MessageID == "" && fingerprint != "" && ex.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}

func inboundFingerprint(msg InboundEmail) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(msg.From))))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(msg.Subject)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(msg.Body)))
	return hex.EncodeToString(h.Sum(nil))
}

func summarize(body string, answered int) string {
	text := strings.Join(strings.Fields(body), " ")
	if runes := []rune(text); len(runes) > 160 {
		text = string(runes[:160]) + "..."
	}
	return fmt.Sprintf("vendor reply (%d answers): %s", answered, text)
}

func sendErrorType(err error, fallback string) string {
	if errors.Is(err, ErrDeliveryUnconfirmed) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeEmailUnconfirmed
	}
	return fallback
}

func questionIDs(qs []Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = string(q.ID)
	}
	return out
}

func resetAnswers(qs []Question) []Question {
	for i := range qs {
		qs[i].Answer = nil
		qs[i].Answered = false
		qs[i].SubQuestions = resetAnswers(qs[i].SubQuestions)
	}
	return qs
}
