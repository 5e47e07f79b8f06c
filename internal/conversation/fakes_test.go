package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/groupize/aime-planner-chatbot/internal/retry"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

const testConversationID = "6f1c2b0e-8d4a-4c1e-9f3b-2a7d5e6c8b90"

type fakeMail struct {
	mu    sync.Mutex
	sent  []OutboundEmail
	errs  []error
	calls int
}

func (f *fakeMail) Send(_ context.Context, msg OutboundEmail) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("delivery-%d", len(f.sent)), nil
}

func (f *fakeMail) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeText struct {
	mu         sync.Mutex
	results    []ExtractionResult
	errs       []error
	composed   []ComposeRequest
	extracted  [][]Question
	composeErr error
}

func (f *fakeText) Compose(_ context.Context, req ComposeRequest) (ComposedEmail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.composed = append(f.composed, req)
	if f.composeErr != nil {
		return ComposedEmail{}, f.composeErr
	}
	return ComposedEmail{
		Subject: fmt.Sprintf("%s for %s", req.Kind, req.Event.Name),
		Body:    fmt.Sprintf("%s body with %d questions", req.Kind, len(req.Questions)),
	}, nil
}

func (f *fakeText) Extract(_ context.Context, _ string, pending []Question) (ExtractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracted = append(f.extracted, pending)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	if err != nil {
		return ExtractionResult{}, err
	}
	if len(f.results) == 0 {
		return Extracted(nil, ""), nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

type fakeCallbacks struct {
	mu        sync.Mutex
	started   []StartedNotice
	updates   []UpdateNotice
	completed []CompletedNotice
	errors    []ErrorReport
	failWith  error
}

func (f *fakeCallbacks) Started(_ context.Context, n StartedNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, n)
	return f.failWith
}

func (f *fakeCallbacks) Updated(_ context.Context, n UpdateNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, n)
	return f.failWith
}

func (f *fakeCallbacks) Completed(_ context.Context, n CompletedNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, n)
	return f.failWith
}

func (f *fakeCallbacks) ReportError(_ context.Context, r ErrorReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, r)
	return f.failWith
}

func (f *fakeCallbacks) errorTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.errors))
	for i, r := range f.errors {
		out[i] = r.ErrorType
	}
	return out
}

// conflictingStore fails the next n conditional writes with a version conflict
// after letting a concurrent writer bump the stored record.
type conflictingStore struct {
	*MemoryStore
	conflicts int
	onConflict func(*MemoryStore)
}

func (s *conflictingStore) PutIfVersion(ctx context.Context, conv *Conversation, expected int64) (*Conversation, error) {
	if expected != 0 && s.conflicts > 0 {
		s.conflicts--
		if s.onConflict != nil {
			s.onConflict(s.MemoryStore)
		}
		return nil, ErrVersionConflict
	}
	return s.MemoryStore.PutIfVersion(ctx, conv, expected)
}

type recordingObserver struct {
	noopObserver
	mu        sync.Mutex
	outcomes  []string
	conflicts int
	degraded  int
	finalized []Status
}

func (o *recordingObserver) Inbound(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) VersionConflict() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conflicts++
}

func (o *recordingObserver) ExtractionDegraded() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.degraded++
}

func (o *recordingObserver) Finalized(s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finalized = append(o.finalized, s)
}

type harness struct {
	engine    *Engine
	store     Store
	memory    *MemoryStore
	mail      *fakeMail
	text      *fakeText
	callbacks *fakeCallbacks
	observer  *recordingObserver
	addresser Addresser
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newHarness(store Store, opts ...EngineOption) *harness {
	mem, _ := store.(*MemoryStore)
	if cs, ok := store.(*conflictingStore); ok {
		mem = cs.MemoryStore
	}
	h := &harness{
		store:     store,
		memory:    mem,
		mail:      &fakeMail{},
		text:      &fakeText{},
		callbacks: &fakeCallbacks{},
		observer:  &recordingObserver{},
		addresser: NewAddresser("test", "groupize.com"),
	}
	base := []EngineOption{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return testConversationID }),
		WithObserver(h.observer),
		WithRetryPolicy(retry.Policy{MaxAttempts: 3, Sleep: func(context.Context, time.Duration) error { return nil }}),
	}
	h.engine = NewEngine(store, h.mail, h.text, h.callbacks, h.addresser, logging.Discard(), append(base, opts...)...)
	return h
}

func sampleRequest(questions ...Question) *InitiateRequest {
	if len(questions) == 0 {
		questions = []Question{
			{ID: "1", Text: "What is your per-person price?", Required: true},
			{ID: "2", Text: "Is the venue available on the date?", Required: true},
		}
	}
	return &InitiateRequest{
		EventMetadata: EventMetadata{
			Name:         "Spring Offsite",
			Dates:        []string{"2026-04-20"},
			EventType:    "corporate",
			PlannerName:  "Pat Planner",
			PlannerEmail: "pat@example.com",
		},
		VendorInfo: VendorInfo{
			Name:        "Harbor Catering",
			Email:       "sales@harbor.example.com",
			ServiceType: "catering",
		},
		Questions:    questions,
		CallbackData: map[string]any{"bid_id": "bid-77"},
	}
}

func (h *harness) reply(body string) InboundEmail {
	return InboundEmail{
		From:    "sales@harbor.example.com",
		To:      []string{h.addresser.ReplyTo(testConversationID)},
		Subject: "Re: Spring Offsite",
		Body:    body,
	}
}

func answers(pairs ...string) ExtractionResult {
	m := make(map[QuestionID]string)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[QuestionID(pairs[i])] = pairs[i+1]
	}
	return Extracted(m, "")
}

func strPtr(s string) *string { return &s }
