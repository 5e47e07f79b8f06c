package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusPending          Status = "pending"
	StatusInProgress       Status = "in_progress"
	StatusAwaitingResponse Status = "awaiting_response"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Direction of an email exchange.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// QuestionID is caller assigned. It arrives as a JSON number or string and
// is kept as a string internally.
type QuestionID string

// UnmarshalJSON accepts both numeric and string ids.
func (id *QuestionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = QuestionID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("conversation: question id must be a number or string: %w", err)
	}
	*id = QuestionID(n.String())
	return nil
}

// MarshalJSON emits canonical integers as numbers so callers get back the
// shape they sent.
func (id QuestionID) MarshalJSON() ([]byte, error) {
	s := string(id)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

// Question is one item the planner wants the vendor to answer.
type Question struct {
	ID           QuestionID `json:"id" dynamodbav:"id"`
	Text         string     `json:"text" dynamodbav:"text"`
	Required     bool       `json:"required" dynamodbav:"required"`
	Options      []string   `json:"options,omitempty" dynamodbav:"options,omitempty"`
	Answer       *string    `json:"answer" dynamodbav:"answer"`
	Answered     bool       `json:"answered" dynamodbav:"answered"`
	SubQuestions []Question `json:"sub_questions,omitempty" dynamodbav:"sub_questions,omitempty"`
}

// EventMetadata describes the planner's event. Carried through unchanged.
type EventMetadata struct {
	Name         string   `json:"name" dynamodbav:"name"`
	Dates        []string `json:"dates" dynamodbav:"dates"`
	EventType    string   `json:"event_type" dynamodbav:"event_type"`
	PlannerName  string   `json:"planner_name" dynamodbav:"planner_name"`
	PlannerEmail string   `json:"planner_email" dynamodbav:"planner_email"`
	PlannerPhone string   `json:"planner_phone,omitempty" dynamodbav:"planner_phone,omitempty"`
}

// VendorInfo identifies the vendor being negotiated with.
type VendorInfo struct {
	Name        string `json:"name" dynamodbav:"name"`
	Email       string `json:"email" dynamodbav:"email"`
	ServiceType string `json:"service_type" dynamodbav:"service_type"`
	Phone       string `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
}

// EmailExchange is one entry in the append-only mail history.
type EmailExchange struct {
	Direction          Direction    `json:"direction" dynamodbav:"direction"`
	Timestamp          time.Time    `json:"timestamp" dynamodbav:"timestamp"`
	Subject            string       `json:"subject,omitempty" dynamodbav:"subject,omitempty"`
	RawText            string       `json:"raw_text" dynamodbav:"raw_text"`
	Summary            string       `json:"summary,omitempty" dynamodbav:"summary,omitempty"`
	QuestionsAddressed []QuestionID `json:"questions_addressed,omitempty" dynamodbav:"questions_addressed,omitempty"`
	MessageID          string       `json:"message_id,omitempty" dynamodbav:"message_id,omitempty"`
	DeliveryID         string       `json:"delivery_id,omitempty" dynamodbav:"delivery_id,omitempty"`
	Fingerprint        string       `json:"fingerprint,omitempty" dynamodbav:"fingerprint,omitempty"`
}

// Conversation is the full state of one vendor negotiation.
type Conversation struct {
	ID             string          `json:"conversation_id" dynamodbav:"conversation_id"`
	Status         Status          `json:"status" dynamodbav:"status"`
	EventMetadata  EventMetadata   `json:"event_metadata" dynamodbav:"event_metadata"`
	VendorInfo     VendorInfo      `json:"vendor_info" dynamodbav:"vendor_info"`
	Questions      []Question      `json:"questions" dynamodbav:"questions"`
	EmailExchanges []EmailExchange `json:"email_exchanges" dynamodbav:"email_exchanges"`
	AttemptCount   int             `json:"attempt_count" dynamodbav:"attempt_count"`
	MaxAttempts    int             `json:"max_attempts" dynamodbav:"max_attempts"`
	CallbackData   map[string]any  `json:"callback_data,omitempty" dynamodbav:"callback_data,omitempty"`
	CreatedAt      time.Time       `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" dynamodbav:"updated_at"`
	Version        int64           `json:"version" dynamodbav:"version"`
}

// Clone returns a deep copy. Engine mutations always happen on a clone so a
// failed conditional write leaves no trace.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.EventMetadata.Dates = append([]string(nil), c.EventMetadata.Dates...)
	out.Questions = cloneQuestions(c.Questions)
	if c.EmailExchanges != nil {
		out.EmailExchanges = make([]EmailExchange, len(c.EmailExchanges))
		for i, ex := range c.EmailExchanges {
			ex.QuestionsAddressed = append([]QuestionID(nil), ex.QuestionsAddressed...)
			out.EmailExchanges[i] = ex
		}
	}
	out.CallbackData = cloneMap(c.CallbackData)
	return &out
}

func cloneQuestions(qs []Question) []Question {
	if qs == nil {
		return nil
	}
	out := make([]Question, len(qs))
	for i, q := range qs {
		q.Options = append([]string(nil), q.Options...)
		if q.Answer != nil {
			a := *q.Answer
			q.Answer = &a
		}
		q.SubQuestions = cloneQuestions(q.SubQuestions)
		out[i] = q
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// AnsweredQuestions returns top-level questions that have an answer, in order.
func (c *Conversation) AnsweredQuestions() []Question {
	var out []Question
	for _, q := range c.Questions {
		if q.Answered {
			out = append(out, q)
		}
	}
	return out
}

// LastExchanges returns up to n most recent exchanges, oldest first.
func (c *Conversation) LastExchanges(n int) []EmailExchange {
	if n <= 0 || len(c.EmailExchanges) == 0 {
		return nil
	}
	if n > len(c.EmailExchanges) {
		n = len(c.EmailExchanges)
	}
	return c.EmailExchanges[len(c.EmailExchanges)-n:]
}

func (c *Conversation) appendExchange(ex EmailExchange) {
	c.EmailExchanges = append(c.EmailExchanges, ex)
}
