package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

// TextConfig tunes the completion calls.
type TextConfig struct {
	MaxTokens          int32
	ComposeTemperature float32
	ExtractTemperature float32
}

// TextService implements conversation.TextCapability on top of a Client.
// Compose never fails: when the model errors or returns something unusable
// the template email is used instead.
type TextService struct {
	client Client
	cfg    TextConfig
	logger *logging.Logger
}

var _ conversation.TextCapability = (*TextService)(nil)

// NewTextService wraps client. A nil client composes templates only and
// reports every extraction as failed.
func NewTextService(client Client, cfg TextConfig, logger *logging.Logger) *TextService {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &TextService{client: client, cfg: cfg, logger: logger}
}

// Compose writes the initial or follow-up email.
func (s *TextService) Compose(ctx context.Context, req conversation.ComposeRequest) (conversation.ComposedEmail, error) {
	var (
		system   string
		prompt   string
		fallback conversation.ComposedEmail
	)
	switch req.Kind {
	case conversation.ComposeInitial:
		system, prompt, fallback = composeSystemPrompt, initialPrompt(req), fallbackInitial(req)
	case conversation.ComposeFollowUp:
		system, prompt, fallback = followUpSystemPrompt, followUpPrompt(req), fallbackFollowUp(req)
	default:
		return conversation.ComposedEmail{}, fmt.Errorf("llm: unknown compose kind %q", req.Kind)
	}
	if s.client == nil {
		return fallback, nil
	}

	log := s.logger.WithContext(ctx)
	resp, err := s.client.Complete(ctx, Request{
		System:      []string{system},
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.ComposeTemperature,
	})
	if err != nil {
		log.Warn("compose failed, using template", "kind", req.Kind, "error", err)
		return fallback, nil
	}
	var out struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Text)), &out); err != nil {
		log.Warn("compose returned unparsable output, using template", "kind", req.Kind, "error", err)
		return fallback, nil
	}
	out.Subject = strings.TrimSpace(out.Subject)
	out.Body = strings.TrimSpace(out.Body)
	if out.Body == "" {
		log.Warn("compose returned an empty body, using template", "kind", req.Kind)
		return fallback, nil
	}
	if out.Subject == "" {
		out.Subject = fallback.Subject
	}
	return conversation.ComposedEmail{Subject: out.Subject, Body: out.Body}, nil
}

// Extract reads a vendor reply. Transport failures are returned as errors;
// unusable model output becomes a malformed result.
func (s *TextService) Extract(ctx context.Context, body string, pending []conversation.Question) (conversation.ExtractionResult, error) {
	if len(pending) == 0 || strings.TrimSpace(body) == "" {
		return conversation.Extracted(nil, ""), nil
	}
	if s.client == nil {
		return conversation.ExtractionResult{}, errors.New("llm: no language model configured")
	}
	resp, err := s.client.Complete(ctx, Request{
		System:      []string{extractSystemPrompt},
		Messages:    []Message{{Role: RoleUser, Content: extractPrompt(body, pending)}},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.ExtractTemperature,
	})
	if err != nil {
		return conversation.ExtractionResult{}, err
	}

	answers, summary, err := parseExtraction(resp.Text)
	if err != nil {
		s.logger.WithContext(ctx).Warn("extraction output rejected", "error", err)
		return conversation.MalformedExtraction(err.Error()), nil
	}
	known := make(map[conversation.QuestionID]bool, len(pending))
	for _, q := range pending {
		known[q.ID] = true
	}
	for id := range answers {
		if !known[id] {
			delete(answers, id)
		}
	}
	return conversation.Extracted(answers, summary), nil
}

type extractedAnswer struct {
	QuestionID conversation.QuestionID `json:"question_id"`
	Answer     json.RawMessage         `json:"answer"`
}

// parseExtraction accepts {"answers":[...],"summary":...}, a bare array of
// {question_id, answer}, or an object mapping ids to answers.
func parseExtraction(text string) (map[conversation.QuestionID]string, string, error) {
	raw := bytes.TrimSpace([]byte(stripCodeFence(text)))
	if len(raw) == 0 {
		return nil, "", errors.New("empty model output")
	}

	var list []extractedAnswer
	var summary string
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, "", fmt.Errorf("decode answer list: %w", err)
		}
	case '{':
		var wrapped struct {
			Answers *json.RawMessage `json:"answers"`
			Summary string           `json:"summary"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, "", fmt.Errorf("decode answer object: %w", err)
		}
		if wrapped.Answers == nil {
			var byID map[string]json.RawMessage
			if err := json.Unmarshal(raw, &byID); err != nil {
				return nil, "", fmt.Errorf("decode answer map: %w", err)
			}
			out := make(map[conversation.QuestionID]string, len(byID))
			for id, v := range byID {
				if answer, ok := answerText(v); ok {
					out[conversation.QuestionID(strings.TrimSpace(id))] = answer
				}
			}
			return out, "", nil
		}
		summary = strings.TrimSpace(wrapped.Summary)
		if err := json.Unmarshal(*wrapped.Answers, &list); err != nil {
			return nil, "", fmt.Errorf("decode answers: %w", err)
		}
	default:
		return nil, "", errors.New("model output is not JSON")
	}

	out := make(map[conversation.QuestionID]string, len(list))
	for _, item := range list {
		if item.QuestionID == "" {
			continue
		}
		if answer, ok := answerText(item.Answer); ok {
			out[item.QuestionID] = answer
		}
	}
	return out, summary, nil
}

func answerText(v json.RawMessage) (string, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true
	}
	return string(v), true
}

func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.Index(t, "\n"); nl >= 0 {
		t = t[nl+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
