package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

func composeRequest(kind conversation.ComposeKind) conversation.ComposeRequest {
	return conversation.ComposeRequest{
		Kind: kind,
		Event: conversation.EventMetadata{
			Name: "Spring Summit", Dates: []string{"2026-05-04", "2026-05-06"}, EventType: "conference",
			PlannerName: "Dana Ruiz", PlannerEmail: "dana@example.com",
		},
		Vendor: conversation.VendorInfo{Name: "Harbor Catering", Email: "sales@harbor.example", ServiceType: "catering"},
		Questions: []conversation.Question{
			{ID: "1", Text: "Per-head price?", Required: true},
			{ID: "2", Text: "Menu style?", Options: []string{"buffet", "plated"}},
		},
		Attempt:     2,
		MaxAttempts: 4,
		History: []conversation.EmailExchange{
			{Direction: conversation.DirectionOutbound, Subject: "Pricing Inquiry"},
			{Direction: conversation.DirectionInbound, Summary: "vendor sent partial pricing"},
		},
	}
}

func TestComposeUsesModelOutput(t *testing.T) {
	client := &scriptedClient{responses: []Response{{Text: "```json\n{\"subject\": \"Catering for Spring Summit\", \"body\": \"Hi Harbor\"}\n```"}}}
	svc := NewTextService(client, TextConfig{ComposeTemperature: 0.7}, logging.Discard())

	email, err := svc.Compose(context.Background(), composeRequest(conversation.ComposeInitial))
	require.NoError(t, err)
	assert.Equal(t, "Catering for Spring Summit", email.Subject)
	assert.Equal(t, "Hi Harbor", email.Body)

	require.Len(t, client.requests, 1)
	prompt := client.requests[0].Messages[0].Content
	assert.Contains(t, prompt, "1. Per-head price? (Required)")
	assert.Contains(t, prompt, "Options: buffet, plated")
	assert.Equal(t, float32(0.7), client.requests[0].Temperature)
}

func TestComposeFallsBackToTemplate(t *testing.T) {
	tests := []struct {
		name   string
		client *scriptedClient
	}{
		{"model error", &scriptedClient{errs: []error{errors.New("throttled")}}},
		{"not json", &scriptedClient{responses: []Response{{Text: "Sure! Here is an email"}}}},
		{"empty body", &scriptedClient{responses: []Response{{Text: `{"subject":"x","body":"  "}`}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewTextService(tt.client, TextConfig{}, logging.Discard())
			email, err := svc.Compose(context.Background(), composeRequest(conversation.ComposeInitial))
			require.NoError(t, err)
			assert.Equal(t, "Pricing Inquiry for Spring Summit - conference", email.Subject)
			assert.Contains(t, email.Body, "Hi Harbor Catering,")
			assert.Contains(t, email.Body, `"Spring Summit" scheduled for 2026-05-04, 2026-05-06`)
			assert.True(t, strings.HasSuffix(email.Body, "Dana Ruiz\ndana@example.com"))
		})
	}
}

func TestComposeFollowUpPromptCarriesContext(t *testing.T) {
	client := &scriptedClient{responses: []Response{{Text: `{"subject":"","body":"Following up"}`}}}
	svc := NewTextService(client, TextConfig{}, logging.Discard())

	req := composeRequest(conversation.ComposeFollowUp)
	email, err := svc.Compose(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Follow-up: Spring Summit - Additional Information Needed", email.Subject, "blank subject takes the template subject")

	prompt := client.requests[0].Messages[0].Content
	assert.Contains(t, prompt, "- Outbound: Pricing Inquiry")
	assert.Contains(t, prompt, "- Inbound: vendor sent partial pricing")
	assert.Contains(t, prompt, "Follow-up number: 2 of 4")
	assert.Contains(t, prompt, "deadline")
}

func TestComposeWithoutClientUsesTemplates(t *testing.T) {
	svc := NewTextService(nil, TextConfig{}, nil)
	email, err := svc.Compose(context.Background(), composeRequest(conversation.ComposeFollowUp))
	require.NoError(t, err)
	assert.Contains(t, email.Body, "To complete our evaluation")

	_, err = svc.Compose(context.Background(), conversation.ComposeRequest{Kind: "weird"})
	assert.Error(t, err)
}

func TestExtractParsesWrappedAnswers(t *testing.T) {
	client := &scriptedClient{responses: []Response{{Text: `{"answers":[{"question_id":1,"answer":"$45 per head"},{"question_id":"2","answer":null},{"question_id":9,"answer":"ghost"}],"summary":"Pricing shared"}`}}}
	svc := NewTextService(client, TextConfig{}, logging.Discard())

	res, err := svc.Extract(context.Background(), "We charge $45 per head.", composeRequest(conversation.ComposeInitial).Questions)
	require.NoError(t, err)
	assert.False(t, res.Malformed)
	assert.Equal(t, map[conversation.QuestionID]string{"1": "$45 per head"}, res.Answers)
	assert.Equal(t, "Pricing shared", res.Summary)
	assert.Contains(t, client.requests[0].Messages[0].Content, "ID 2: Menu style?")
}

func TestExtractAcceptsArrayAndMapShapes(t *testing.T) {
	pending := composeRequest(conversation.ComposeInitial).Questions

	svc := NewTextService(&scriptedClient{responses: []Response{{Text: `[{"question_id": 2, "answer": "buffet"}]`}}}, TextConfig{}, logging.Discard())
	res, err := svc.Extract(context.Background(), "buffet please", pending)
	require.NoError(t, err)
	assert.Equal(t, map[conversation.QuestionID]string{"2": "buffet"}, res.Answers)

	svc = NewTextService(&scriptedClient{responses: []Response{{Text: `{"1": 45, "2": "plated"}`}}}, TextConfig{}, logging.Discard())
	res, err = svc.Extract(context.Background(), "45, plated", pending)
	require.NoError(t, err)
	assert.Equal(t, map[conversation.QuestionID]string{"1": "45", "2": "plated"}, res.Answers)
}

func TestExtractMalformedAndErrors(t *testing.T) {
	pending := composeRequest(conversation.ComposeInitial).Questions

	svc := NewTextService(&scriptedClient{responses: []Response{{Text: "I could not find any answers."}}}, TextConfig{}, logging.Discard())
	res, err := svc.Extract(context.Background(), "hello", pending)
	require.NoError(t, err)
	assert.True(t, res.Malformed)
	assert.Nil(t, res.Answers)

	svc = NewTextService(&scriptedClient{errs: []error{errors.New("timeout")}}, TextConfig{}, logging.Discard())
	_, err = svc.Extract(context.Background(), "hello", pending)
	assert.Error(t, err)

	res, err = svc.Extract(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.False(t, res.Malformed)
	assert.Empty(t, res.Answers)
}
