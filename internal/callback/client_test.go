package callback

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	"github.com/groupize/aime-planner-chatbot/internal/retry"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

const convID = "6f1c2b0e-8d4a-4c1e-9f3b-2a7d5e6c8b90"

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type captured struct {
	method string
	path   string
	header http.Header
	body   map[string]any
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(Config{
		BaseURL: server.URL + "/",
		APIKey:  "rails-key",
		Retry: retry.Policy{
			MaxAttempts: 3,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		},
		Logger: logging.Discard(),
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return client, server
}

func capture(t *testing.T, into *captured, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		into.method = r.Method
		into.path = r.URL.Path
		into.header = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			require.NoError(t, json.Unmarshal(data, &into.body))
		}
		w.WriteHeader(status)
	}
}

func TestNewRequiresBaseURLAndKey(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "https://rails.example"})
	assert.Error(t, err)
}

func TestStarted(t *testing.T) {
	var got captured
	client, _ := newTestClient(t, capture(t, &got, http.StatusCreated))

	err := client.Started(context.Background(), conversation.StartedNotice{
		ConversationID: convID,
		VendorEmail:    "sales@harbor.example",
		EmailSent:      true,
		CallbackData:   map[string]any{"bid_request_id": 44},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/v1/chatbot/conversations/"+convID+"/started", got.path)
	assert.Equal(t, "Bearer rails-key", got.header.Get("Authorization"))
	assert.Equal(t, "AIME-Planner-Chatbot/1.0", got.header.Get("User-Agent"))
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))
	assert.Equal(t, true, got.body["initial_email_sent"])
	assert.Equal(t, "2026-03-14T09:30:00Z", got.body["timestamp"])
	assert.EqualValues(t, 44, got.body["callback_data"].(map[string]any)["bid_request_id"])
}

func TestUpdatedSendsOnlyAnsweredQuestions(t *testing.T) {
	var got captured
	client, _ := newTestClient(t, capture(t, &got, http.StatusOK))
	answer := "$45 per head"

	err := client.Updated(context.Background(), conversation.UpdateNotice{
		ConversationID: convID,
		Status:         conversation.StatusAwaitingResponse,
		Questions: []conversation.Question{
			{ID: "1", Text: "Price?", Required: true, Answer: &answer, Answered: true},
			{ID: "2", Text: "Dates?", Required: true},
		},
		RawEmail:     "It is $45 per head.",
		AttemptCount: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/chatbot/conversation_updates", got.path)
	assert.Equal(t, "awaiting_response", got.body["status"])
	assert.Equal(t, false, got.body["is_final"])
	answered := got.body["questions_answered"].([]any)
	require.Len(t, answered, 1)
	first := answered[0].(map[string]any)
	assert.EqualValues(t, 1, first["id"])
	assert.Equal(t, "$45 per head", first["answer"])
	assert.Equal(t, true, first["required"])
}

func TestCompletedAndErrors(t *testing.T) {
	var got captured
	client, _ := newTestClient(t, capture(t, &got, http.StatusAccepted))

	require.NoError(t, client.Completed(context.Background(), conversation.CompletedNotice{
		ConversationID: convID,
		FinalStatus:    conversation.StatusFailed,
		Questions:      []conversation.Question{{ID: "q-a", Text: "Parking?"}},
		AttemptCount:   4,
		CompletedAt:    fixedNow.Add(time.Minute),
	}))
	assert.Equal(t, "/api/v1/chatbot/conversations/"+convID+"/completed", got.path)
	assert.Equal(t, "failed", got.body["final_status"])
	assert.Equal(t, "2026-03-14T09:31:00Z", got.body["completed_at"])
	all := got.body["all_answers"].([]any)
	assert.Equal(t, "q-a", all[0].(map[string]any)["id"])
	assert.Nil(t, all[0].(map[string]any)["answer"])

	require.NoError(t, client.ReportError(context.Background(), conversation.ErrorReport{
		ConversationID: convID,
		ErrorType:      conversation.ErrorTypeMaxAttemptsExceeded,
		Message:        "gave up",
	}))
	assert.Equal(t, "/api/v1/chatbot/errors", got.path)
	assert.Equal(t, "max_attempts_exceeded", got.body["error_type"])
	assert.Equal(t, map[string]any{}, got.body["context"])
}

func TestRetriesTransientStatuses(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, client.ReportError(context.Background(), conversation.ErrorReport{ConversationID: convID, ErrorType: "processing_error"}))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	err := client.ReportError(context.Background(), conversation.ErrorReport{ConversationID: convID, ErrorType: "processing_error"})
	var status *retry.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusUnprocessableEntity, status.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGivesUpAfterThreeAttempts(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	err := client.Started(context.Background(), conversation.StartedNotice{ConversationID: convID})
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestTimeoutAppliesPerAttempt(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	defer close(release)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{
		BaseURL: server.URL,
		APIKey:  "rails-key",
		Timeout: 100 * time.Millisecond,
		Retry: retry.Policy{
			MaxAttempts: 3,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		},
		Logger: logging.Discard(),
	})
	require.NoError(t, err)

	require.NoError(t, client.Started(context.Background(), conversation.StartedNotice{ConversationID: convID}))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestHealth(t *testing.T) {
	var got captured
	client, _ := newTestClient(t, capture(t, &got, http.StatusOK))
	require.NoError(t, client.Health(context.Background()))
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/api/v1/health", got.path)
}
