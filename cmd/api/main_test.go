package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/groupize/aime-planner-chatbot/internal/config"
	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

func TestSetupMetricsExposesConversationMetrics(t *testing.T) {
	handler, m := setupMetrics()
	if handler == nil || m == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	m.Initiated(true)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "aime_conversation_initiated_total") {
		t.Fatalf("expected initiated counter to be exported")
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected runtime collectors to be exported")
	}
}

type nopProcessor struct{}

func (nopProcessor) ProcessInbound(_ context.Context, _ conversation.InboundEmail) (*conversation.InboundResult, error) {
	return &conversation.InboundResult{Outcome: conversation.OutcomeProcessed}, nil
}

func TestSetupInboundWithoutQueueProcessesInline(t *testing.T) {
	cfg := &appconfig.Config{}
	webhook, worker := setupInbound(context.Background(), cfg, aws.Config{}, nopProcessor{}, logging.New("error"))
	if webhook == nil {
		t.Fatalf("expected webhook")
	}
	if worker != nil {
		t.Fatalf("expected no worker without a queue")
	}
}

func TestSetupInboundMemoryQueueStartsWorker(t *testing.T) {
	cfg := &appconfig.Config{UseMemoryQueue: true, WorkerCount: 1}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	webhook, worker := setupInbound(ctx, cfg, aws.Config{}, nopProcessor{}, logging.New("error"))
	if webhook == nil || worker == nil {
		t.Fatalf("expected webhook and inline worker")
	}

	cancel()
	waitForInlineWorker(worker, logging.New("error"))
}

func TestSkipSignatureVerificationOnlyInDev(t *testing.T) {
	cases := []struct {
		env  string
		skip bool
		want bool
	}{
		{env: "dev", skip: true, want: true},
		{env: "local", skip: true, want: true},
		{env: "dev", skip: false, want: false},
		{env: "production", skip: true, want: false},
		{env: "staging", skip: true, want: false},
	}
	for _, tc := range cases {
		got := skipSignatureVerification(&appconfig.Config{Env: tc.env, SNSSkipVerify: tc.skip})
		if got != tc.want {
			t.Fatalf("env=%s skip=%v: expected %v, got %v", tc.env, tc.skip, tc.want, got)
		}
	}
}
