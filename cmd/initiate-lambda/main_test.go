package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

type recordingInitiator struct {
	bodies [][]byte
	status int
}

func (r *recordingInitiator) HandleInitiate(_ context.Context, body []byte) (int, any) {
	r.bodies = append(r.bodies, body)
	return r.status, map[string]any{"conversation_id": "c-1", "email_sent": r.status == http.StatusOK}
}

func request(method, path, body string, b64 bool) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath:         path,
		Body:            body,
		IsBase64Encoded: b64,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: method, Path: path},
		},
	}
}

func TestHandleHealth(t *testing.T) {
	resp := handle(context.Background(), &recordingInitiator{}, request(http.MethodGet, "/health", "", false))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestHandleInitiatePassesBody(t *testing.T) {
	h := &recordingInitiator{status: http.StatusOK}
	raw := `{"event_metadata":{}}`

	resp := handle(context.Background(), h, request(http.MethodPost, "/api/v1/bids", base64.StdEncoding.EncodeToString([]byte(raw)), true))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if len(h.bodies) != 1 || string(h.bodies[0]) != raw {
		t.Fatalf("expected decoded body to reach handler, got %q", h.bodies)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(resp.Body), &out); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if out["conversation_id"] != "c-1" {
		t.Fatalf("unexpected body: %s", resp.Body)
	}
	if resp.Headers["content-type"] != "application/json" {
		t.Fatalf("expected JSON content type")
	}
}

func TestHandleRejectsOtherRoutes(t *testing.T) {
	h := &recordingInitiator{status: http.StatusOK}

	if resp := handle(context.Background(), h, request(http.MethodPost, "/webhooks/ses", "{}", false)); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp := handle(context.Background(), h, request(http.MethodGet, "/bids", "", false)); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if resp := handle(context.Background(), h, request(http.MethodPost, "/bids", "%%%", true)); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad base64, got %d", resp.StatusCode)
	}
	if len(h.bodies) != 0 {
		t.Fatalf("handler should not have been called")
	}
}

func TestHandleSendFailureStatus(t *testing.T) {
	h := &recordingInitiator{status: http.StatusBadGateway}
	resp := handle(context.Background(), h, request(http.MethodPost, "/bids", "{}", false))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}
