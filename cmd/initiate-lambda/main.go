package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/groupize/aime-planner-chatbot/cmd/mainconfig"
	"github.com/groupize/aime-planner-chatbot/internal/app/bootstrap"
	appconfig "github.com/groupize/aime-planner-chatbot/internal/config"
	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

// initiator is the slice of conversation.Handler the Lambda needs.
type initiator interface {
	HandleInitiate(ctx context.Context, body []byte) (int, any)
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	// Redis is reused across warm invocations.
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	rt, err := bootstrap.BuildRuntime(ctx, cfg, bootstrap.Deps{AWS: awsCfg, Redis: redisClient}, logger)
	if err != nil {
		logger.Error("failed to build conversation runtime", "error", err)
		os.Exit(1)
	}

	h := conversation.NewHandler(rt.Engine, logger)
	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, h, evt), nil
	})
}

// handle serves POST /bids behind API Gateway. Authentication is enforced by
// the gateway authorizer, not here.
func handle(ctx context.Context, h initiator, evt events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" {
		return jsonResponse(http.StatusOK, map[string]string{"status": "ok"})
	}
	if !strings.HasSuffix(strings.TrimRight(path, "/"), "/bids") {
		return jsonResponse(http.StatusNotFound, conversation.ErrorResponse{Error: "not found", ErrorKind: conversation.KindNotFound})
	}
	if method != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, conversation.ErrorResponse{Error: "method not allowed", ErrorKind: conversation.KindValidation})
	}

	body, err := decodeBody(evt)
	if err != nil {
		return jsonResponse(http.StatusBadRequest, conversation.ErrorResponse{Error: "invalid body encoding", ErrorKind: conversation.KindValidation})
	}
	status, payload := h.HandleInitiate(ctx, body)
	return jsonResponse(status, payload)
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}

func jsonResponse(status int, payload any) events.APIGatewayV2HTTPResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal error","error_kind":"internal_error"}`)
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       string(body),
	}
}
