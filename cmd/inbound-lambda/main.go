package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/groupize/aime-planner-chatbot/cmd/mainconfig"
	"github.com/groupize/aime-planner-chatbot/internal/app/bootstrap"
	appconfig "github.com/groupize/aime-planner-chatbot/internal/config"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

// Subscribed to the SES receipt topic. Only retryable failures are returned,
// so SNS redelivers those and drops everything else.
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	rt, err := bootstrap.BuildRuntime(ctx, cfg, bootstrap.Deps{AWS: awsCfg, Redis: redisClient}, logger)
	if err != nil {
		logger.Error("failed to build conversation runtime", "error", err)
		os.Exit(1)
	}

	handler := bootstrap.BuildInboundHandler(cfg, awsCfg, rt.Engine, logger)
	lambda.Start(handler.HandleSNSEvent)
}
