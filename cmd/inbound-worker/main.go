package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/groupize/aime-planner-chatbot/cmd/mainconfig"
	"github.com/groupize/aime-planner-chatbot/internal/app/bootstrap"
	appconfig "github.com/groupize/aime-planner-chatbot/internal/config"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting aime inbound worker", "env", cfg.Env, "workers", cfg.WorkerCount)

	if cfg.InboundQueueURL == "" {
		logger.Error("INBOUND_QUEUE_URL is required for the inbound worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	rt, err := bootstrap.BuildRuntime(ctx, cfg, bootstrap.Deps{AWS: awsCfg, Redis: redisClient}, logger)
	if err != nil {
		logger.Error("failed to build conversation runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	handler := bootstrap.BuildInboundHandler(cfg, awsCfg, rt.Engine, logger)
	queue := bootstrap.BuildInboundQueue(cfg, awsCfg, logger)
	worker := bootstrap.BuildInboundWorker(cfg, handler, queue, logger)
	worker.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down inbound worker...")
	worker.Wait()
	logger.Info("inbound worker stopped")
}
