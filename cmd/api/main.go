package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/groupize/aime-planner-chatbot/cmd/mainconfig"
	"github.com/groupize/aime-planner-chatbot/internal/api/router"
	"github.com/groupize/aime-planner-chatbot/internal/app/bootstrap"
	appconfig "github.com/groupize/aime-planner-chatbot/internal/config"
	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	"github.com/groupize/aime-planner-chatbot/internal/inbound"
	"github.com/groupize/aime-planner-chatbot/internal/observability/metrics"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting aime-planner-chatbot API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	metricsHandler, conversationMetrics := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	rt, err := bootstrap.BuildRuntime(ctx, cfg, bootstrap.Deps{
		AWS:     awsCfg,
		Redis:   redisClient,
		Metrics: conversationMetrics,
	}, logger)
	if err != nil {
		logger.Error("failed to build conversation runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	webhook, inlineWorker := setupInbound(ctx, cfg, awsCfg, rt.Engine, logger)

	routerCfg := &router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(rt.Engine, logger),
		InboundWebhook:      webhook,
		MetricsHandler:      metricsHandler,
		RequestObserver:     conversationMetrics,
		JWTSecret:           cfg.APIJWTSecret,
		JWTAudience:         cfg.APIJWTAudience,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
	}
	if rt.Callbacks != nil {
		routerCfg.CallbackHealth = rt.Callbacks
	}
	if cfg.APIJWTSecret == "" {
		logger.Warn("API_JWT_SECRET not set; /api/v1 requests will be rejected")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	waitForInlineWorker(inlineWorker, logger)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers the conversation collectors on a private registry
// alongside the Go runtime collectors.
func setupMetrics() (http.Handler, *metrics.ConversationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewConversationMetrics(reg)
}

// setupInbound builds the SES webhook. When a queue is configured the webhook
// only enqueues; the in-memory queue is drained by a worker in this process,
// while SQS is drained by cmd/inbound-worker.
func setupInbound(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, processor inbound.Processor, logger *logging.Logger) (*inbound.Webhook, *inbound.Worker) {
	handler := bootstrap.BuildInboundHandler(cfg, awsCfg, processor, logger)
	opts := []inbound.WebhookOption{inbound.WithTopicARN(cfg.SESTopicARN)}
	if skipSignatureVerification(cfg) {
		logger.Warn("SNS signature verification disabled", "env", cfg.Env)
		opts = append(opts, inbound.WithoutSignatureVerification())
	}

	var worker *inbound.Worker
	if queue := bootstrap.BuildInboundQueue(cfg, awsCfg, logger); queue != nil {
		opts = append(opts, inbound.WithEnqueuer(queue))
		if _, inProcess := queue.(*inbound.MemoryQueue); inProcess {
			worker = bootstrap.BuildInboundWorker(cfg, handler, queue, logger)
			worker.Start(ctx)
			logger.Info("inline inbound worker started", "workers", cfg.WorkerCount)
		}
	}
	return inbound.NewWebhook(handler, logger, opts...), worker
}

// skipSignatureVerification honors SNS_SKIP_SIGNATURE_VERIFY outside
// deployed environments only.
func skipSignatureVerification(cfg *appconfig.Config) bool {
	if !cfg.SNSSkipVerify {
		return false
	}
	switch strings.ToLower(cfg.Env) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func waitForInlineWorker(worker *inbound.Worker, logger *logging.Logger) {
	if worker == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("inline inbound worker did not stop in time")
	}
}
