package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/groupize/aime-planner-chatbot/internal/callback"
	appconfig "github.com/groupize/aime-planner-chatbot/internal/config"
	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	"github.com/groupize/aime-planner-chatbot/internal/llm"
	"github.com/groupize/aime-planner-chatbot/internal/notify"
	"github.com/groupize/aime-planner-chatbot/internal/observability/metrics"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

// Deps are the shared clients a runtime is built from. Zero values are
// allowed: a nil Redis client selects the process-local send ledger and a nil
// Metrics disables instrumentation.
type Deps struct {
	AWS     aws.Config
	Redis   *redis.Client
	Metrics *metrics.ConversationMetrics
}

// Runtime is a fully wired conversation engine plus the pieces entrypoints
// need to expose (health checks, shutdown).
type Runtime struct {
	Engine    *conversation.Engine
	Addresser conversation.Addresser
	// Callbacks is nil when no callback endpoint is configured.
	Callbacks *callback.Client

	closers []func()
}

// Close releases pooled connections held by the runtime.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// BuildRuntime wires the conversation engine from config.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, deps Deps, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rt := &Runtime{Addresser: conversation.NewAddresser(cfg.Env, cfg.MailDomain)}

	store, closeStore, err := BuildStore(ctx, cfg, deps.AWS, logger)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		rt.closers = append(rt.closers, closeStore)
	}

	mailer, err := BuildMailGateway(cfg, deps.AWS, rt.Addresser, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	text, err := BuildTextService(ctx, cfg, deps.AWS, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	callbacks, err := BuildCallbackClient(cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Callbacks = callbacks

	opts := []conversation.EngineOption{
		conversation.WithMaxAttempts(cfg.MaxAttempts),
		conversation.WithSendLedger(BuildSendLedger(deps.Redis, cfg.SendLedgerTTL, logger)),
		conversation.WithRetryPolicy(BuildRetryPolicy(cfg)),
		conversation.WithTimeouts(cfg.StoreTimeout, cfg.MailTimeout, cfg.LLMTimeout, cfg.CallbackTimeout),
		conversation.WithFromName(cfg.MailFromName),
		conversation.WithListLimit(cfg.ConversationListMax),
	}
	if deps.Metrics != nil {
		opts = append(opts, conversation.WithObserver(deps.Metrics))
	}

	// A typed-nil *callback.Client would defeat the engine's nil check.
	var callbackAPI conversation.CallbackAPI
	if callbacks != nil {
		callbackAPI = callbacks
	}

	rt.Engine = conversation.NewEngine(store, mailer, text, callbackAPI, rt.Addresser, logger, opts...)
	logger.Info("conversation engine ready",
		"store", cfg.StoreBackend,
		"mail_provider", cfg.MailProvider,
		"llm_provider", cfg.LLMProvider,
		"callbacks", callbacks != nil,
		"max_attempts", cfg.MaxAttempts,
	)
	return rt, nil
}

// BuildStore selects the conversation store. The returned func, when non-nil,
// closes the underlying pool.
func BuildStore(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (conversation.Store, func(), error) {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.StoreBackend)); backend {
	case "", "dynamodb":
		if strings.TrimSpace(cfg.ConversationTable) == "" {
			return nil, nil, fmt.Errorf("bootstrap: CONVERSATION_TABLE is required for the dynamodb store")
		}
		return conversation.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.ConversationTable, logger), nil, nil
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, nil, fmt.Errorf("bootstrap: DATABASE_URL is required for the postgres store")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		return conversation.NewPostgresStore(pool), pool.Close, nil
	case "memory":
		logger.Warn("using in-memory conversation store; state is lost on restart")
		return conversation.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown store backend %q", backend)
	}
}

// BuildMailGateway selects the outbound mail provider. A sendgrid selection
// without an API key degrades to the logging stub.
func BuildMailGateway(cfg *appconfig.Config, awsCfg aws.Config, addresser conversation.Addresser, logger *logging.Logger) (conversation.MailGateway, error) {
	switch provider := strings.ToLower(strings.TrimSpace(cfg.MailProvider)); provider {
	case "", "sendgrid":
		gw := notify.NewSendGridGateway(notify.SendGridConfig{
			APIKey:      cfg.SendGridAPIKey,
			FromEmail:   addresser.From(),
			FromName:    cfg.MailFromName,
			Environment: cfg.Env,
		}, logger)
		if gw == nil {
			logger.Warn("SENDGRID_API_KEY not set; outbound mail will only be logged")
			return notify.NewStubGateway(logger), nil
		}
		return gw, nil
	case "ses":
		return notify.NewSESGateway(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail:        addresser.From(),
			FromName:         cfg.MailFromName,
			Environment:      cfg.Env,
			ConfigurationSet: cfg.SESConfigSet,
		}, logger), nil
	case "stub":
		return notify.NewStubGateway(logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown mail provider %q", provider)
	}
}

// BuildLLMClient returns the client for one provider name, or nil for "none".
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, provider string) (llm.Client, error) {
	switch provider = strings.ToLower(strings.TrimSpace(provider)); provider {
	case "", "none":
		return nil, nil
	case "bedrock":
		if cfg.BedrockModelID == "" {
			return nil, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for bedrock")
		}
		return llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
	case "openai":
		client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: openai: %w", err)
		}
		return client, nil
	case "anthropic":
		client, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: anthropic: %w", err)
		}
		return client, nil
	case "gemini":
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown llm provider %q", provider)
	}
}

// BuildTextService wraps the primary provider, and the fallback when one is
// configured, in the compose/extract service.
func BuildTextService(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*llm.TextService, error) {
	primary, err := BuildLLMClient(ctx, cfg, awsCfg, cfg.LLMProvider)
	if err != nil {
		return nil, err
	}
	fallback, err := BuildLLMClient(ctx, cfg, awsCfg, cfg.FallbackLLMProvider)
	if err != nil {
		return nil, err
	}

	var client llm.Client
	switch {
	case primary != nil && fallback != nil:
		logger.Info("llm fallback enabled", "primary", cfg.LLMProvider, "fallback", cfg.FallbackLLMProvider)
		client = llm.NewFallbackClient(primary, fallback, logger)
	case primary != nil:
		client = primary
	case fallback != nil:
		client = fallback
	default:
		logger.Warn("no llm provider configured; emails use templates and extraction is skipped")
	}

	return llm.NewTextService(client, llm.TextConfig{
		MaxTokens:          int32(cfg.LLMMaxTokens),
		ComposeTemperature: float32(cfg.LLMTemperature),
		ExtractTemperature: 0,
	}, logger), nil
}

// BuildCallbackClient returns nil when CALLBACK_BASE_URL is unset.
func BuildCallbackClient(cfg *appconfig.Config, logger *logging.Logger) (*callback.Client, error) {
	if strings.TrimSpace(cfg.CallbackBaseURL) == "" {
		logger.Warn("CALLBACK_BASE_URL not set; planner callbacks are disabled")
		return nil, nil
	}
	client, err := callback.New(callback.Config{
		BaseURL:       cfg.CallbackBaseURL,
		APIKey:        cfg.CallbackAPIKey,
		PathPrefix:    cfg.CallbackPathPrefix,
		Timeout:       cfg.CallbackTimeout,
		HealthTimeout: cfg.HealthTimeout,
		Retry:         BuildRetryPolicy(cfg),
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return client, nil
}
