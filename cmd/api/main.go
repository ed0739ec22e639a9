package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/arcagent/gateway/cmd/mainconfig"
	"github.com/arcagent/gateway/internal/agent"
	"github.com/arcagent/gateway/internal/api/router"
	"github.com/arcagent/gateway/internal/backend"
	appconfig "github.com/arcagent/gateway/internal/config"
	"github.com/arcagent/gateway/internal/messaging"
	"github.com/arcagent/gateway/internal/observability/metrics"
	"github.com/arcagent/gateway/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting arcagent gateway",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	gatewayMetrics := metrics.NewGatewayMetrics(prometheus.DefaultRegisterer)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Conversation state store
	var contexts agent.ContextStore
	switch cfg.ContextBackend {
	case "redis":
		redisClient := redis.NewClient(redisOptions(cfg))
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		contexts = agent.NewRedisContextStore(redisClient, nil)
	case "dynamo":
		contexts = agent.NewDynamoContextStore(dynamodb.NewFromConfig(awsCfg), cfg.ContextTable, logger)
	default:
		logger.Warn("using in-memory context store; workflow state will not survive restarts")
		contexts = agent.NewMemoryContextStore()
	}

	// Backend operation contract
	backendClient := backend.NewClient(cfg.BackendBaseURL, cfg.BackendAPIKey, cfg.BackendTimeout, logger)
	if err := backendClient.Healthy(ctx); err != nil {
		logger.Warn("backend health probe failed at startup", "error", err)
	}

	// Model providers: Bedrock primary, Gemini fallback when configured.
	llm := buildLLMClient(ctx, cfg, awsCfg, logger)

	catalog := agent.NewCatalog()
	guardrail := agent.NewGuardrail(contexts, logger)
	dispatcher := agent.NewDispatcher(catalog, backendClient, contexts, guardrail, cfg.BackendTimeout, logger)
	engine := agent.NewEngine(llm, catalog, contexts, dispatcher, cfg.BedrockModelID, cfg.ModelTimeout, cfg.RequestCeiling, gatewayMetrics, logger)

	// Optional transcript log
	var transcripts *agent.TranscriptStore
	var transcriptsHandler *messaging.TranscriptsHandler
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open transcript database", "error", err)
			os.Exit(1)
		}
		transcripts = agent.NewTranscriptStore(db, logger)
		if err := transcripts.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare transcript schema", "error", err)
			os.Exit(1)
		}
		transcriptsHandler = messaging.NewTranscriptsHandler(transcripts, logger)
	}

	// Job queue and workers
	var publisher *agent.Publisher
	var pool *agent.WorkerPool
	responder := agent.NewResponder(backendClient, gatewayMetrics, logger)
	if cfg.UseMemoryQueue || cfg.AgentQueueURL == "" {
		memQueue := agent.NewMemoryQueue(256)
		publisher = agent.NewPublisher(memQueue, logger)
		pool = agent.NewWorkerPool(engine, memQueue, responder, transcripts, gatewayMetrics, logger,
			agent.WithWorkerCount(cfg.WorkerCount))
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				gatewayMetrics.QueueDepth.Set(float64(memQueue.Depth()))
			}
		}()
	} else {
		sqsQueue := agent.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.AgentQueueURL)
		publisher = agent.NewPublisher(sqsQueue, logger)
		pool = agent.NewWorkerPool(engine, sqsQueue, responder, transcripts, gatewayMetrics, logger,
			agent.WithWorkerCount(cfg.WorkerCount))
	}

	messagingHandler := messaging.NewHandler(cfg.TwilioWebhookSecret, cfg.PublicBaseURL, publisher, gatewayMetrics, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		MessagingHandler:   messagingHandler,
		TranscriptsHandler: transcriptsHandler,
		MetricsHandler:     promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

// buildLLMClient selects the model providers: Bedrock is primary when a model
// id is configured, Gemini serves as fallback or as the sole provider.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) agent.LLMClient {
	var primary, fallback agent.LLMClient

	if cfg.BedrockModelID != "" {
		primary = agent.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	}

	if cfg.GeminiAPIKey != "" {
		gemini, err := agent.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
			os.Exit(1)
		}
		if primary == nil {
			primary = gemini
		} else {
			fallback = gemini
		}
	}

	if primary == nil {
		logger.Error("no model provider configured; set BEDROCK_MODEL_ID or GEMINI_API_KEY")
		os.Exit(1)
	}
	return agent.NewFallbackLLMClient(primary, fallback, logger)
}

func redisOptions(cfg *appconfig.Config) *redis.Options {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}
