// Package bootstrap wires configuration, connections, adapters, and
// the poller into a runnable worker.
package bootstrap

import (
	"context"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"autoreply_worker/adapter/in/worker"
	"autoreply_worker/adapter/out/persistence"
	"autoreply_worker/adapter/out/provider/graph"
	"autoreply_worker/config"
	"autoreply_worker/core/port/out"
	"autoreply_worker/core/service/classify"
	"autoreply_worker/core/service/pipeline"
	"autoreply_worker/infra/database"
	"autoreply_worker/pkg/logger"
	"autoreply_worker/pkg/ratelimit"
)

// Worker bundles the running pieces of the autoreply service.
type Worker struct {
	Config    *config.Config
	DB        *sqlx.DB
	Redis     *redis.Client
	Provider  out.MailProvider
	Store     out.ProcessedStore
	Processor *pipeline.BatchProcessor
	Poller    *worker.Poller
	zlog      zerolog.Logger
}

// NewWorker builds the dependency graph. The returned cleanup closes
// connections in reverse creation order.
func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	// Database
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	cleanups = append(cleanups, func() { db.Close() })

	store := persistence.NewProcessedAdapter(db)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	// Redis is optional: without it the rate-limit window is local to
	// this process.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis connection failed, using local rate-limit state: %v", err)
			redisClient = nil
		} else {
			cleanups = append(cleanups, func() { redisClient.Close() })
		}
	}

	// Mailbox provider
	limiter := ratelimit.NewWindowLimiter(redisClient, &ratelimit.Config{
		RequestsPerWindow: cfg.RateWindowRequests,
		Window:            cfg.RateWindow,
		MaxConcurrent:     cfg.RateMaxConcurrent,
		Key:               "graph",
	})
	provider := graph.NewProvider(graph.Config{
		AccessToken: cfg.GraphAccessToken,
		Mailbox:     cfg.MailboxAddress,
		BaseURL:     cfg.GraphBaseURL,
	}, limiter, zlog)

	// Classifier
	classifier := buildClassifier(cfg)

	// Pipeline
	policy := buildSystemMailPolicy(cfg)
	processor := pipeline.NewBatchProcessor(provider, classifier, store, policy, pipeline.ProcessorConfig{
		FetchLimit: cfg.FetchLimit,
		BatchSize:  cfg.BatchSize,
		BatchDelay: cfg.BatchDelay,
	}, zlog)

	poller := worker.NewPoller(processor, cfg.PollInterval, cfg.CycleTimeout, zlog)

	w := &Worker{
		Config:    cfg,
		DB:        db,
		Redis:     redisClient,
		Provider:  provider,
		Store:     store,
		Processor: processor,
		Poller:    poller,
		zlog:      zlog,
	}
	return w, cleanup, nil
}

func buildClassifier(cfg *config.Config) out.Classifier {
	keyword := classify.NewKeywordClassifier(classify.DefaultKeywordLists())
	if cfg.Classifier == config.ClassifierKeyword {
		logger.Info("Classifier: keyword (deterministic)")
		return keyword
	}

	completer := classify.NewClient(classify.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	})
	logger.Info("Classifier: llm (%s) with keyword fallback", cfg.LLMModel)
	return classify.NewLLMClassifier(completer, keyword, classify.PromptConfig{
		InstitutionName: cfg.InstitutionName,
		Instructions:    cfg.ReplyGuidance,
		KnowledgeBase:   cfg.KnowledgeBase,
	})
}

func buildSystemMailPolicy(cfg *config.Config) pipeline.SystemMailPolicy {
	policy := pipeline.DefaultSystemMailPolicy(cfg.MailboxAddress)
	if len(cfg.SystemSenderSubstrings) > 0 {
		policy.SenderSubstrings = cfg.SystemSenderSubstrings
	}
	if len(cfg.SystemSubjectKeywords) > 0 {
		policy.SubjectKeywords = cfg.SystemSubjectKeywords
	}
	if len(cfg.SystemDomains) > 0 {
		policy.SystemDomains = cfg.SystemDomains
	}
	return policy
}

// Start launches the poller.
func (w *Worker) Start() {
	w.Poller.Start()
}

// Stop halts the poller, waiting for an in-flight cycle.
func (w *Worker) Stop() {
	w.Poller.Stop()
}

// RunOnce executes a single cycle and returns its stats; used by the
// -mode once invocation.
func (w *Worker) RunOnce(ctx context.Context) (pipeline.CycleStats, error) {
	return w.Processor.RunCycle(ctx)
}
