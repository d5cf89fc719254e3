// Package bootstrap assembles the service from configuration. Optional
// infrastructure falls back to in-process implementations: MySQL to the
// memory store, Redis to the memory cache and RabbitMQ to in-process NER
// jobs.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docqa/internal/ai"
	"docqa/internal/app"
	"docqa/internal/cache"
	"docqa/internal/config"
	"docqa/internal/logging"
	"docqa/internal/metrics"
	"docqa/internal/ner"
	mysqlClient "docqa/internal/platform/mysql"
	rabbitmqClient "docqa/internal/platform/rabbitmq"
	redisClient "docqa/internal/platform/redis"
	"docqa/internal/qa"
	"docqa/internal/rag"
	"docqa/internal/repository"
	httptransport "docqa/internal/transport/http"
	"docqa/internal/transport/http/handler"
	"docqa/internal/worker"
)

// Store is what the services need from persistence.
type Store interface {
	app.SessionStore
	worker.DocumentStore
	Ping(ctx context.Context) error
	Name() string
}

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Store     Store
	Cache     *cache.Manager
	Engine    *rag.Engine
	Documents *app.DocumentService
	QA        *app.QAService
	Sweeper   *app.Sweeper

	NERWorker *worker.NERWorker
	inProcess *worker.InProcessDispatcher
	info      handler.ServiceInfo

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(ctx, cfg, logging.New(cfg.Log.Level, cfg.Log.Format))
}

// NewWithConfig wires every component from cfg. On error everything opened
// so far is closed again.
func NewWithConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *App, err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a = &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  reg,
		Metrics:   metrics.New(reg),
		StartedAt: time.Now(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if err := a.openStore(ctx); err != nil {
		return a, err
	}
	a.openCache(ctx)

	embedder, embeddingModel := newEmbedder(cfg)
	a.Engine, err = rag.NewEngine(embedder, a.Cache, rag.Options{
		ChunkSize:      cfg.RAG.ChunkSize,
		ChunkOverlap:   cfg.RAG.ChunkOverlap,
		MinChunkLength: cfg.RAG.MinChunkLength,
		CandidatePool:  cfg.RAG.CandidatePool,
	}, a.Metrics, logger)
	if err != nil {
		return a, fmt.Errorf("create rag engine failed: %w", err)
	}

	extractor, qaModel := newExtractor(cfg)
	var augmenter qa.Augmenter
	if cfg.RAG.Enabled {
		augmenter = a.Engine
	}
	answerer, err := qa.NewAnswerer(extractor, augmenter, qa.Options{
		WindowSize:    cfg.QA.WindowSize,
		WindowOverlap: cfg.QA.WindowOverlap,
	}, logger)
	if err != nil {
		return a, fmt.Errorf("create answerer failed: %w", err)
	}

	recognizer, nerModel := newRecognizer(cfg)
	dispatcher, err := a.startNER(ctx, recognizer)
	if err != nil {
		return a, err
	}

	a.Documents = app.NewDocumentService(a.Store, a.Engine, a.Cache, dispatcher, app.DocumentServiceConfig{
		MaxFileBytes:      int64(cfg.Upload.MaxFileSizeMB) << 20,
		ExtractionTimeout: time.Duration(cfg.Upload.ExtractionTimeoutSeconds) * time.Second,
	}, a.Metrics, logger)
	a.QA = app.NewQAService(a.Store, answerer, a.Engine, a.Cache, recognizer, app.QAServiceConfig{
		MaxQuestionLength: cfg.QA.MaxQuestionLength,
		MaxContextLength:  cfg.QA.MaxContextLength,
		TopK:              cfg.RAG.TopK,
	}, a.Metrics, logger)

	if cfg.Session.TTLMinutes > 0 {
		a.Sweeper, err = app.NewSweeper(a.Documents, time.Duration(cfg.Session.TTLMinutes)*time.Minute, cfg.Session.SweepSchedule, logger)
		if err != nil {
			return a, err
		}
		a.Sweeper.Start()
	}

	a.info = handler.ServiceInfo{
		Name:           cfg.App.Name,
		Env:            cfg.App.Env,
		Version:        cfg.App.Version,
		StartedAt:      a.StartedAt,
		QAModel:        qaModel,
		NERModel:       nerModel,
		EmbeddingModel: embeddingModel,
		RAGEnabled:     cfg.RAG.Enabled,
	}

	logger.Info("application wired",
		"store", a.Store.Name(),
		"cache", a.Cache.Name(),
		"qa_model", qaModel,
		"ner_model", nerModel,
		"embedding_model", embeddingModel,
		"rag_enabled", cfg.RAG.Enabled,
		"ner_queue", a.NERWorker != nil,
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	if !a.Config.MySQL.Enabled {
		a.Store = repository.NewMemoryStore()
		return nil
	}
	db, err := mysqlClient.New(ctx, mysqlClient.Options{DSN: a.Config.MySQLDSN()})
	if err != nil {
		return err
	}
	a.MySQL = db
	store := repository.NewGormStore(db)
	if err := store.AutoMigrate(ctx); err != nil {
		return err
	}
	a.Store = store
	return nil
}

func (a *App) openCache(ctx context.Context) {
	cfg := a.Config.Redis
	var backend cache.Backend = cache.NewMemoryBackend()
	if cfg.Enabled {
		client, err := redisClient.New(ctx, redisClient.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
		switch {
		case err == nil:
			a.Redis = client
			backend = cache.NewRedisBackend(client)
		case cfg.MemoryFallbackOnFailure:
			a.Logger.Warn("redis unavailable, using in-memory cache", "error", err)
		default:
			a.Logger.Warn("redis unavailable, caching disabled", "error", err)
			backend = nil
		}
	}
	a.Cache = cache.NewManager(
		backend,
		time.Duration(cfg.QAResultTTLSeconds)*time.Second,
		time.Duration(cfg.EmbeddingsTTLSeconds)*time.Second,
		a.Metrics,
		a.Logger,
	)
}

// startNER picks the job transport. A nil recognizer disables entity
// extraction and documents stay pending.
func (a *App) startNER(ctx context.Context, recognizer ner.Recognizer) (worker.Dispatcher, error) {
	if recognizer == nil {
		return nil, nil
	}
	cfg := a.Config
	processor := worker.NewProcessor(a.Store, recognizer, cfg.NER.WindowSize, a.Metrics, a.Logger)

	if !cfg.RabbitMQ.Enabled {
		a.inProcess = worker.NewInProcessDispatcher(processor, 0, a.Logger)
		return a.inProcess, nil
	}

	conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.NERQueue)
	if err != nil {
		return nil, err
	}
	a.MQConn = conn
	a.NERWorker = worker.NewNERWorker(conn, processor, cfg.RabbitMQ.NERQueue, a.Logger)
	if err := a.NERWorker.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, fmt.Errorf("start ner worker failed: %w", err)
	}
	return worker.NewQueueDispatcher(rabbitmqClient.NewPublisher(conn, cfg.RabbitMQ.NERQueue)), nil
}

func newEmbedder(cfg *config.Config) (rag.Embedder, string) {
	if cfg.RAG.EmbeddingProvider == config.ProviderOpenAI {
		client := ai.NewClient(cfg.RAG.EmbeddingBaseURL, cfg.RAG.EmbeddingAPIKey, time.Duration(cfg.QA.TimeoutSeconds)*time.Second)
		e := ai.NewEmbeddingClient(client, cfg.RAG.EmbeddingModel, cfg.RAG.EmbeddingBatch)
		return e, e.Model()
	}
	e := rag.NewHashEmbedder(cfg.RAG.EmbeddingDim)
	return e, e.Model()
}

func newExtractor(cfg *config.Config) (qa.Extractor, string) {
	if cfg.QA.Provider == config.ProviderHTTP {
		client := ai.NewClient(cfg.QA.BaseURL, cfg.QA.APIKey, time.Duration(cfg.QA.TimeoutSeconds)*time.Second)
		return ai.NewQAClient(client, cfg.QA.Model), cfg.QA.Model
	}
	return qa.NewLexicalExtractor(), "lexical"
}

func newRecognizer(cfg *config.Config) (ner.Recognizer, string) {
	switch cfg.NER.Provider {
	case config.ProviderHTTP:
		client := ai.NewClient(cfg.NER.BaseURL, "", time.Duration(cfg.QA.TimeoutSeconds)*time.Second)
		return ai.NewNERClient(client, cfg.NER.Model), cfg.NER.Model
	case config.ProviderNone:
		return nil, ""
	default:
		return ner.NewPatternRecognizer(), "pattern"
	}
}

// HTTPDeps collects what the router needs, including a health probe per
// external dependency that was actually opened.
func (a *App) HTTPDeps() httptransport.Deps {
	deps := []handler.Dependency{{Name: "store", Ping: a.Store.Ping}}
	if a.Redis != nil {
		deps = append(deps, handler.Dependency{Name: "redis", Ping: func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}})
	}
	if a.MQConn != nil {
		deps = append(deps, handler.Dependency{Name: "rabbitmq", Ping: func(context.Context) error {
			return rabbitmqClient.Ping(a.MQConn)
		}})
	}
	return httptransport.Deps{
		Config:       a.Config,
		Documents:    a.Documents,
		QA:           a.QA,
		Cache:        a.Cache,
		Info:         a.info,
		Dependencies: deps,
		Metrics:      a.Metrics,
		Gatherer:     a.Registry,
		Logger:       a.Logger,
	}
}

// Close stops background work first and then releases connections. It is
// safe on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.Sweeper != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.Sweeper.Stop(ctx)
		cancel()
	}
	if a.NERWorker != nil {
		a.NERWorker.Close()
	}
	if a.inProcess != nil {
		a.inProcess.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rabbitmq failed: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis failed: %w", err))
		}
	}
	if err := mysqlClient.Close(a.MySQL); err != nil {
		errs = append(errs, fmt.Errorf("close mysql failed: %w", err))
	}
	return errors.Join(errs...)
}
