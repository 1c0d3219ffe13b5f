// Package app provides application initialization and dependency
// wiring: configuration, database, Genkit, crisis detection, alerting
// and the chat service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/havenmind/haven/db"
	"github.com/havenmind/haven/internal/alert"
	"github.com/havenmind/haven/internal/chat"
	"github.com/havenmind/haven/internal/config"
	"github.com/havenmind/haven/internal/crisis"
	"github.com/havenmind/haven/internal/knowledge"
	"github.com/havenmind/haven/internal/metrics"
	"github.com/havenmind/haven/internal/session"
)

// App is the application container. Create with Setup, release with
// Close.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool
	Registry *prometheus.Registry

	Knowledge *knowledge.Store
	Sessions  *session.Store
	Detector  *crisis.Detector
	Service   *chat.Service

	watcher *crisis.Watcher
	cancel  context.CancelFunc
	bg      sync.WaitGroup
}

// Setup creates and initializes the application. On failure everything
// already initialized is released.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	bgCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	if err := db.Migrate(cfg.ConnString(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, fmt.Errorf("initializing genkit")
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	a.Registry = provideRegistry()
	m := metrics.New(a.Registry)

	a.Knowledge = knowledge.NewStore(knowledge.NewQueries(pool), embedder, logger)
	a.Sessions = session.NewStore(session.NewQueries(pool), logger)

	detector, err := a.provideCrisisDetection(bgCtx, m)
	if err != nil {
		return nil, err
	}
	a.Detector = detector

	dispatcher := provideDispatcher(cfg, m, logger)

	pipeline := chat.NewPipeline(g, a.Knowledge, chat.PipelineConfig{
		ModelName:    cfg.ModelName,
		TopK:         cfg.RetrievalTopK,
		MinRelevance: cfg.MinRelevance,
		Limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateBurst),
	}, m, logger)

	a.Service = chat.NewService(pipeline, detector, dispatcher, a.Sessions, chat.ServiceConfig{
		MaxHistory: int32(cfg.MaxHistoryMessages),
	}, logger)

	return a, nil
}

// Close releases all resources: stops background workers, waits for
// in-flight alert dispatches, closes the database pool.
func (a *App) Close() {
	a.Logger.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.Logger.Warn("closing keyword watcher", "error", err)
		}
	}
	a.bg.Wait()
	if a.Service != nil {
		a.Service.Close()
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}
}

// provideDBPool creates and verifies the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to PostgreSQL at %s:%d: %w",
			cfg.PostgresHost, cfg.PostgresPort, err)
	}
	return pool, nil
}

// provideRegistry creates the metrics registry with runtime collectors.
func provideRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// provideCrisisDetection builds the matcher, scanner, engine and
// detector, starts the background exemplar embedding and, when a
// keyword file is configured, its hot-reload watcher.
func (a *App) provideCrisisDetection(bgCtx context.Context, m *metrics.Metrics) (*crisis.Detector, error) {
	cfg := a.Config.Crisis

	set := crisis.NewKeywordSet("builtin", crisis.DefaultKeywords())
	exemplars := crisis.DefaultExemplars()
	if cfg.KeywordFile != "" {
		loaded, loadedExemplars, err := crisis.LoadFile(cfg.KeywordFile)
		if err != nil {
			return nil, fmt.Errorf("loading keyword file: %w", err)
		}
		set, exemplars = loaded, loadedExemplars
	}
	matcher := crisis.NewMatcher(set)

	scanner := crisis.NewScanner(a.Embedder, crisis.ScanConfig{
		WindowSize: cfg.WindowSize,
		Stride:     cfg.WindowStride,
		Threshold:  cfg.SemanticThreshold,
	}, cfg.EmbeddingCacheFile, a.Logger)

	// Exemplar embedding happens in the background so startup never
	// blocks on the embedder; detection is keyword-only until ready.
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		if err := scanner.Init(bgCtx, exemplars); err != nil {
			a.Logger.Error("exemplar embedding init failed, semantic scan disabled", "error", err)
		}
	}()

	if cfg.KeywordFile != "" {
		watcher, err := crisis.NewWatcher(cfg.KeywordFile, func(newSet *crisis.KeywordSet, newExemplars []string) {
			matcher.Swap(newSet)
			a.bg.Add(1)
			go func() {
				defer a.bg.Done()
				if err := scanner.Init(bgCtx, newExemplars); err != nil {
					a.Logger.Error("exemplar re-embedding failed, keeping previous index", "error", err)
				}
			}()
		}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("creating keyword watcher: %w", err)
		}
		a.watcher = watcher

		a.bg.Add(1)
		go func() {
			defer a.bg.Done()
			watcher.Start(bgCtx)
		}()
	}

	engine := crisis.NewEngine(cfg.SemanticCriticalThreshold, a.Logger)
	return crisis.NewDetector(matcher, scanner, engine, m, a.Logger), nil
}

// provideDispatcher assembles the alert channel chain: Twilio SMS
// first, Telegram fallback.
func provideDispatcher(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *alert.Dispatcher {
	channels := []alert.Channel{
		alert.NewTwilioChannel(alert.TwilioConfig{
			AccountSID:          cfg.Alert.TwilioAccountSID,
			AuthToken:           cfg.Alert.TwilioAuthToken,
			MessagingServiceSID: cfg.Alert.TwilioServiceSID,
			To:                  cfg.Alert.HelplineNumber,
		}, logger),
		alert.NewTelegramChannel(alert.TelegramConfig{
			BotToken: cfg.Alert.TelegramBotToken,
			ChatID:   cfg.Alert.TelegramChatID,
		}, logger),
	}
	timeout := time.Duration(cfg.Alert.DispatchTimeoutSec) * time.Second
	return alert.NewDispatcher(channels, timeout, m, logger)
}
