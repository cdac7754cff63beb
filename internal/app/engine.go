// Package app wires configuration into a ready-to-serve recommendation engine.
// Both the HTTP server and the MCP server start from here.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oncology-therapy-mcp-server/internal/database"
	"github.com/oncology-therapy-mcp-server/internal/domain"
	"github.com/oncology-therapy-mcp-server/internal/knowledgebase"
	"github.com/oncology-therapy-mcp-server/internal/llm"
	"github.com/oncology-therapy-mcp-server/internal/metrics"
	"github.com/oncology-therapy-mcp-server/internal/service"
)

// Engine holds the wired recommender and the resources it owns.
type Engine struct {
	Recommender *service.Recommender
	Store       *knowledgebase.Store

	closers []func()
	checks  map[string]func(context.Context) error
}

// HealthChecks returns checks for the external dependencies the engine holds,
// keyed by name. Embedded and file sources have none.
func (e *Engine) HealthChecks() map[string]func(context.Context) error {
	return e.checks
}

// Close releases database handles in reverse order of acquisition.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// NewEngine builds the knowledge base store, the optional LLM client and the
// recommender from cfg. m may be nil, which disables metrics.
func NewEngine(ctx context.Context, cfg *domain.Config, logger *logrus.Logger, m *metrics.Metrics) (*Engine, error) {
	engine := &Engine{checks: make(map[string]func(context.Context) error)}

	source, err := engine.openSource(ctx, cfg, logger)
	if err != nil {
		engine.Close()
		return nil, err
	}

	storeOpts := []knowledgebase.Option{knowledgebase.WithLogger(logger)}
	if m != nil {
		storeOpts = append(storeOpts, knowledgebase.WithLoadObserver(m.ObserveKnowledgeBaseLoad))
	}
	store, err := knowledgebase.NewStore(source, cfg.KnowledgeBase.CacheSize, storeOpts...)
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.Store = store

	var (
		callObserver      llm.CallObserver
		narrativeObserver service.NarrativeObserver
		recommenderOpts   []service.Option
	)
	if m != nil {
		callObserver = m.ObserveLLMCall
		narrativeObserver = m.ObserveNarrative
		recommenderOpts = append(recommenderOpts, service.WithOutcomeObserver(m.ObserveRecommendation))
	}

	client, err := llm.NewFromConfig(ctx, cfg.LLM, logger, callObserver)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	composer := service.NewNarrativeComposer(NarrativeSettings(cfg.LLM), logger, narrativeObserver)
	engine.Recommender = service.NewRecommender(store, composer, client, logger, recommenderOpts...)

	logger.WithFields(logrus.Fields{
		"source":    source.Name(),
		"narrative": client != nil,
	}).Info("Recommendation engine ready")

	return engine, nil
}

// NarrativeSettings maps the LLM section onto composer settings. An empty
// deployment leaves the model to the client's own default.
func NarrativeSettings(cfg domain.LLMConfig) service.NarrativeSettings {
	settings := service.DefaultNarrativeSettings()
	settings.Model = cfg.Deployment
	if cfg.MaxTokens > 0 {
		settings.MaxTokens = cfg.MaxTokens
	}
	settings.Temperature = cfg.Temperature
	if cfg.Timeout > 0 {
		settings.Timeout = cfg.Timeout
	}
	return settings
}

// openSource selects the knowledge base backend. Writable backends are seeded
// from the embedded documents for any cancer type they do not hold yet.
func (e *Engine) openSource(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (domain.KnowledgeBaseSource, error) {
	kbCfg := cfg.KnowledgeBase

	switch kbCfg.Source {
	case domain.SourceEmbedded, "":
		return knowledgebase.NewEmbeddedSource(), nil

	case domain.SourceDirectory:
		return knowledgebase.NewDirectorySource(kbCfg.Directory)

	case domain.SourceSQLite:
		source, err := knowledgebase.OpenSQLiteSource(kbCfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite knowledge base: %w", err)
		}
		e.closers = append(e.closers, func() { _ = source.Close() })
		if err := seed(ctx, source, logger); err != nil {
			return nil, err
		}
		return source, nil

	case domain.SourcePostgres:
		dbCfg := database.ConfigFrom(cfg.Database)
		if cfg.Database.MigrationsAuto {
			if err := migrate(ctx, dbCfg, logger); err != nil {
				return nil, err
			}
		}
		db, err := database.NewConnection(ctx, dbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		e.closers = append(e.closers, db.Close)
		e.checks["database"] = db.Health

		source := knowledgebase.NewPostgresSource(db.Pool)
		if err := seed(ctx, source, logger); err != nil {
			return nil, err
		}
		return source, nil

	default:
		return nil, fmt.Errorf("unsupported knowledge base source %q", kbCfg.Source)
	}
}

func seed(ctx context.Context, dst interface {
	domain.KnowledgeBaseSource
	knowledgebase.Writer
}, logger *logrus.Logger) error {
	seeded, err := knowledgebase.Seed(ctx, dst, knowledgebase.NewEmbeddedSource())
	if err != nil {
		return fmt.Errorf("failed to seed knowledge base: %w", err)
	}
	if len(seeded) > 0 {
		logger.WithFields(logrus.Fields{
			"source":       dst.Name(),
			"cancer_types": seeded,
		}).Info("Seeded knowledge base from embedded documents")
	}
	return nil
}

func migrate(ctx context.Context, dbCfg database.Config, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(dbCfg.MigrationURL(), logger)
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	defer runner.Close()

	if err := runner.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
