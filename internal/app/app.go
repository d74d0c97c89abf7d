// Package app wires the whole system together: logger, secret resolver,
// clients, the three store managers, the ingestion pipeline and the fusion
// coordinator. The CLI commands only ever talk to this package.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amedina/team-assistant-v1-sub000/internal/clients/openai"
	"github.com/amedina/team-assistant-v1-sub000/internal/clients/rediscache"
	"github.com/amedina/team-assistant-v1-sub000/internal/config"
	"github.com/amedina/team-assistant-v1-sub000/internal/connectors"
	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
	"github.com/amedina/team-assistant-v1-sub000/internal/fusion"
	"github.com/amedina/team-assistant-v1-sub000/internal/pipeline"
	"github.com/amedina/team-assistant-v1-sub000/internal/platform/envutil"
	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
	"github.com/amedina/team-assistant-v1-sub000/internal/processor"
	"github.com/amedina/team-assistant-v1-sub000/internal/secrets"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores/graph"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores/relational"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores/vector"
)

type App struct {
	Log    *logger.Logger
	Config config.Config

	Vector     *vector.Manager
	Relational *relational.Manager
	Graph      *graph.Manager

	Pipeline *pipeline.Pipeline
	Fusion   *fusion.Coordinator

	cache *rediscache.EmbeddingCache
}

// New builds the full dependency graph without touching any backend; store
// connections happen in InitStores so validate can construct an App cheaply.
func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.Str("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("app: init logger: %w", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	var store secrets.Store
	if project := envutil.Str("GCP_PROJECT", ""); project != "" {
		gcpStore, err := secrets.NewGCPStore(ctx, project, log)
		if err != nil {
			log.Warn("secret store unavailable, falling back to environment", "error", err)
		} else {
			store = gcpStore
		}
	}
	resolver := secrets.NewResolver(store, log)

	ai, err := openai.NewClient(ctx, log, resolver)
	if err != nil {
		return nil, err
	}

	cache, err := rediscache.New(ctx, log, resolver)
	if err != nil {
		log.Warn("embedding cache unavailable, continuing without it", "error", err)
		cache = nil
	}

	vectorCfg, err := vector.ResolveConfigFromEnv()
	if err != nil {
		return nil, err
	}
	vectorMgr, err := vector.NewManager(log, vectorCfg, ai, cfg.Batch)
	if err != nil {
		return nil, err
	}

	relationalMgr, err := relational.NewManager(log, relational.ResolveConfigFromEnv(), resolver, cfg.Batch)
	if err != nil {
		return nil, err
	}

	graphCfg, err := graph.ResolveConfigFromEnv()
	if err != nil {
		return nil, err
	}
	graphMgr, err := graph.NewManager(log, graphCfg, resolver, cfg.Batch)
	if err != nil {
		return nil, err
	}

	var extractor processor.Extractor
	if cfg.Chunking.ExtractEntities {
		extractor = openai.NewEntityExtractor(ai)
	}
	proc := processor.New(log, extractor)

	pipe := pipeline.New(log, proc, cfg.Chunking,
		vectorMgr.Ingestor(),
		relationalMgr.Ingestor(),
		graphMgr.Ingestor(),
	)

	var fusionCache fusion.EmbeddingCache
	if cache != nil {
		fusionCache = cache
	}
	coordinator := fusion.New(log, ai, fusionCache,
		vectorMgr.Retriever(),
		relationalMgr.Retriever(),
		graphMgr.Retriever(),
	)

	return &App{
		Log:        log,
		Config:     cfg,
		Vector:     vectorMgr,
		Relational: relationalMgr,
		Graph:      graphMgr,
		Pipeline:   pipe,
		Fusion:     coordinator,
		cache:      cache,
	}, nil
}

func (a *App) managers() map[string]stores.Manager {
	return map[string]stores.Manager{
		"vector":     a.Vector,
		"relational": a.Relational,
		"graph":      a.Graph,
	}
}

// InitStores initializes all three managers. A manager that fails startup
// never reports Ready, and the error surfaces here.
func (a *App) InitStores(ctx context.Context) error {
	for name, mgr := range a.managers() {
		if err := mgr.Initialize(ctx); err != nil {
			return fmt.Errorf("app: initialize %s store: %w", name, err)
		}
	}
	return nil
}

func (a *App) Close(ctx context.Context) {
	for name, mgr := range a.managers() {
		if err := mgr.Close(ctx); err != nil {
			a.Log.Warn("store close failed", "store", name, "error", err)
		}
	}
	if err := a.cache.Close(); err != nil {
		a.Log.Warn("cache close failed", "error", err)
	}
	a.Log.Sync()
}

// HealthAll returns per-store health, keyed by store name.
func (a *App) HealthAll(ctx context.Context) map[string]stores.Health {
	out := make(map[string]stores.Health, 3)
	for name, mgr := range a.managers() {
		out[name] = mgr.Health(ctx)
	}
	return out
}

// StatsAll returns per-store counters, keyed by store name.
func (a *App) StatsAll(ctx context.Context) (map[string]stores.Stats, error) {
	out := make(map[string]stores.Stats, 3)
	for name, mgr := range a.managers() {
		stat, err := mgr.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: %s stats: %w", name, err)
		}
		out[name] = stat
	}
	return out, nil
}

// VerifyConvergence polls the vector and relational stores until every given
// chunk UUID is visible in both, or the configured convergence window runs
// out. A violation is reported, never silently ignored.
func (a *App) VerifyConvergence(ctx context.Context, chunkUUIDs []uuid.UUID) error {
	if len(chunkUUIDs) == 0 {
		return nil
	}

	deadline := time.Now().Add(a.Config.ConvergenceWindow)
	pending := make(map[uuid.UUID]struct{}, len(chunkUUIDs))
	for _, id := range chunkUUIDs {
		pending[id] = struct{}{}
	}

	for {
		remaining := make([]uuid.UUID, 0, len(pending))
		for id := range pending {
			remaining = append(remaining, id)
		}

		inVector, err := a.Vector.Retriever().ExistingIDs(ctx, remaining)
		if err != nil {
			return fmt.Errorf("app: convergence check against vector store: %w", err)
		}
		rows, err := a.Relational.Retriever().GetByUUIDs(ctx, remaining)
		if err != nil {
			return fmt.Errorf("app: convergence check against relational store: %w", err)
		}
		inRelational := make(map[uuid.UUID]bool, len(rows))
		for _, row := range rows {
			inRelational[row.ChunkUUID] = true
		}

		for _, id := range remaining {
			if inVector[id] && inRelational[id] {
				delete(pending, id)
			}
		}
		if len(pending) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("app: %d chunks not visible in all stores within %s", len(pending), a.Config.ConvergenceWindow)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// SourceConnectors builds the connector set from the sources manifest. The
// fetch logic for live sources lives outside this repository; manifest
// entries become placeholders a deployment substitutes with real connectors.
func (a *App) SourceConnectors() ([]connectors.Connector, error) {
	sources, err := a.Config.LoadSources()
	if err != nil {
		return nil, err
	}
	conns := make([]connectors.Connector, 0, len(sources))
	for _, s := range sources {
		if !domain.SourceType(s.Type).Valid() {
			return nil, fmt.Errorf("app: unknown source type %q in manifest", s.Type)
		}
		conns = append(conns, &connectors.Static{ConnectorName: s.Type + ":" + s.Identifier})
	}
	return conns, nil
}
