package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/amedina/team-assistant-v1-sub000/internal/platform/envutil"
	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
	"github.com/amedina/team-assistant-v1-sub000/internal/secrets"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

// Config holds the Neo4j connection settings. The password goes through the
// secret resolver at Initialize time.
type Config struct {
	URI         string
	User        string
	Database    string
	Timeout     time.Duration
	MaxPoolSize int
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URI:         envutil.Str("NEO4J_URI", ""),
		User:        envutil.Str("NEO4J_USER", "neo4j"),
		Database:    envutil.Str("NEO4J_DATABASE", ""),
		Timeout:     envutil.DurationSeconds("NEO4J_TIMEOUT_SECONDS", 10*time.Second),
		MaxPoolSize: envutil.Int("NEO4J_MAX_POOL_SIZE", 50),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.URI) == "" {
		return &stores.ConfigurationError{Store: "graph", Message: "NEO4J_URI is required"}
	}
	if strings.TrimSpace(c.User) == "" {
		return &stores.ConfigurationError{Store: "graph", Message: "NEO4J_USER is required"}
	}
	return nil
}

// Manager owns the Neo4j driver and hands out the graph ingestor and
// retriever built on it.
type Manager struct {
	log      *logger.Logger
	cfg      Config
	resolver *secrets.Resolver
	policy   stores.BatchPolicy
	lc       stores.Lifecycle
	driver   neo4j.DriverWithContext

	ingestor  *Ingestor
	retriever *Retriever
}

func NewManager(log *logger.Logger, cfg Config, resolver *secrets.Resolver, policy stores.BatchPolicy) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		log:      log.With("service", "GraphStoreManager"),
		cfg:      cfg,
		resolver: resolver,
		policy:   policy,
	}
	m.ingestor = &Ingestor{m: m}
	m.retriever = &Retriever{m: m}
	return m, nil
}

func (m *Manager) Ingestor() *Ingestor   { return m.ingestor }
func (m *Manager) Retriever() *Retriever { return m.retriever }

// Initialize resolves credentials, builds the driver, verifies connectivity
// and installs the uniqueness constraints the merge queries rely on.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.lc.BeginInit(); err != nil {
		return err
	}

	password, err := m.resolver.Resolve(ctx, "neo4j-password", "NEO4J_PASSWORD", "")
	if err != nil {
		m.lc.MarkFailed()
		return &stores.ConfigurationError{Store: "graph", Message: "neo4j password unresolved", Cause: err}
	}

	driver, err := neo4j.NewDriverWithContext(m.cfg.URI, neo4j.BasicAuth(m.cfg.User, password, ""), func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = m.cfg.MaxPoolSize
		cfg.SocketConnectTimeout = m.cfg.Timeout
	})
	if err != nil {
		m.lc.MarkFailed()
		return &stores.ConfigurationError{Store: "graph", Message: "init driver", Cause: err}
	}

	verifyCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		m.lc.MarkFailed()
		return &stores.ConfigurationError{Store: "graph", Message: "verify connectivity", Cause: err}
	}
	m.driver = driver

	if err := m.ensureConstraints(ctx); err != nil {
		m.lc.MarkFailed()
		return err
	}

	m.lc.MarkReady()
	m.log.Info("graph store ready", "uri", m.cfg.URI, "database", m.cfg.Database)
	return nil
}

func (m *Manager) ensureConstraints(ctx context.Context) error {
	session := m.session(ctx)
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT chunk_uuid_unique IF NOT EXISTS FOR (c:Chunk) REQUIRE c.chunk_uuid IS UNIQUE`,
		`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
	}
	for _, q := range stmts {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			return &stores.ConfigurationError{Store: "graph", Message: "create constraint", Cause: err}
		}
		if _, err := res.Consume(ctx); err != nil {
			return &stores.ConfigurationError{Store: "graph", Message: "create constraint", Cause: err}
		}
	}
	return nil
}

func (m *Manager) session(ctx context.Context) neo4j.SessionWithContext {
	return m.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: m.cfg.Database})
}

func (m *Manager) Close(ctx context.Context) error {
	m.lc.MarkClosed()
	if m.driver == nil {
		return nil
	}
	err := m.driver.Close(ctx)
	m.driver = nil
	return err
}

func (m *Manager) Health(ctx context.Context) stores.Health {
	start := time.Now()
	if m.driver == nil {
		return stores.Health{OK: false, Detail: "not initialized"}
	}
	err := m.driver.VerifyConnectivity(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return stores.Health{OK: false, LatencyMS: latency, Detail: err.Error()}
	}
	return stores.Health{OK: true, LatencyMS: latency, Detail: "state=" + m.lc.State().String()}
}

func (m *Manager) Stats(ctx context.Context) (stores.Stats, error) {
	if err := m.lc.RequireReady(); err != nil {
		return nil, err
	}
	session := m.session(ctx)
	defer session.Close(ctx)

	counts, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (map[string]any, error) {
		out := map[string]any{}
		queries := map[string]string{
			"chunk_nodes":        `MATCH (c:Chunk) RETURN count(c) AS n`,
			"entity_nodes":       `MATCH (e:Entity) RETURN count(e) AS n`,
			"relationship_edges": `MATCH ()-[r:RELATES_TO]->() RETURN count(r) AS n`,
		}
		for key, q := range queries {
			res, err := tx.Run(ctx, q, nil)
			if err != nil {
				return nil, err
			}
			record, err := res.Single(ctx)
			if err != nil {
				return nil, err
			}
			n, _ := record.Get("n")
			out[key] = n
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: stats query: %w", err)
	}

	result := stores.Stats{"state": m.lc.State().String()}
	for key, value := range counts {
		result[key] = value
	}
	return result, nil
}
