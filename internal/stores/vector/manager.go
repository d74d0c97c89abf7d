package vector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

// Embedder turns chunk text into vectors. The manager is handed the same
// embedder the fusion coordinator uses for queries.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Manager owns the HTTP client against Qdrant and hands out the vector
// ingestor and retriever built on that shared client. It is the only type
// other components depend on for the vector store.
type Manager struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	http     *http.Client
	embedder Embedder
	policy   stores.BatchPolicy
	lc       stores.Lifecycle

	ingestor  *Ingestor
	retriever *Retriever
}

func NewManager(log *logger.Logger, cfg Config, embedder Embedder, policy stores.BatchPolicy) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		log:      log.With("service", "VectorStoreManager"),
		cfg:      cfg,
		baseURL:  trimRightSlash(cfg.URL),
		http:     &http.Client{Timeout: cfg.Timeout},
		embedder: embedder,
		policy:   policy,
	}
	m.ingestor = &Ingestor{m: m}
	m.retriever = &Retriever{m: m}
	return m, nil
}

func (m *Manager) Ingestor() *Ingestor   { return m.ingestor }
func (m *Manager) Retriever() *Retriever { return m.retriever }

// Initialize verifies the Qdrant deployment is reachable and that the
// collection exists with the configured dimension, creating it when absent.
// Any failure leaves the manager in Failed, never Ready.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.lc.BeginInit(); err != nil {
		return err
	}
	if err := m.verifyReady(ctx); err != nil {
		m.lc.MarkFailed()
		return &stores.ConfigurationError{Store: "vector", Message: "qdrant not reachable", Cause: err}
	}
	if err := m.ensureCollection(ctx); err != nil {
		m.lc.MarkFailed()
		return err
	}
	m.lc.MarkReady()
	m.log.Info("vector store ready",
		"url", m.baseURL,
		"collection", m.cfg.Collection,
		"vector_dim", m.cfg.VectorDim,
	)
	return nil
}

func (m *Manager) Close(_ context.Context) error {
	m.lc.MarkClosed()
	m.http.CloseIdleConnections()
	return nil
}

func (m *Manager) Health(ctx context.Context) stores.Health {
	start := time.Now()
	err := m.verifyReady(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return stores.Health{OK: false, LatencyMS: latency, Detail: err.Error()}
	}
	return stores.Health{OK: true, LatencyMS: latency, Detail: "state=" + m.lc.State().String()}
}

func (m *Manager) Stats(ctx context.Context) (stores.Stats, error) {
	var result struct {
		PointsCount int64  `json:"points_count"`
		Status      string `json:"status"`
	}
	if err := m.doJSON(ctx, "stats", http.MethodGet, m.collectionPath(""), nil, &result); err != nil {
		return nil, err
	}
	return stores.Stats{
		"points_count": result.PointsCount,
		"collection":   m.cfg.Collection,
		"vector_dim":   m.cfg.VectorDim,
		"state":        m.lc.State().String(),
	}, nil
}

func (m *Manager) verifyReady(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/readyz", nil)
	if err != nil {
		return err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &stores.TransientError{Op: "vector/ready", Cause: fmt.Errorf("ready check status=%d", resp.StatusCode)}
	}
	return nil
}

// ensureCollection creates the collection when missing and rejects a
// dimension mismatch when it exists.
func (m *Manager) ensureCollection(ctx context.Context) error {
	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := m.doJSON(ctx, "describe_collection", http.MethodGet, m.collectionPath(""), nil, &result)
	if err == nil {
		if size := result.Config.Params.Vectors.Size; size != 0 && size != m.cfg.VectorDim {
			return &stores.ConfigurationError{
				Store:   "vector",
				Message: fmt.Sprintf("collection vector size mismatch: expected=%d actual=%d", m.cfg.VectorDim, size),
			}
		}
		return nil
	}

	createReq := map[string]any{
		"vectors": map[string]any{
			"size":     m.cfg.VectorDim,
			"distance": "Cosine",
		},
	}
	if createErr := m.doJSON(ctx, "create_collection", http.MethodPut, m.collectionPath(""), createReq, nil); createErr != nil {
		return &stores.ConfigurationError{Store: "vector", Message: "create collection failed", Cause: createErr}
	}
	m.log.Info("created qdrant collection", "collection", m.cfg.Collection, "vector_dim", m.cfg.VectorDim)
	return nil
}

func trimRightSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
