// Package stores holds the pieces shared by the vector, relational and graph
// store triads: the manager lifecycle state machine, the health/stats
// surface, the batch write policy and the error taxonomy.
package stores

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
)

// IngestMode governs whether a run clears prior data for its source
// (overwrite) or upserts without duplication (replace).
type IngestMode string

const (
	ModeOverwrite IngestMode = "overwrite"
	ModeReplace   IngestMode = "replace"
)

func (m IngestMode) Valid() bool {
	return m == ModeOverwrite || m == ModeReplace
}

// Health is the common health-check result shape.
type Health struct {
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Detail    string `json:"detail"`
}

// Stats carries store-specific counters.
type Stats map[string]any

// Manager is the only surface other components depend on. It owns the shared
// client for one store and hands out that store's ingestor and retriever.
type Manager interface {
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error
	Health(ctx context.Context) Health
	Stats(ctx context.Context) (Stats, error)
}

// Ingestor is the chunk write path shared by all three stores.
type Ingestor interface {
	IngestBatch(ctx context.Context, chunks []domain.Chunk, mode IngestMode) (domain.IngestionBatchResult, error)
}

// Match is one vector search hit.
type Match struct {
	ChunkUUID uuid.UUID
	Score     float64
}

// VectorRetriever runs similarity search over chunk embeddings.
type VectorRetriever interface {
	Search(ctx context.Context, embedding []float32, topK int, filters map[string]any) ([]Match, error)
}

// RelationalRetriever reads chunk rows back by primary key.
type RelationalRetriever interface {
	GetByUUIDs(ctx context.Context, chunkUUIDs []uuid.UUID) ([]domain.Chunk, error)
	GetWithContext(ctx context.Context, chunkUUID uuid.UUID, window int) ([]domain.Chunk, error)
}

// GraphRetriever reads the entity/relationship neighborhood of chunks.
type GraphRetriever interface {
	GetEntitiesAndRelationships(ctx context.Context, chunkUUIDs []uuid.UUID) ([]domain.Entity, []domain.Relationship, error)
}

// State is the manager lifecycle position.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Lifecycle enforces Uninitialized -> Initializing -> Ready -> Closed, with
// Initializing -> Failed on a resource acquisition error. No operation other
// than Initialize/Close is permitted outside Ready.
type Lifecycle struct {
	mu    sync.Mutex
	state State
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// BeginInit transitions to Initializing. Re-initialization of a closed or
// failed manager is rejected; a fresh manager must be constructed.
func (l *Lifecycle) BeginInit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateUninitialized {
		return fmt.Errorf("stores: initialize from state %s", l.state)
	}
	l.state = StateInitializing
	return nil
}

func (l *Lifecycle) MarkReady() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateInitializing {
		l.state = StateReady
	}
}

func (l *Lifecycle) MarkFailed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateInitializing {
		l.state = StateFailed
	}
}

func (l *Lifecycle) MarkClosed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateClosed
}

// RequireReady is called at the top of every ingest/retrieve operation.
func (l *Lifecycle) RequireReady() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateReady {
		return &NotReadyError{State: l.state}
	}
	return nil
}
