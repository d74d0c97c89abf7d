// Package pipeline orchestrates the write path: documents in, three stores
// written, one run summary out.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/amedina/team-assistant-v1-sub000/internal/connectors"
	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
	"github.com/amedina/team-assistant-v1-sub000/internal/processor"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

// GraphIngestor extends the shared chunk write path with the entity and
// relationship graph produced by extraction.
type GraphIngestor interface {
	stores.Ingestor
	IngestGraph(ctx context.Context, entities []domain.Entity, relationships []domain.Relationship) error
}

// FailedDoc records one document the processing loop gave up on.
type FailedDoc struct {
	SourceType       domain.SourceType
	SourceIdentifier string
	Reason           string
}

// RunSummary aggregates one pipeline run: the document loop outcome plus the
// per-store batch results. A partial store failure never aborts the run; it
// is visible here instead.
type RunSummary struct {
	DocsAttempted int
	DocsSucceeded int
	DocsFailed    int
	FailedDocs    []FailedDoc

	StoreResults map[string]domain.IngestionBatchResult

	ChunksProduced int
	Entities       int
	Relationships  int

	// ChunkUUIDs lists every chunk the run produced, in ingestion order. The
	// convergence check reads them back from the stores afterwards.
	ChunkUUIDs []uuid.UUID
}

// Success reports whether every document processed and every store accepted
// every chunk.
func (s RunSummary) Success() bool {
	if s.DocsFailed > 0 {
		return false
	}
	for _, r := range s.StoreResults {
		if r.Failed > 0 {
			return false
		}
	}
	return true
}

type Pipeline struct {
	log       *logger.Logger
	processor *processor.Processor
	opts      processor.Options

	vector     stores.Ingestor
	relational stores.Ingestor
	graph      GraphIngestor
}

func New(log *logger.Logger, proc *processor.Processor, opts processor.Options, vector, relational stores.Ingestor, graph GraphIngestor) *Pipeline {
	return &Pipeline{
		log:        log.With("service", "IngestionPipeline"),
		processor:  proc,
		opts:       opts,
		vector:     vector,
		relational: relational,
		graph:      graph,
	}
}

// Run processes the documents and fans the accumulated chunk batch out to
// all three stores concurrently. Document failures are isolated to their
// summary entries. Run itself errors only when a store is unreachable
// outright, never for partial batch failures.
func (p *Pipeline) Run(ctx context.Context, docs []domain.Document, mode stores.IngestMode) (RunSummary, error) {
	if !mode.Valid() {
		return RunSummary{}, fmt.Errorf("pipeline: invalid ingest mode %q", mode)
	}

	summary := RunSummary{StoreResults: map[string]domain.IngestionBatchResult{}}
	var chunks []domain.Chunk
	var entities []domain.Entity
	var relationships []domain.Relationship

	for _, doc := range docs {
		summary.DocsAttempted++
		result, err := p.processor.Process(ctx, doc, p.opts)
		if err != nil {
			summary.DocsFailed++
			summary.FailedDocs = append(summary.FailedDocs, FailedDoc{
				SourceType:       doc.SourceType,
				SourceIdentifier: doc.SourceIdentifier,
				Reason:           err.Error(),
			})
			p.log.Warn("document processing failed",
				"source_type", doc.SourceType,
				"source_identifier", doc.SourceIdentifier,
				"error", err,
			)
			continue
		}
		summary.DocsSucceeded++
		chunks = append(chunks, result.Chunks...)
		entities = append(entities, result.Entities...)
		relationships = append(relationships, result.Relationships...)
	}

	summary.ChunksProduced = len(chunks)
	summary.Entities = len(entities)
	summary.Relationships = len(relationships)
	for _, c := range chunks {
		summary.ChunkUUIDs = append(summary.ChunkUUIDs, c.ChunkUUID)
	}

	if len(chunks) == 0 {
		p.log.Info("pipeline run produced no chunks", "docs_attempted", summary.DocsAttempted)
		return summary, nil
	}

	var mu sync.Mutex
	record := func(store string, result domain.IngestionBatchResult) {
		mu.Lock()
		summary.StoreResults[store] = result
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := p.vector.IngestBatch(gctx, chunks, mode)
		if err != nil {
			return fmt.Errorf("vector store: %w", err)
		}
		record("vector", result)
		return nil
	})
	g.Go(func() error {
		result, err := p.relational.IngestBatch(gctx, chunks, mode)
		if err != nil {
			return fmt.Errorf("relational store: %w", err)
		}
		record("relational", result)
		return nil
	})
	g.Go(func() error {
		result, err := p.graph.IngestBatch(gctx, chunks, mode)
		if err != nil {
			return fmt.Errorf("graph store: %w", err)
		}
		record("graph", result)
		return nil
	})
	if err := g.Wait(); err != nil {
		return summary, err
	}

	// The graph payload goes in after the chunk nodes exist everywhere.
	if len(entities) > 0 || len(relationships) > 0 {
		if err := p.graph.IngestGraph(ctx, entities, relationships); err != nil {
			return summary, fmt.Errorf("graph store: %w", err)
		}
	}

	for store, result := range summary.StoreResults {
		if err := result.Validate(); err != nil {
			return summary, fmt.Errorf("pipeline: %s result accounting: %w", store, err)
		}
	}

	p.log.Info("pipeline run complete",
		"docs_attempted", summary.DocsAttempted,
		"docs_failed", summary.DocsFailed,
		"chunks", summary.ChunksProduced,
		"entities", summary.Entities,
		"relationships", summary.Relationships,
	)
	return summary, nil
}

// RunFromConnectors drains each connector's document stream and runs the
// batch. The sync mode is forwarded to the connectors; overwrite semantics
// at the stores come from the separate ingest mode.
func (p *Pipeline) RunFromConnectors(ctx context.Context, conns []connectors.Connector, syncMode connectors.SyncMode, mode stores.IngestMode) (RunSummary, error) {
	if !syncMode.Valid() {
		return RunSummary{}, fmt.Errorf("pipeline: invalid sync mode %q", syncMode)
	}

	var docs []domain.Document
	var fetchFailures []FailedDoc
	for _, conn := range conns {
		if err := conn.Connect(ctx); err != nil {
			return RunSummary{}, fmt.Errorf("pipeline: connect %s: %w", conn.Name(), err)
		}
		stream, err := conn.FetchDocuments(ctx, syncMode)
		if err != nil {
			_ = conn.Disconnect(ctx)
			return RunSummary{}, fmt.Errorf("pipeline: fetch from %s: %w", conn.Name(), err)
		}
		for item := range stream {
			if item.Err != nil {
				fetchFailures = append(fetchFailures, FailedDoc{
					SourceType:       item.Doc.SourceType,
					SourceIdentifier: item.Doc.SourceIdentifier,
					Reason:           item.Err.Error(),
				})
				p.log.Warn("document fetch failed", "connector", conn.Name(), "error", item.Err)
				continue
			}
			docs = append(docs, item.Doc)
		}
		if err := conn.Disconnect(ctx); err != nil {
			p.log.Warn("connector disconnect failed", "connector", conn.Name(), "error", err)
		}
	}

	summary, err := p.Run(ctx, docs, mode)
	summary.DocsAttempted += len(fetchFailures)
	summary.DocsFailed += len(fetchFailures)
	summary.FailedDocs = append(fetchFailures, summary.FailedDocs...)
	return summary, err
}
