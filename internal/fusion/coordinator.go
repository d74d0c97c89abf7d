// Package fusion implements the read path: one query in, one ranked,
// cross-store context out.
package fusion

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

// ErrNoContext signals total retrieval failure. The conversational layer
// turns it into a graceful fallback message; it never sees raw store errors.
var ErrNoContext = errors.New("fusion: no context available")

// Embedder matches the ingestion-side embedding client so queries live in
// the same vector space as the indexed chunks.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	EmbedModel() string
}

// EmbeddingCache fronts the embedder; a nil cache is valid and means no
// caching.
type EmbeddingCache interface {
	Get(ctx context.Context, model, text string) []float32
	Set(ctx context.Context, model, text string, vec []float32)
}

// Coordinator fuses the three retrievers into one context. Vector search is
// load-bearing; relational and graph lookups degrade gracefully.
type Coordinator struct {
	log        *logger.Logger
	embedder   Embedder
	cache      EmbeddingCache
	vector     stores.VectorRetriever
	relational stores.RelationalRetriever
	graph      stores.GraphRetriever
}

func New(log *logger.Logger, embedder Embedder, cache EmbeddingCache, vector stores.VectorRetriever, relational stores.RelationalRetriever, graph stores.GraphRetriever) *Coordinator {
	return &Coordinator{
		log:        log.With("service", "ContextFusionCoordinator"),
		embedder:   embedder,
		cache:      cache,
		vector:     vector,
		relational: relational,
		graph:      graph,
	}
}

// AnswerContext runs the fused retrieval for one query. Candidates without a
// relational row are dropped and counted, never returned half-populated.
func (c *Coordinator) AnswerContext(ctx context.Context, query string, topK int, filters map[string]any) (*domain.FusedContext, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrNoContext)
	}

	embedding, err := c.embedQuery(ctx, query)
	if err != nil {
		c.log.Error("query embedding failed", "error", err)
		return nil, fmt.Errorf("%w: embedding failed", ErrNoContext)
	}

	matches, err := c.vector.Search(ctx, embedding, topK, filters)
	if err != nil {
		c.log.Error("vector search failed", "error", err)
		return nil, fmt.Errorf("%w: vector search failed", ErrNoContext)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no matches", ErrNoContext)
	}

	fused := &domain.FusedContext{Query: query}

	candidateIDs := make([]uuid.UUID, len(matches))
	scoreByID := make(map[uuid.UUID]float64, len(matches))
	for i, m := range matches {
		candidateIDs[i] = m.ChunkUUID
		scoreByID[m.ChunkUUID] = m.Score
	}

	// One batched lookup for all candidates. A relational outage degrades to
	// a vector-only context rather than failing the query.
	chunks, err := c.relational.GetByUUIDs(ctx, candidateIDs)
	resolvedIDs := candidateIDs
	if err != nil {
		c.log.Warn("relational lookup failed, returning vector-only context", "error", err)
		fused.DegradedSources = append(fused.DegradedSources, "relational")
		for _, m := range matches {
			fused.Chunks = append(fused.Chunks, domain.ScoredChunk{
				Chunk: domain.Chunk{ChunkUUID: m.ChunkUUID},
				Score: m.Score,
			})
		}
	} else {
		byID := make(map[uuid.UUID]domain.Chunk, len(chunks))
		for _, chunk := range chunks {
			byID[chunk.ChunkUUID] = chunk
		}
		resolvedIDs = resolvedIDs[:0]
		for _, id := range candidateIDs {
			chunk, ok := byID[id]
			if !ok {
				fused.DroppedDangling++
				c.log.Warn("dropping dangling vector candidate", "chunk_uuid", id)
				continue
			}
			fused.Chunks = append(fused.Chunks, domain.ScoredChunk{Chunk: chunk, Score: scoreByID[id]})
			resolvedIDs = append(resolvedIDs, id)
		}
		if len(fused.Chunks) == 0 {
			return nil, fmt.Errorf("%w: all candidates dangling", ErrNoContext)
		}
	}

	entities, relationships, err := c.graph.GetEntitiesAndRelationships(ctx, resolvedIDs)
	if err != nil {
		c.log.Warn("graph lookup failed, context degraded", "error", err)
		fused.DegradedSources = append(fused.DegradedSources, "graph")
	} else {
		fused.Entities = entities
		fused.Relationships = relationships
	}

	fused.Provenance = buildProvenance(fused.Chunks)
	return fused, nil
}

func (c *Coordinator) embedQuery(ctx context.Context, query string) ([]float32, error) {
	model := c.embedder.EmbedModel()
	if c.cache != nil {
		if vec := c.cache.Get(ctx, model, query); len(vec) > 0 {
			return vec, nil
		}
	}
	vectors, err := c.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("fusion: embedder returned %d vectors for one query", len(vectors))
	}
	if c.cache != nil {
		c.cache.Set(ctx, model, query, vectors[0])
	}
	return vectors[0], nil
}

// buildProvenance aggregates chunk counts per source, in first-seen order so
// the citation list follows relevance.
func buildProvenance(chunks []domain.ScoredChunk) []domain.Provenance {
	type source struct {
		typ domain.SourceType
		id  string
	}
	index := map[source]int{}
	var out []domain.Provenance
	for _, sc := range chunks {
		if sc.Chunk.SourceType == "" && sc.Chunk.SourceIdentifier == "" {
			continue
		}
		key := source{typ: sc.Chunk.SourceType, id: sc.Chunk.SourceIdentifier}
		if i, ok := index[key]; ok {
			out[i].ChunkCount++
			continue
		}
		index[key] = len(out)
		out = append(out, domain.Provenance{
			SourceType:       sc.Chunk.SourceType,
			SourceIdentifier: sc.Chunk.SourceIdentifier,
			ChunkCount:       1,
		})
	}
	return out
}
