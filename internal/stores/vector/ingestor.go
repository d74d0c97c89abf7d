package vector

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

// Ingestor writes chunk embeddings into Qdrant. Point IDs are the chunk
// UUIDs themselves, so the cross-store join key survives untouched.
type Ingestor struct {
	m *Manager
}

// IngestBatch embeds and upserts chunks. Replace mode upserts on the
// deterministic point IDs and then prunes points of the batch's sources that
// this run no longer produced; overwrite mode deletes every point scoped to
// the batch's sources before writing. Sub-batch failures are recorded, not
// propagated.
func (in *Ingestor) IngestBatch(ctx context.Context, chunks []domain.Chunk, mode stores.IngestMode) (domain.IngestionBatchResult, error) {
	if err := in.m.lc.RequireReady(); err != nil {
		return domain.IngestionBatchResult{}, err
	}
	if !mode.Valid() {
		return domain.IngestionBatchResult{}, fmt.Errorf("vector: invalid ingest mode %q", mode)
	}

	if mode == stores.ModeOverwrite {
		if err := in.clearSources(ctx, chunks); err != nil {
			return domain.IngestionBatchResult{}, err
		}
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkUUID.String()
	}

	result := in.m.policy.Run(ctx, ids, func(ctx context.Context, offset int, batch []string) error {
		return in.upsertSubBatch(ctx, chunks[offset:offset+len(batch)])
	})

	// Prune only after a fully successful run: a failed sub-batch means the
	// new state is incomplete and the prior points are still the best copy.
	if mode == stores.ModeReplace && result.Failed == 0 {
		if err := in.pruneSuperseded(ctx, chunks); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (in *Ingestor) upsertSubBatch(ctx context.Context, chunks []domain.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		if c.ChunkUUID == uuid.Nil {
			return &stores.ValidationError{Item: c.SourceIdentifier, Message: "chunk uuid missing"}
		}
		texts[i] = c.Text
	}

	vectors, err := in.m.embedder.Embed(ctx, texts)
	if err != nil {
		return &stores.TransientError{Op: "vector/embed", Cause: err}
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("vector: embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	points := make([]map[string]any, 0, len(chunks))
	for i, c := range chunks {
		if in.m.cfg.VectorDim > 0 && len(vectors[i]) != in.m.cfg.VectorDim {
			return &stores.ValidationError{
				Item:    c.ChunkUUID.String(),
				Message: fmt.Sprintf("embedding dimension mismatch: expected=%d got=%d", in.m.cfg.VectorDim, len(vectors[i])),
			}
		}
		points = append(points, map[string]any{
			"id":      c.ChunkUUID.String(),
			"vector":  vectors[i],
			"payload": pointPayload(c),
		})
	}

	return in.m.doJSON(ctx, "upsert", http.MethodPut, in.m.collectionPath("/points?wait=true"), map[string]any{
		"points": points,
	}, nil)
}

// clearSources deletes all points belonging to the distinct sources present
// in the batch. Used by overwrite mode before any write happens.
func (in *Ingestor) clearSources(ctx context.Context, chunks []domain.Chunk) error {
	type source struct {
		typ string
		id  string
	}
	seen := map[source]struct{}{}
	for _, c := range chunks {
		seen[source{typ: string(c.SourceType), id: c.SourceIdentifier}] = struct{}{}
	}

	for s := range seen {
		filter := map[string]any{
			"must": []any{
				map[string]any{"key": "source_type", "match": map[string]any{"value": s.typ}},
				map[string]any{"key": "source_identifier", "match": map[string]any{"value": s.id}},
			},
		}
		err := in.m.doJSON(ctx, "delete_by_source", http.MethodPost, in.m.collectionPath("/points/delete?wait=true"), map[string]any{
			"filter": filter,
		}, nil)
		if err != nil {
			return fmt.Errorf("vector: overwrite clear for %s/%s: %w", s.typ, s.id, err)
		}
		in.m.log.Info("cleared vector points for source", "source_type", s.typ, "source_identifier", s.id)
	}
	return nil
}

func pointPayload(c domain.Chunk) map[string]any {
	payload := map[string]any{
		"chunk_uuid":        c.ChunkUUID.String(),
		"source_type":       string(c.SourceType),
		"source_identifier": c.SourceIdentifier,
		"sequence_index":    c.SequenceIndex,
		"content_hash":      c.ContentHash,
		"ingested_at":       c.IngestedAt.UTC().Unix(),
	}
	if tags, ok := c.Metadata["tags"]; ok {
		payload["tags"] = tags
	}
	return payload
}

// pruneSuperseded deletes, per source in the batch, every point that the run
// did not produce. A source that shrank between runs would otherwise keep its
// trailing points forever, since replace mode only ever upserts in place.
func (in *Ingestor) pruneSuperseded(ctx context.Context, chunks []domain.Chunk) error {
	for s, keep := range stores.GroupBySource(chunks) {
		ids := make([]string, len(keep))
		for i, id := range keep {
			ids[i] = id.String()
		}
		filter := map[string]any{
			"must": []any{
				map[string]any{"key": "source_type", "match": map[string]any{"value": string(s.Type)}},
				map[string]any{"key": "source_identifier", "match": map[string]any{"value": s.Identifier}},
			},
			"must_not": []any{
				map[string]any{"has_id": ids},
			},
		}
		err := in.m.doJSON(ctx, "prune_superseded", http.MethodPost, in.m.collectionPath("/points/delete?wait=true"), map[string]any{
			"filter": filter,
		}, nil)
		if err != nil {
			return fmt.Errorf("vector: prune superseded points for %s/%s: %w", s.Type, s.Identifier, err)
		}
	}
	return nil
}
