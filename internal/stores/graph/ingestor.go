package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

// Ingestor writes chunk nodes plus the extracted entity/relationship graph.
// Chunk nodes merge on chunk_uuid, entity nodes on their deterministic id, so
// re-ingestion converges instead of duplicating. Entities are written before
// the relationships that reference them, inside one transaction per sub-batch.
type Ingestor struct {
	m *Manager
}

func (in *Ingestor) IngestBatch(ctx context.Context, chunks []domain.Chunk, mode stores.IngestMode) (domain.IngestionBatchResult, error) {
	if err := in.m.lc.RequireReady(); err != nil {
		return domain.IngestionBatchResult{}, err
	}
	if !mode.Valid() {
		return domain.IngestionBatchResult{}, fmt.Errorf("graph: invalid ingest mode %q", mode)
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
		return in.upsertChunkNodes(ctx, chunks[offset:offset+len(batch)])
	})

	// Prune only after a fully successful run, so a partial failure never
	// removes chunk nodes the new state failed to rewrite.
	if mode == stores.ModeReplace && result.Failed == 0 {
		if err := in.pruneSuperseded(ctx, chunks); err != nil {
			return result, err
		}
	}
	return result, nil
}

// pruneSuperseded detach-deletes, per source in the batch, every chunk node
// this run did not produce, then removes entities left without any mention.
func (in *Ingestor) pruneSuperseded(ctx context.Context, chunks []domain.Chunk) error {
	session := in.m.session(ctx)
	defer session.Close(ctx)

	for s, keep := range stores.GroupBySource(chunks) {
		ids := make([]string, len(keep))
		for i, id := range keep {
			ids[i] = id.String()
		}
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, `
MATCH (c:Chunk {source_type: $source_type, source_identifier: $source_identifier})
WHERE NOT c.chunk_uuid IN $keep
DETACH DELETE c
`, map[string]any{"source_type": string(s.Type), "source_identifier": s.Identifier, "keep": ids})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}

			res, err = tx.Run(ctx, `
MATCH (e:Entity)
WHERE NOT (:Chunk)-[:MENTIONS]->(e)
DETACH DELETE e
`, nil)
			if err != nil {
				return nil, err
			}
			_, err = res.Consume(ctx)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("graph: prune superseded chunks for %s/%s: %w", s.Type, s.Identifier, err)
		}
	}
	return nil
}

func (in *Ingestor) upsertChunkNodes(ctx context.Context, chunks []domain.Chunk) error {
	nodes := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		nodes = append(nodes, map[string]any{
			"chunk_uuid":        c.ChunkUUID.String(),
			"source_type":       string(c.SourceType),
			"source_identifier": c.SourceIdentifier,
			"sequence_index":    c.SequenceIndex,
			"content_hash":      c.ContentHash,
			"ingested_at":       c.IngestedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	session := in.m.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $chunks AS ch
MERGE (c:Chunk {chunk_uuid: ch.chunk_uuid})
SET c += ch
`, map[string]any{"chunks": nodes})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return classifyNeoError("graph/upsert_chunks", err)
}

// IngestGraph writes entities and their relationships. It is a separate call
// from IngestBatch because extraction happens once per document while chunk
// writes happen per store. Ordering inside the transaction guarantees no
// relationship ever references a missing entity node.
func (in *Ingestor) IngestGraph(ctx context.Context, entities []domain.Entity, relationships []domain.Relationship) error {
	if err := in.m.lc.RequireReady(); err != nil {
		return err
	}
	if len(entities) == 0 && len(relationships) == 0 {
		return nil
	}

	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return &stores.ValidationError{Item: e.Name, Message: err.Error()}
		}
	}
	for _, r := range relationships {
		if err := r.Validate(); err != nil {
			return &stores.ValidationError{Item: r.RelationshipType, Message: err.Error()}
		}
	}

	entityRows := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		sources := make([]string, 0, len(e.SourceChunks))
		for _, id := range e.SourceChunks {
			sources = append(sources, id.String())
		}
		entityRows = append(entityRows, map[string]any{
			"id":            e.EntityID.String(),
			"name":          e.Name,
			"type":          string(e.Type),
			"source_chunks": sources,
		})
	}

	relRows := make([]map[string]any, 0, len(relationships))
	for _, r := range relationships {
		sources := make([]string, 0, len(r.SourceChunks))
		for _, id := range r.SourceChunks {
			sources = append(sources, id.String())
		}
		relRows = append(relRows, map[string]any{
			"from_id":       r.FromEntityID.String(),
			"to_id":         r.ToEntityID.String(),
			"type":          r.RelationshipType,
			"confidence":    r.Confidence,
			"source_chunks": sources,
		})
	}

	session := in.m.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(entityRows) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $entities AS e
MERGE (n:Entity {id: e.id})
SET n.name = e.name,
    n.type = e.type,
    n.source_chunks = CASE
      WHEN n.source_chunks IS NULL THEN e.source_chunks
      ELSE [x IN n.source_chunks WHERE NOT x IN e.source_chunks] + e.source_chunks
    END
WITH n, e
UNWIND e.source_chunks AS chunk_uuid
MERGE (c:Chunk {chunk_uuid: chunk_uuid})
MERGE (c)-[:MENTIONS]->(n)
`, map[string]any{"entities": entityRows})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		if len(relRows) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $rels AS r
MATCH (a:Entity {id: r.from_id})
MATCH (b:Entity {id: r.to_id})
MERGE (a)-[e:RELATES_TO {type: r.type}]->(b)
SET e.confidence = CASE
      WHEN e.confidence IS NULL OR e.confidence < r.confidence THEN r.confidence
      ELSE e.confidence
    END,
    e.source_chunks = CASE
      WHEN e.source_chunks IS NULL THEN r.source_chunks
      ELSE [x IN e.source_chunks WHERE NOT x IN r.source_chunks] + r.source_chunks
    END
`, map[string]any{"rels": relRows})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return classifyNeoError("graph/upsert_graph", err)
}

// clearSources detach-deletes the chunk nodes of the batch's sources, then
// removes entities left with no mentions at all.
func (in *Ingestor) clearSources(ctx context.Context, chunks []domain.Chunk) error {
	type source struct {
		typ string
		id  string
	}
	seen := map[source]struct{}{}
	for _, c := range chunks {
		seen[source{typ: string(c.SourceType), id: c.SourceIdentifier}] = struct{}{}
	}

	session := in.m.session(ctx)
	defer session.Close(ctx)

	for s := range seen {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, `
MATCH (c:Chunk {source_type: $source_type, source_identifier: $source_identifier})
DETACH DELETE c
`, map[string]any{"source_type": s.typ, "source_identifier": s.id})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}

			res, err = tx.Run(ctx, `
MATCH (e:Entity)
WHERE NOT (:Chunk)-[:MENTIONS]->(e)
DETACH DELETE e
`, nil)
			if err != nil {
				return nil, err
			}
			_, err = res.Consume(ctx)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("graph: overwrite clear for %s/%s: %w", s.typ, s.id, err)
		}
		in.m.log.Info("cleared graph nodes for source", "source_type", s.typ, "source_identifier", s.id)
	}
	return nil
}

// classifyNeoError marks connectivity problems as transient so the batch
// policy retries them.
func classifyNeoError(op string, err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) || stores.IsTransient(err) {
		return &stores.TransientError{Op: op, Cause: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
