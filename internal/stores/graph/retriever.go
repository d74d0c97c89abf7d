package graph

import (
	"context"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
)

// Retriever reads the entity neighborhood of a set of chunks: every entity
// mentioned by one of the chunks, plus every relationship whose endpoints are
// both in that entity set and whose provenance intersects the chunks. Edges
// those chunks never evidenced stay out of the answer even when both
// endpoints happen to be mentioned.
type Retriever struct {
	m *Manager
}

const mentionedEntitiesQuery = `
MATCH (c:Chunk)-[:MENTIONS]->(e:Entity)
WHERE c.chunk_uuid IN $ids
RETURN DISTINCT e.id AS id, e.name AS name, e.type AS type, e.source_chunks AS source_chunks
`

const evidencedRelationshipsQuery = `
MATCH (a:Entity)-[r:RELATES_TO]->(b:Entity)
WHERE a.id IN $entity_ids AND b.id IN $entity_ids
  AND any(x IN r.source_chunks WHERE x IN $ids)
RETURN a.id AS from_id, b.id AS to_id, r.type AS type, r.confidence AS confidence, r.source_chunks AS source_chunks
`

func (r *Retriever) GetEntitiesAndRelationships(ctx context.Context, chunkUUIDs []uuid.UUID) ([]domain.Entity, []domain.Relationship, error) {
	if err := r.m.lc.RequireReady(); err != nil {
		return nil, nil, err
	}
	if len(chunkUUIDs) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, len(chunkUUIDs))
	for i, id := range chunkUUIDs {
		ids[i] = id.String()
	}

	session := r.m.session(ctx)
	defer session.Close(ctx)

	type graphResult struct {
		entities      []domain.Entity
		relationships []domain.Relationship
	}

	result, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (graphResult, error) {
		var out graphResult

		res, err := tx.Run(ctx, mentionedEntitiesQuery, map[string]any{"ids": ids})
		if err != nil {
			return out, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return out, err
		}
		entityIDs := make([]string, 0, len(records))
		for _, record := range records {
			entity, ok := entityFromRecord(record)
			if !ok {
				continue
			}
			out.entities = append(out.entities, entity)
			entityIDs = append(entityIDs, entity.EntityID.String())
		}
		if len(entityIDs) == 0 {
			return out, nil
		}

		res, err = tx.Run(ctx, evidencedRelationshipsQuery, map[string]any{"entity_ids": entityIDs, "ids": ids})
		if err != nil {
			return out, err
		}
		records, err = res.Collect(ctx)
		if err != nil {
			return out, err
		}
		for _, record := range records {
			if rel, ok := relationshipFromRecord(record); ok {
				out.relationships = append(out.relationships, rel)
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, nil, classifyNeoError("graph/get_neighborhood", err)
	}
	return result.entities, result.relationships, nil
}

func entityFromRecord(record *neo4j.Record) (domain.Entity, bool) {
	idRaw, _ := record.Get("id")
	idStr, _ := idRaw.(string)
	id, err := uuid.Parse(idStr)
	if err != nil {
		return domain.Entity{}, false
	}
	nameRaw, _ := record.Get("name")
	name, _ := nameRaw.(string)
	typeRaw, _ := record.Get("type")
	typeStr, _ := typeRaw.(string)
	sourcesRaw, _ := record.Get("source_chunks")
	return domain.Entity{
		EntityID:     id,
		Name:         name,
		Type:         domain.EntityType(typeStr),
		SourceChunks: uuidList(sourcesRaw),
	}, true
}

func relationshipFromRecord(record *neo4j.Record) (domain.Relationship, bool) {
	fromRaw, _ := record.Get("from_id")
	fromStr, _ := fromRaw.(string)
	fromID, err := uuid.Parse(fromStr)
	if err != nil {
		return domain.Relationship{}, false
	}
	toRaw, _ := record.Get("to_id")
	toStr, _ := toRaw.(string)
	toID, err := uuid.Parse(toStr)
	if err != nil {
		return domain.Relationship{}, false
	}
	typeRaw, _ := record.Get("type")
	relType, _ := typeRaw.(string)
	confRaw, _ := record.Get("confidence")
	confidence, _ := confRaw.(float64)
	sourcesRaw, _ := record.Get("source_chunks")
	return domain.Relationship{
		FromEntityID:     fromID,
		ToEntityID:       toID,
		RelationshipType: relType,
		Confidence:       confidence,
		SourceChunks:     uuidList(sourcesRaw),
	}, true
}

func uuidList(raw any) []uuid.UUID {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}
