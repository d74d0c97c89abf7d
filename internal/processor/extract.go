package processor

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
)

// ExtractedEntity is one raw extractor hit; Label is free-form and gets
// normalized into the closed entity type enumeration.
type ExtractedEntity struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

type ExtractedRelationship struct {
	FromName   string  `json:"from"`
	ToName     string  `json:"to"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type Extraction struct {
	Entities      []ExtractedEntity      `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// Extractor pulls named entities and relationships out of one chunk of text.
type Extractor interface {
	Extract(ctx context.Context, text string) (Extraction, error)
}

// extract runs the extractor over every chunk and merges hits. Entity IDs are
// deterministic from normalized name and type, so the same entity seen in
// several chunks accumulates source chunks instead of duplicating. Edges
// whose endpoints were not extracted as entities are dropped.
func (p *Processor) extract(ctx context.Context, chunks []domain.Chunk) ([]domain.Entity, []domain.Relationship) {
	entityByID := map[uuid.UUID]*domain.Entity{}
	entityIDByName := map[string]uuid.UUID{}
	relByKey := map[string]*domain.Relationship{}

	for _, chunk := range chunks {
		extraction, err := p.extractor.Extract(ctx, chunk.Text)
		if err != nil {
			p.log.Warn("entity extraction failed for chunk; continuing without it",
				"chunk_uuid", chunk.ChunkUUID,
				"source_identifier", chunk.SourceIdentifier,
				"error", err,
			)
			continue
		}

		for _, raw := range extraction.Entities {
			ent, err := domain.NewEntity(raw.Name, domain.NormalizeEntityType(raw.Label), chunk.ChunkUUID)
			if err != nil {
				p.log.Debug("skipping invalid extracted entity", "name", raw.Name, "error", err)
				continue
			}
			if existing, ok := entityByID[ent.EntityID]; ok {
				existing.SourceChunks = appendUnique(existing.SourceChunks, chunk.ChunkUUID)
			} else {
				e := ent
				entityByID[e.EntityID] = &e
			}
			entityIDByName[strings.ToLower(strings.TrimSpace(raw.Name))] = ent.EntityID
		}

		for _, raw := range extraction.Relationships {
			fromID, okFrom := entityIDByName[strings.ToLower(strings.TrimSpace(raw.FromName))]
			toID, okTo := entityIDByName[strings.ToLower(strings.TrimSpace(raw.ToName))]
			if !okFrom || !okTo {
				p.log.Debug("dropping relationship with unknown endpoint",
					"from", raw.FromName, "to", raw.ToName, "type", raw.Type)
				continue
			}
			rel := domain.Relationship{
				FromEntityID:     fromID,
				ToEntityID:       toID,
				RelationshipType: strings.ToLower(strings.TrimSpace(raw.Type)),
				SourceChunks:     []uuid.UUID{chunk.ChunkUUID},
				Confidence:       clamp01(raw.Confidence),
			}
			if err := rel.Validate(); err != nil {
				p.log.Debug("skipping invalid extracted relationship", "error", err)
				continue
			}
			key := fromID.String() + "|" + rel.RelationshipType + "|" + toID.String()
			if existing, ok := relByKey[key]; ok {
				existing.SourceChunks = appendUnique(existing.SourceChunks, chunk.ChunkUUID)
				if rel.Confidence > existing.Confidence {
					existing.Confidence = rel.Confidence
				}
			} else {
				r := rel
				relByKey[key] = &r
			}
		}
	}

	entities := make([]domain.Entity, 0, len(entityByID))
	for _, e := range entityByID {
		entities = append(entities, *e)
	}
	relationships := make([]domain.Relationship, 0, len(relByKey))
	for _, r := range relByKey {
		relationships = append(relationships, *r)
	}
	return entities, relationships
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
