package relational

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
)

// ChunkRow is the relational projection of a chunk. The chunk UUID is the
// primary key, never a serial id, so the row joins directly against the
// vector point and the graph node carrying the same UUID.
type ChunkRow struct {
	ChunkUUID        uuid.UUID      `gorm:"type:uuid;primaryKey;column:chunk_uuid" json:"chunk_uuid"`
	SourceType       string         `gorm:"column:source_type;not null;index" json:"source_type"`
	SourceIdentifier string         `gorm:"column:source_identifier;not null;index" json:"source_identifier"`
	SequenceIndex    int            `gorm:"column:sequence_index;not null" json:"sequence_index"`
	Text             string         `gorm:"column:text;not null" json:"text"`
	TextSummary      string         `gorm:"column:text_summary" json:"text_summary"`
	Metadata         datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	ContentHash      string         `gorm:"column:content_hash;not null" json:"content_hash"`
	IngestedAt       time.Time      `gorm:"column:ingested_at;not null;index" json:"ingested_at"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ChunkRow) TableName() string {
	return "document_chunk"
}

func rowFromChunk(c domain.Chunk) (ChunkRow, error) {
	if c.ChunkUUID == uuid.Nil {
		return ChunkRow{}, fmt.Errorf("chunk uuid missing")
	}
	var metadata datatypes.JSON
	if len(c.Metadata) > 0 {
		raw, err := json.Marshal(c.Metadata)
		if err != nil {
			return ChunkRow{}, fmt.Errorf("encode metadata: %w", err)
		}
		metadata = datatypes.JSON(raw)
	}
	return ChunkRow{
		ChunkUUID:        c.ChunkUUID,
		SourceType:       string(c.SourceType),
		SourceIdentifier: c.SourceIdentifier,
		SequenceIndex:    c.SequenceIndex,
		Text:             c.Text,
		TextSummary:      c.TextSummary,
		Metadata:         metadata,
		ContentHash:      c.ContentHash,
		IngestedAt:       c.IngestedAt.UTC(),
	}, nil
}

func (r ChunkRow) toChunk() domain.Chunk {
	var metadata map[string]any
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &metadata)
	}
	return domain.Chunk{
		ChunkUUID:        r.ChunkUUID,
		SourceType:       domain.SourceType(r.SourceType),
		SourceIdentifier: r.SourceIdentifier,
		SequenceIndex:    r.SequenceIndex,
		Text:             r.Text,
		TextSummary:      r.TextSummary,
		Metadata:         metadata,
		ContentHash:      r.ContentHash,
		IngestedAt:       r.IngestedAt,
	}
}
