package relational

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

// Retriever reads chunk rows back by primary key. Missing UUIDs are simply
// absent from the result; the fusion layer decides what a miss means.
type Retriever struct {
	m *Manager
}

func (r *Retriever) GetByUUIDs(ctx context.Context, chunkUUIDs []uuid.UUID) ([]domain.Chunk, error) {
	if err := r.m.lc.RequireReady(); err != nil {
		return nil, err
	}
	if len(chunkUUIDs) == 0 {
		return nil, nil
	}

	var rows []ChunkRow
	err := r.m.db.WithContext(ctx).
		Where("chunk_uuid IN ?", chunkUUIDs).
		Find(&rows).Error
	if err != nil {
		return nil, classifyDBError("relational/get_by_uuids", err)
	}

	// Preserve the caller's ordering, which carries relevance ranking.
	byID := make(map[uuid.UUID]ChunkRow, len(rows))
	for _, row := range rows {
		byID[row.ChunkUUID] = row
	}
	chunks := make([]domain.Chunk, 0, len(rows))
	for _, id := range chunkUUIDs {
		if row, ok := byID[id]; ok {
			chunks = append(chunks, row.toChunk())
		}
	}
	return chunks, nil
}

// GetWithContext returns the chunk plus its neighbors within the given
// sequence window, ordered by sequence index.
func (r *Retriever) GetWithContext(ctx context.Context, chunkUUID uuid.UUID, window int) ([]domain.Chunk, error) {
	if err := r.m.lc.RequireReady(); err != nil {
		return nil, err
	}
	if window < 0 {
		return nil, &stores.ValidationError{Item: chunkUUID.String(), Message: "context window must be non-negative"}
	}

	var anchor ChunkRow
	err := r.m.db.WithContext(ctx).
		Where("chunk_uuid = ?", chunkUUID).
		First(&anchor).Error
	if err != nil {
		return nil, classifyDBError("relational/get_anchor", err)
	}

	if window == 0 {
		return []domain.Chunk{anchor.toChunk()}, nil
	}

	low := anchor.SequenceIndex - window
	if low < 0 {
		low = 0
	}
	var rows []ChunkRow
	err = r.m.db.WithContext(ctx).
		Where("source_type = ? AND source_identifier = ? AND sequence_index BETWEEN ? AND ?",
			anchor.SourceType, anchor.SourceIdentifier, low, anchor.SequenceIndex+window).
		Order("sequence_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, classifyDBError("relational/get_window", err)
	}

	chunks := make([]domain.Chunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, row.toChunk())
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("relational: window query returned no rows for %s", chunkUUID)
	}
	return chunks, nil
}
