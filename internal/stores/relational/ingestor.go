package relational

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

// Ingestor writes chunk rows. Replace mode upserts on the chunk UUID, skips
// rows whose stored content hash already matches, and finally prunes rows of
// the batch's sources that this run no longer produced. Overwrite mode
// deletes every row for the batch's sources first.
type Ingestor struct {
	m *Manager
}

func (in *Ingestor) IngestBatch(ctx context.Context, chunks []domain.Chunk, mode stores.IngestMode) (domain.IngestionBatchResult, error) {
	if err := in.m.lc.RequireReady(); err != nil {
		return domain.IngestionBatchResult{}, err
	}
	if !mode.Valid() {
		return domain.IngestionBatchResult{}, fmt.Errorf("relational: invalid ingest mode %q", mode)
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
		return in.upsertSubBatch(ctx, chunks[offset:offset+len(batch)], mode)
	})

	// Prune only after a fully successful run, so a partial failure never
	// discards rows the new state failed to rewrite.
	if mode == stores.ModeReplace && result.Failed == 0 {
		if err := in.pruneSuperseded(ctx, chunks); err != nil {
			return result, err
		}
	}
	return result, nil
}

// pruneSuperseded deletes, per source in the batch, every row whose chunk
// UUID was not produced by this run. This is how a source that shrank between
// runs sheds its trailing rows.
func (in *Ingestor) pruneSuperseded(ctx context.Context, chunks []domain.Chunk) error {
	for s, keep := range stores.GroupBySource(chunks) {
		err := in.m.db.WithContext(ctx).
			Where("source_type = ? AND source_identifier = ? AND chunk_uuid NOT IN ?", string(s.Type), s.Identifier, keep).
			Delete(&ChunkRow{}).Error
		if err != nil {
			return classifyDBError("relational/prune_superseded", err)
		}
	}
	return nil
}

func (in *Ingestor) upsertSubBatch(ctx context.Context, chunks []domain.Chunk, mode stores.IngestMode) error {
	rows := make([]ChunkRow, 0, len(chunks))
	for _, c := range chunks {
		row, err := rowFromChunk(c)
		if err != nil {
			return &stores.ValidationError{Item: c.ChunkUUID.String(), Message: err.Error()}
		}
		rows = append(rows, row)
	}

	if mode == stores.ModeReplace {
		unchanged, err := in.unchangedHashes(ctx, rows)
		if err != nil {
			return classifyDBError("relational/select_hashes", err)
		}
		if len(unchanged) > 0 {
			kept := rows[:0]
			for _, row := range rows {
				if unchanged[row.ChunkUUID] != row.ContentHash {
					kept = append(kept, row)
				}
			}
			rows = kept
		}
	}
	if len(rows) == 0 {
		return nil
	}

	err := in.m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chunk_uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_type",
			"source_identifier",
			"sequence_index",
			"text",
			"text_summary",
			"metadata",
			"content_hash",
			"ingested_at",
			"updated_at",
		}),
	}).Create(&rows).Error
	if err != nil {
		return classifyDBError("relational/upsert", err)
	}
	return nil
}

// unchangedHashes returns the stored content hash for every row in the batch
// that already exists.
func (in *Ingestor) unchangedHashes(ctx context.Context, rows []ChunkRow) (map[uuid.UUID]string, error) {
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ChunkUUID
	}
	type hashRow struct {
		ChunkUUID   uuid.UUID
		ContentHash string
	}
	var existing []hashRow
	err := in.m.db.WithContext(ctx).Model(&ChunkRow{}).
		Select("chunk_uuid, content_hash").
		Where("chunk_uuid IN ?", ids).
		Scan(&existing).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]string, len(existing))
	for _, h := range existing {
		out[h.ChunkUUID] = h.ContentHash
	}
	return out, nil
}

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
		err := in.m.db.WithContext(ctx).
			Where("source_type = ? AND source_identifier = ?", s.typ, s.id).
			Delete(&ChunkRow{}).Error
		if err != nil {
			return fmt.Errorf("relational: overwrite clear for %s/%s: %w", s.typ, s.id, err)
		}
		in.m.log.Info("cleared chunk rows for source", "source_type", s.typ, "source_identifier", s.id)
	}
	return nil
}

// classifyDBError keeps retryable failures retryable. Timeouts and dropped
// connections become transient; everything else surfaces as-is so constraint
// violations are not retried.
func classifyDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == gorm.ErrInvalidDB {
		return err
	}
	if stores.IsTransient(err) {
		return &stores.TransientError{Op: op, Cause: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
