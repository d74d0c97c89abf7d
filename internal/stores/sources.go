package stores

import (
	"github.com/google/uuid"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
)

// Source identifies one connector target inside a batch.
type Source struct {
	Type       domain.SourceType
	Identifier string
}

// GroupBySource maps each distinct source in a batch to the chunk UUIDs the
// batch produced for it. Replace mode uses the per-source UUID lists to prune
// previously stored chunks that the source no longer yields, since upserting
// in place never touches stale trailing chunks.
func GroupBySource(chunks []domain.Chunk) map[Source][]uuid.UUID {
	out := make(map[Source][]uuid.UUID)
	for _, c := range chunks {
		s := Source{Type: c.SourceType, Identifier: c.SourceIdentifier}
		out[s] = append(out[s], c.ChunkUUID)
	}
	return out
}
