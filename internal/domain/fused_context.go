package domain

// ScoredChunk pairs a chunk with the vector similarity score that surfaced it.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Provenance is the per-source citation attached to a fused context.
type Provenance struct {
	SourceType       SourceType
	SourceIdentifier string
	ChunkCount       int
}

// FusedContext is the read-path output: similarity-ranked chunks joined with
// their relational metadata and graph neighborhood. Created fresh per query,
// never persisted.
type FusedContext struct {
	Query         string
	Chunks        []ScoredChunk
	Entities      []Entity
	Relationships []Relationship
	Provenance    []Provenance

	// DegradedSources names stores that failed during fusion; the context is
	// still usable but the caller should surface the degradation.
	DegradedSources []string
	// DroppedDangling counts vector candidates with no relational row.
	DroppedDangling int
}

func (f *FusedContext) Degraded() bool {
	return len(f.DegradedSources) > 0
}
