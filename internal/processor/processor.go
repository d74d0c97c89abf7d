package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
)

const (
	// Rough chars-per-token ratio used to enforce the embedding model's
	// token ceiling without pulling in a tokenizer.
	charsPerToken = 4

	summaryMaxLen = 200
)

// Options controls one processing invocation.
type Options struct {
	ChunkSize       int
	ChunkOverlap    int
	MaxChunkTokens  int
	ExtractEntities bool
}

func (o Options) validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("processor: chunk size must be positive, got %d", o.ChunkSize)
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		return fmt.Errorf("processor: overlap %d must be in [0, chunk size %d)", o.ChunkOverlap, o.ChunkSize)
	}
	return nil
}

// Result is everything the pipeline fans out to the stores.
type Result struct {
	Chunks        []domain.Chunk
	Entities      []domain.Entity
	Relationships []domain.Relationship
}

// Processor splits raw documents into overlapping chunks and optionally
// extracts entities and relationships. Chunk identity is deterministic, so
// processing the same document twice yields the same chunk UUID set.
type Processor struct {
	log       *logger.Logger
	extractor Extractor
}

func New(log *logger.Logger, extractor Extractor) *Processor {
	return &Processor{
		log:       log.With("service", "TextProcessor"),
		extractor: extractor,
	}
}

// Process cleans, splits and enriches one document. A document whose text
// cannot be cleaned into anything usable fails as a whole; no partial,
// unflagged chunks are emitted.
func (p *Processor) Process(ctx context.Context, doc domain.Document, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	if !doc.SourceType.Valid() {
		return Result{}, fmt.Errorf("processor: document %q has invalid source type %q", doc.SourceIdentifier, doc.SourceType)
	}

	cleaned := Clean(doc.RawText)
	if strings.TrimSpace(cleaned) == "" {
		return Result{}, fmt.Errorf("processor: document %q has no usable text after cleaning", doc.SourceIdentifier)
	}

	pieces := split(cleaned, opts.ChunkSize, opts.ChunkOverlap, opts.MaxChunkTokens)
	now := time.Now().UTC()

	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, text := range pieces {
		chunks = append(chunks, domain.Chunk{
			ChunkUUID:        domain.NewChunkUUID(doc.SourceType, doc.SourceIdentifier, i),
			SourceType:       doc.SourceType,
			SourceIdentifier: doc.SourceIdentifier,
			SequenceIndex:    i,
			Text:             text,
			TextSummary:      summarize(text, summaryMaxLen),
			Metadata: map[string]any{
				"retrieved_at": doc.RetrievedAt.UTC().Format(time.RFC3339),
			},
			ContentHash: domain.HashContent(text),
			IngestedAt:  now,
		})
	}

	result := Result{Chunks: chunks}
	if opts.ExtractEntities && p.extractor != nil {
		entities, relationships := p.extract(ctx, chunks)
		result.Entities = entities
		result.Relationships = relationships
	}
	return result, nil
}

// split cuts cleaned text into overlapping windows, preferring sentence
// boundaries and falling back to a hard cut when no boundary exists inside
// the window. Size and overlap are measured in runes, never bytes, so
// multi-byte text is never sliced mid-character. The window is capped so no
// chunk exceeds the token ceiling; an oversized window is hard-split rather
// than truncated.
func split(text string, chunkSize, overlap, maxTokens int) []string {
	if maxTokens > 0 && chunkSize > maxTokens*charsPerToken {
		chunkSize = maxTokens * charsPerToken
		if overlap >= chunkSize {
			overlap = chunkSize / 4
		}
	}
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var out []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		if b := lastSentenceBoundary(runes[start:end]); b > overlap {
			end = start + b
		}
		out = append(out, string(runes[start:end]))
		start = end - overlap
	}
	return out
}

// lastSentenceBoundary returns the index just past the last sentence-ending
// rune in window, or -1 when the window holds no boundary.
func lastSentenceBoundary(window []rune) int {
	for i := len(window) - 1; i > 0; i-- {
		c := window[i]
		if c == '\n' {
			return i + 1
		}
		if c == '.' || c == '!' || c == '?' {
			// Require trailing whitespace or end so "3.14" stays intact.
			if i == len(window)-1 || window[i+1] == ' ' || window[i+1] == '\n' || window[i+1] == '\t' {
				return i + 1
			}
		}
	}
	return -1
}
