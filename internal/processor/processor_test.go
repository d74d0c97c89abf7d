package processor

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
)

type stubExtractor struct {
	extraction Extraction
	err        error
	calls      int
}

func (s *stubExtractor) Extract(context.Context, string) (Extraction, error) {
	s.calls++
	return s.extraction, s.err
}

func newTestProcessor(t *testing.T, ex Extractor) *Processor {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return New(log, ex)
}

func webDoc(text string) domain.Document {
	return domain.Document{
		SourceType:       domain.SourceTypeWeb,
		SourceIdentifier: "https://example.com/page",
		RawText:          text,
		RetrievedAt:      time.Now().UTC(),
	}
}

func TestCleanStripsControlCharacters(t *testing.T) {
	in := "hello\x00 world\x07 keep\tnewlines\nplease"
	want := "hello world keep\tnewlines\nplease"
	if got := Clean(in); got != want {
		t.Fatalf("Clean: want=%q got=%q", want, got)
	}
}

func TestProcessSingleChunk(t *testing.T) {
	p := newTestProcessor(t, nil)
	res, err := p.Process(context.Background(), webDoc("short text."), Options{ChunkSize: 100, ChunkOverlap: 10})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Chunks) != 1 {
		t.Fatalf("chunks: want=1 got=%d", len(res.Chunks))
	}
	c := res.Chunks[0]
	if c.Text != "short text." {
		t.Fatalf("text: got=%q", c.Text)
	}
	if c.SequenceIndex != 0 {
		t.Fatalf("sequence index: got=%d", c.SequenceIndex)
	}
	if c.ContentHash != domain.HashContent("short text.") {
		t.Fatalf("content hash mismatch")
	}
	if c.ChunkUUID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("chunk uuid not assigned")
	}
}

func TestProcessRoundTripReassembly(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&sb, "Sentence number %d has a bit of text in it. ", i)
	}
	raw := sb.String()

	p := newTestProcessor(t, nil)
	opts := Options{ChunkSize: 200, ChunkOverlap: 40}
	res, err := p.Process(context.Background(), webDoc(raw), opts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(res.Chunks))
	}

	var rebuilt strings.Builder
	for i, c := range res.Chunks {
		if c.SequenceIndex != i {
			t.Fatalf("sequence index: want=%d got=%d", i, c.SequenceIndex)
		}
		if i == 0 {
			rebuilt.WriteString(c.Text)
			continue
		}
		rebuilt.WriteString(string([]rune(c.Text)[opts.ChunkOverlap:]))
	}
	if rebuilt.String() != Clean(raw) {
		t.Fatalf("round trip failed: lengths %d vs %d", rebuilt.Len(), len(Clean(raw)))
	}
}

func TestProcessSameDocumentSameChunkUUIDs(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&sb, "Sentence number %d carries some text. ", i)
	}
	doc := webDoc(sb.String())

	p := newTestProcessor(t, nil)
	opts := Options{ChunkSize: 150, ChunkOverlap: 30}
	first, err := p.Process(context.Background(), doc, opts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	second, err := p.Process(context.Background(), doc, opts)
	if err != nil {
		t.Fatalf("Process again: %v", err)
	}
	if len(first.Chunks) != len(second.Chunks) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first.Chunks), len(second.Chunks))
	}
	for i := range first.Chunks {
		if first.Chunks[i].ChunkUUID != second.Chunks[i].ChunkUUID {
			t.Fatalf("chunk %d uuid differs across runs: %s vs %s",
				i, first.Chunks[i].ChunkUUID, second.Chunks[i].ChunkUUID)
		}
		want := domain.NewChunkUUID(doc.SourceType, doc.SourceIdentifier, i)
		if first.Chunks[i].ChunkUUID != want {
			t.Fatalf("chunk %d uuid not derived from its slot: want=%s got=%s",
				i, want, first.Chunks[i].ChunkUUID)
		}
	}
}

func TestProcessMultiByteTextNeverSplitMidRune(t *testing.T) {
	raw := strings.Repeat("模型把文本切成带有重叠的小段以便检索使用。", 30)
	p := newTestProcessor(t, nil)
	opts := Options{ChunkSize: 100, ChunkOverlap: 10}
	res, err := p.Process(context.Background(), webDoc(raw), opts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(res.Chunks))
	}
	for i, c := range res.Chunks {
		if !utf8.ValidString(c.Text) {
			t.Fatalf("chunk %d holds invalid UTF-8: %q", i, c.Text)
		}
		if n := utf8.RuneCountInString(c.Text); n > opts.ChunkSize {
			t.Fatalf("chunk %d exceeds size in runes: %d", i, n)
		}
	}

	var rebuilt strings.Builder
	for i, c := range res.Chunks {
		if i == 0 {
			rebuilt.WriteString(c.Text)
			continue
		}
		rebuilt.WriteString(string([]rune(c.Text)[opts.ChunkOverlap:]))
	}
	if rebuilt.String() != Clean(raw) {
		t.Fatalf("round trip failed for multi-byte text")
	}
}

func TestProcessChunkSizeRespected(t *testing.T) {
	raw := strings.Repeat("No boundaries here just one long run of characters ", 40)
	p := newTestProcessor(t, nil)
	res, err := p.Process(context.Background(), webDoc(raw), Options{ChunkSize: 150, ChunkOverlap: 20})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for _, c := range res.Chunks {
		if len(c.Text) > 150 {
			t.Fatalf("chunk exceeds size: len=%d", len(c.Text))
		}
	}
}

func TestProcessTokenCeilingCapsWindow(t *testing.T) {
	raw := strings.Repeat("word ", 2000)
	p := newTestProcessor(t, nil)
	// 50-token ceiling = 200 chars; requested chunk size is far larger.
	res, err := p.Process(context.Background(), webDoc(raw), Options{
		ChunkSize: 5000, ChunkOverlap: 100, MaxChunkTokens: 50,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Chunks) < 2 {
		t.Fatalf("expected hard-split into multiple chunks, got %d", len(res.Chunks))
	}
	for _, c := range res.Chunks {
		if len(c.Text) > 200 {
			t.Fatalf("chunk exceeds token ceiling: len=%d", len(c.Text))
		}
	}
}

func TestProcessRejectsBadOptions(t *testing.T) {
	p := newTestProcessor(t, nil)
	if _, err := p.Process(context.Background(), webDoc("text"), Options{ChunkSize: 100, ChunkOverlap: 100}); err == nil {
		t.Fatalf("expected error for overlap >= chunk size")
	}
	if _, err := p.Process(context.Background(), webDoc("text"), Options{ChunkSize: 0}); err == nil {
		t.Fatalf("expected error for zero chunk size")
	}
}

func TestProcessFailsEmptyDocumentWhole(t *testing.T) {
	p := newTestProcessor(t, nil)
	res, err := p.Process(context.Background(), webDoc("\x00\x01\x02"), Options{ChunkSize: 100, ChunkOverlap: 10})
	if err == nil {
		t.Fatalf("expected error for undecodable document")
	}
	if len(res.Chunks) != 0 {
		t.Fatalf("partial chunks emitted: %d", len(res.Chunks))
	}
}

func TestProcessExtractionMergesEntities(t *testing.T) {
	ex := &stubExtractor{extraction: Extraction{
		Entities: []ExtractedEntity{
			{Name: "Postgres", Label: "technology"},
			{Name: "Acme", Label: "org"},
		},
		Relationships: []ExtractedRelationship{
			{FromName: "Acme", ToName: "Postgres", Type: "USES", Confidence: 0.9},
			{FromName: "Acme", ToName: "Nowhere", Type: "USES", Confidence: 0.9},
		},
	}}
	p := newTestProcessor(t, ex)

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "Sentence %d about Acme and Postgres. ", i)
	}
	res, err := p.Process(context.Background(), webDoc(sb.String()), Options{
		ChunkSize: 120, ChunkOverlap: 20, ExtractEntities: true,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ex.calls != len(res.Chunks) {
		t.Fatalf("extractor calls: want=%d got=%d", len(res.Chunks), ex.calls)
	}

	if len(res.Entities) != 2 {
		t.Fatalf("entities: want=2 got=%d", len(res.Entities))
	}
	for _, e := range res.Entities {
		if !e.Type.Valid() {
			t.Fatalf("entity %q has invalid type %q", e.Name, e.Type)
		}
		if len(e.SourceChunks) != len(res.Chunks) {
			t.Fatalf("entity %q source chunks: want=%d got=%d", e.Name, len(res.Chunks), len(e.SourceChunks))
		}
	}

	// The edge to the never-extracted "Nowhere" endpoint must be dropped.
	if len(res.Relationships) != 1 {
		t.Fatalf("relationships: want=1 got=%d", len(res.Relationships))
	}
	if res.Relationships[0].RelationshipType != "uses" {
		t.Fatalf("relationship type: got=%q", res.Relationships[0].RelationshipType)
	}
}

func TestProcessExtractionFailureDoesNotFailDocument(t *testing.T) {
	ex := &stubExtractor{err: fmt.Errorf("model unavailable")}
	p := newTestProcessor(t, ex)
	res, err := p.Process(context.Background(), webDoc("A sentence. Another sentence."), Options{
		ChunkSize: 100, ChunkOverlap: 10, ExtractEntities: true,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Chunks) == 0 {
		t.Fatalf("expected chunks despite extraction failure")
	}
	if len(res.Entities) != 0 {
		t.Fatalf("expected no entities, got %d", len(res.Entities))
	}
}

func TestProcessUnknownLabelFallsBack(t *testing.T) {
	ex := &stubExtractor{extraction: Extraction{
		Entities: []ExtractedEntity{{Name: "Widget", Label: "gizmo-category"}},
	}}
	p := newTestProcessor(t, ex)
	res, err := p.Process(context.Background(), webDoc("Widget text."), Options{
		ChunkSize: 100, ChunkOverlap: 10, ExtractEntities: true,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Entities) != 1 {
		t.Fatalf("entities: want=1 got=%d", len(res.Entities))
	}
	if res.Entities[0].Type != domain.EntityTypeConcept {
		t.Fatalf("fallback type: want=%q got=%q", domain.EntityTypeConcept, res.Entities[0].Type)
	}
}
