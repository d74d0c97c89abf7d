package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amedina/team-assistant-v1-sub000/internal/connectors"
	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
	"github.com/amedina/team-assistant-v1-sub000/internal/processor"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

type fakeIngestor struct {
	calls  int
	chunks []domain.Chunk
	mode   stores.IngestMode
	err    error
	failN  int
}

func (f *fakeIngestor) IngestBatch(_ context.Context, chunks []domain.Chunk, mode stores.IngestMode) (domain.IngestionBatchResult, error) {
	f.calls++
	f.chunks = chunks
	f.mode = mode
	if f.err != nil {
		return domain.IngestionBatchResult{}, f.err
	}
	result := domain.IngestionBatchResult{Total: len(chunks), Successful: len(chunks) - f.failN, Failed: f.failN}
	for i := 0; i < f.failN; i++ {
		result.FailedItems = append(result.FailedItems, domain.FailedItem{Identifier: chunks[i].ChunkUUID.String(), Reason: "forced"})
	}
	return result, nil
}

type fakeGraphIngestor struct {
	fakeIngestor
	entities      []domain.Entity
	relationships []domain.Relationship
	graphErr      error
}

func (f *fakeGraphIngestor) IngestGraph(_ context.Context, entities []domain.Entity, relationships []domain.Relationship) error {
	f.entities = entities
	f.relationships = relationships
	return f.graphErr
}

func testPipeline(t *testing.T, vec, rel *fakeIngestor, gr *fakeGraphIngestor) *Pipeline {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	proc := processor.New(log, nil)
	opts := processor.Options{ChunkSize: 64, ChunkOverlap: 8, MaxChunkTokens: 512}
	return New(log, proc, opts, vec, rel, gr)
}

func testDoc(id, text string) domain.Document {
	return domain.Document{
		SourceType:       domain.SourceTypeWeb,
		SourceIdentifier: id,
		RawText:          text,
		RetrievedAt:      time.Now(),
	}
}

func TestRunFansOutToAllStores(t *testing.T) {
	vec, rel := &fakeIngestor{}, &fakeIngestor{}
	gr := &fakeGraphIngestor{}
	p := testPipeline(t, vec, rel, gr)

	docs := []domain.Document{
		testDoc("doc-1", "First document. It has sentences. Enough to produce chunks."),
		testDoc("doc-2", "Second document with different text entirely."),
	}
	summary, err := p.Run(context.Background(), docs, stores.ModeReplace)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.DocsAttempted != 2 || summary.DocsSucceeded != 2 || summary.DocsFailed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if vec.calls != 1 || rel.calls != 1 || gr.calls != 1 {
		t.Fatalf("calls = vec:%d rel:%d graph:%d, want one each", vec.calls, rel.calls, gr.calls)
	}
	if len(vec.chunks) != summary.ChunksProduced || len(rel.chunks) != summary.ChunksProduced {
		t.Fatalf("stores saw %d/%d chunks, summary says %d", len(vec.chunks), len(rel.chunks), summary.ChunksProduced)
	}
	if vec.mode != stores.ModeReplace {
		t.Fatalf("mode = %q", vec.mode)
	}
	if !summary.Success() {
		t.Fatal("summary should report success")
	}
}

func TestRunSameDocumentTwiceSameChunkUUIDs(t *testing.T) {
	doc := testDoc("https://example.com/notes",
		"First sentence of a recurring document. Second sentence with more words. "+
			"Third sentence to push the text across several chunks. Fourth sentence closes it out.")

	run := func() RunSummary {
		vec, rel := &fakeIngestor{}, &fakeIngestor{}
		gr := &fakeGraphIngestor{}
		p := testPipeline(t, vec, rel, gr)
		summary, err := p.Run(context.Background(), []domain.Document{doc}, stores.ModeReplace)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return summary
	}

	first := run()
	second := run()
	if len(first.ChunkUUIDs) == 0 {
		t.Fatal("run produced no chunks")
	}
	if len(first.ChunkUUIDs) != len(second.ChunkUUIDs) {
		t.Fatalf("chunk counts differ across runs: %d vs %d", len(first.ChunkUUIDs), len(second.ChunkUUIDs))
	}
	for i := range first.ChunkUUIDs {
		if first.ChunkUUIDs[i] != second.ChunkUUIDs[i] {
			t.Fatalf("chunk %d uuid differs across runs: %s vs %s", i, first.ChunkUUIDs[i], second.ChunkUUIDs[i])
		}
	}
}

func TestRunIsolatesDocumentFailures(t *testing.T) {
	vec, rel := &fakeIngestor{}, &fakeIngestor{}
	gr := &fakeGraphIngestor{}
	p := testPipeline(t, vec, rel, gr)

	docs := []domain.Document{
		testDoc("good", "A perfectly fine document with some content in it."),
		testDoc("empty", "\x00\x01"),
	}
	summary, err := p.Run(context.Background(), docs, stores.ModeReplace)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.DocsSucceeded != 1 || summary.DocsFailed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.FailedDocs) != 1 || summary.FailedDocs[0].SourceIdentifier != "empty" {
		t.Fatalf("failed docs = %+v", summary.FailedDocs)
	}
	if summary.Success() {
		t.Fatal("summary should not report success")
	}
	if vec.calls != 1 {
		t.Fatalf("surviving chunks should still be ingested, calls = %d", vec.calls)
	}
}

func TestRunStoreOutageAborts(t *testing.T) {
	vec := &fakeIngestor{err: &stores.NotReadyError{State: stores.StateFailed}}
	rel := &fakeIngestor{}
	gr := &fakeGraphIngestor{}
	p := testPipeline(t, vec, rel, gr)

	_, err := p.Run(context.Background(), []domain.Document{testDoc("d", "Some text here.")}, stores.ModeReplace)
	if err == nil {
		t.Fatal("Run should fail when a store is unreachable")
	}
	var notReady *stores.NotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("err = %v, want NotReadyError", err)
	}
}

func TestRunPartialStoreFailureDoesNotAbort(t *testing.T) {
	vec := &fakeIngestor{failN: 1}
	rel := &fakeIngestor{}
	gr := &fakeGraphIngestor{}
	p := testPipeline(t, vec, rel, gr)

	summary, err := p.Run(context.Background(), []domain.Document{
		testDoc("d", "One sentence. Two sentences. Three sentences. Four sentences here to fill space."),
	}, stores.ModeReplace)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.StoreResults["vector"].Failed != 1 {
		t.Fatalf("vector result = %+v", summary.StoreResults["vector"])
	}
	if summary.Success() {
		t.Fatal("summary should not report success with a failed item")
	}
}

func TestRunEmptyDocListNoStoreCalls(t *testing.T) {
	vec, rel := &fakeIngestor{}, &fakeIngestor{}
	gr := &fakeGraphIngestor{}
	p := testPipeline(t, vec, rel, gr)

	summary, err := p.Run(context.Background(), nil, stores.ModeReplace)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if vec.calls != 0 || rel.calls != 0 || gr.calls != 0 {
		t.Fatal("no store should be called for an empty run")
	}
	if !summary.Success() {
		t.Fatal("empty run counts as success")
	}
}

func TestRunRejectsInvalidMode(t *testing.T) {
	p := testPipeline(t, &fakeIngestor{}, &fakeIngestor{}, &fakeGraphIngestor{})
	if _, err := p.Run(context.Background(), nil, stores.IngestMode("upsert")); err == nil {
		t.Fatal("Run should reject an unknown mode")
	}
}

func TestRunFromConnectors(t *testing.T) {
	vec, rel := &fakeIngestor{}, &fakeIngestor{}
	gr := &fakeGraphIngestor{}
	p := testPipeline(t, vec, rel, gr)

	conn := &connectors.Static{ConnectorName: "test-source", Docs: []domain.Document{
		testDoc("doc-1", "Document text pulled through the connector boundary."),
	}}
	summary, err := p.RunFromConnectors(context.Background(), []connectors.Connector{conn}, connectors.SyncFull, stores.ModeOverwrite)
	if err != nil {
		t.Fatalf("RunFromConnectors: %v", err)
	}
	if summary.DocsAttempted != 1 || summary.DocsSucceeded != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if vec.mode != stores.ModeOverwrite {
		t.Fatalf("mode = %q, want overwrite", vec.mode)
	}
	if conn.CheckConnection(context.Background()) {
		t.Fatal("connector should be disconnected after the run")
	}
}

func TestRunFromConnectorsRejectsInvalidSyncMode(t *testing.T) {
	p := testPipeline(t, &fakeIngestor{}, &fakeIngestor{}, &fakeGraphIngestor{})
	if _, err := p.RunFromConnectors(context.Background(), nil, connectors.SyncMode("partial"), stores.ModeReplace); err == nil {
		t.Fatal("RunFromConnectors should reject an unknown sync mode")
	}
}
