package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

// Retriever runs similarity search against the collection. Callers pass a
// precomputed query embedding; the retriever never talks to the embedder so
// query embedding caching stays in one place.
type Retriever struct {
	m *Manager
}

// Search returns up to topK matches ordered by descending score. Supported
// filter keys: source_type (string equality), tags (match any of a string
// list) and date_from / date_to (RFC 3339 bounds on ingestion time).
func (r *Retriever) Search(ctx context.Context, embedding []float32, topK int, filters map[string]any) ([]stores.Match, error) {
	if err := r.m.lc.RequireReady(); err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, &stores.ValidationError{Item: "query", Message: "empty query embedding"}
	}
	if r.m.cfg.VectorDim > 0 && len(embedding) != r.m.cfg.VectorDim {
		return nil, &stores.ValidationError{
			Item:    "query",
			Message: fmt.Sprintf("query embedding dimension mismatch: expected=%d got=%d", r.m.cfg.VectorDim, len(embedding)),
		}
	}
	if topK <= 0 {
		topK = 10
	}

	body := map[string]any{
		"vector":       embedding,
		"limit":        topK,
		"with_payload": true,
	}
	filter, err := translateFilters(filters)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		body["filter"] = filter
	}

	var items []searchResultItem
	if err := r.m.doJSON(ctx, "search", http.MethodPost, r.m.collectionPath("/points/search"), body, &items); err != nil {
		return nil, err
	}

	matches := make([]stores.Match, 0, len(items))
	for _, item := range items {
		id, ok := pointChunkUUID(item)
		if !ok {
			r.m.log.Warn("search hit without usable chunk uuid", "raw_id", string(item.ID))
			continue
		}
		matches = append(matches, stores.Match{ChunkUUID: id, Score: item.Score})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

// ExistingIDs reports which of the given chunk UUIDs have a point in the
// collection. The convergence check uses this after an ingestion run.
func (r *Retriever) ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	if err := r.m.lc.RequireReady(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return map[uuid.UUID]bool{}, nil
	}

	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}
	var items []searchResultItem
	err := r.m.doJSON(ctx, "retrieve", http.MethodPost, r.m.collectionPath("/points"), map[string]any{
		"ids":          idStrs,
		"with_payload": false,
	}, &items)
	if err != nil {
		return nil, err
	}

	found := make(map[uuid.UUID]bool, len(items))
	for _, item := range items {
		var idStr string
		if err := json.Unmarshal(item.ID, &idStr); err != nil {
			continue
		}
		if id, err := uuid.Parse(idStr); err == nil {
			found[id] = true
		}
	}
	return found, nil
}

// pointChunkUUID prefers the chunk_uuid payload field and falls back to the
// point id, which the ingestor sets to the same value.
func pointChunkUUID(item searchResultItem) (uuid.UUID, bool) {
	if raw, ok := item.Payload["chunk_uuid"].(string); ok {
		if id, err := uuid.Parse(raw); err == nil {
			return id, true
		}
	}
	var idStr string
	if err := json.Unmarshal(item.ID, &idStr); err == nil {
		if id, err := uuid.Parse(idStr); err == nil {
			return id, true
		}
	}
	return uuid.Nil, false
}

// translateFilters maps the caller-facing filter keys onto Qdrant filter
// clauses. Unknown keys are rejected rather than silently dropped.
func translateFilters(filters map[string]any) (map[string]any, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	var must []any
	for key, value := range filters {
		switch key {
		case "source_type":
			s, ok := value.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil, &stores.ValidationError{Item: key, Message: "source_type filter must be a non-empty string"}
			}
			must = append(must, map[string]any{"key": "source_type", "match": map[string]any{"value": s}})
		case "tags":
			tags, err := stringList(value)
			if err != nil {
				return nil, &stores.ValidationError{Item: key, Message: err.Error()}
			}
			if len(tags) == 0 {
				continue
			}
			must = append(must, map[string]any{"key": "tags", "match": map[string]any{"any": tags}})
		case "date_from":
			ts, err := parseFilterTime(value)
			if err != nil {
				return nil, &stores.ValidationError{Item: key, Message: err.Error()}
			}
			must = append(must, map[string]any{"key": "ingested_at", "range": map[string]any{"gte": ts.Unix()}})
		case "date_to":
			ts, err := parseFilterTime(value)
			if err != nil {
				return nil, &stores.ValidationError{Item: key, Message: err.Error()}
			}
			must = append(must, map[string]any{"key": "ingested_at", "range": map[string]any{"lte": ts.Unix()}})
		default:
			return nil, &stores.ValidationError{Item: key, Message: "unsupported filter key"}
		}
	}
	if len(must) == 0 {
		return nil, nil
	}
	return map[string]any{"must": must}, nil
}

func stringList(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("tags filter must be a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("tags filter must be a list of strings")
	}
}

func parseFilterTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("date filter must be RFC 3339: %v", err)
		}
		return ts, nil
	default:
		return time.Time{}, fmt.Errorf("date filter must be an RFC 3339 string")
	}
}
