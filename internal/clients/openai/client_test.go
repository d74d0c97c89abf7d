package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestClient(t *testing.T, fn roundTripFunc) *client {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return &client{
		log:        log,
		baseURL:    "https://api.test",
		apiKey:     "test-key",
		model:      "gpt-4o-mini",
		embedModel: "text-embedding-3-small",
		httpClient: &http.Client{Transport: fn},
		maxRetries: 1,
	}
}

func jsonResponse(t *testing.T, status int, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(raw)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestEmbedAssemblesByIndex(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("auth header: got=%q", got)
		}
		// Deliberately out of order.
		return jsonResponse(t, 200, map[string]any{
			"data": []map[string]any{
				{"embedding": []float64{4, 5}, "index": 1},
				{"embedding": []float64{1, 2}, "index": 0},
			},
		}), nil
	})

	out, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("embeddings: want=2 got=%d", len(out))
	}
	if out[0][0] != 1 || out[1][0] != 4 {
		t.Fatalf("index assembly wrong: got=%v", out)
	}
}

func TestEmbedMissingIndexFails(t *testing.T) {
	c := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(t, 200, map[string]any{
			"data": []map[string]any{{"embedding": []float64{1}, "index": 0}},
		}), nil
	})

	if _, err := c.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatalf("Embed: expected error for missing index")
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls int
	c := newTestClient(t, func(*http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(t, 500, map[string]any{"error": "boom"}), nil
		}
		return jsonResponse(t, 200, map[string]any{
			"data": []map[string]any{{"embedding": []float64{1}, "index": 0}},
		}), nil
	})

	if _, err := c.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}

func TestGenerateJSONDecodesContent(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		return jsonResponse(t, 200, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"entities":[{"name":"Acme","label":"org"}]}`}},
			},
		}), nil
	})

	out, err := c.GenerateJSON(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if _, ok := out["entities"]; !ok {
		t.Fatalf("missing entities key: got=%v", out)
	}
}
