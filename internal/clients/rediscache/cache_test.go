package rediscache

import (
	"context"
	"testing"

	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
	"github.com/amedina/team-assistant-v1-sub000/internal/secrets"
)

func newTestResolver(t *testing.T, store secrets.Store) *secrets.Resolver {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return secrets.NewResolver(store, log)
}

func TestResolveOptionalPasswordFromStore(t *testing.T) {
	r := newTestResolver(t, secrets.StaticStore{"redis-password": "s3cret"})
	got, err := resolveOptionalPassword(context.Background(), r)
	if err != nil {
		t.Fatalf("resolveOptionalPassword: %v", err)
	}
	if got != "s3cret" {
		t.Fatalf("password: want=%q got=%q", "s3cret", got)
	}
}

func TestResolveOptionalPasswordFromEnv(t *testing.T) {
	t.Setenv("REDIS_PASSWORD", "from-env")
	r := newTestResolver(t, secrets.StaticStore{})
	got, err := resolveOptionalPassword(context.Background(), r)
	if err != nil {
		t.Fatalf("resolveOptionalPassword: %v", err)
	}
	if got != "from-env" {
		t.Fatalf("password: want=%q got=%q", "from-env", got)
	}
}

func TestResolveOptionalPasswordUnresolvedMeansNoAuth(t *testing.T) {
	t.Setenv("REDIS_PASSWORD", "")
	r := newTestResolver(t, secrets.StaticStore{})
	got, err := resolveOptionalPassword(context.Background(), r)
	if err != nil {
		t.Fatalf("resolveOptionalPassword: %v", err)
	}
	if got != "" {
		t.Fatalf("password: want empty, got=%q", got)
	}
}

func TestNewSkipsCacheWithoutAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)

	cache, err := New(context.Background(), log, newTestResolver(t, secrets.StaticStore{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cache != nil {
		t.Fatalf("cache should be nil without REDIS_ADDR")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *EmbeddingCache
	if got := c.Get(context.Background(), "model", "text"); got != nil {
		t.Fatalf("Get on nil cache: got=%v", got)
	}
	c.Set(context.Background(), "model", "text", []float32{1})
	if err := c.Close(); err != nil {
		t.Fatalf("Close on nil cache: %v", err)
	}
}
