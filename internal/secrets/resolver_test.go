package secrets

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
)

type failingStore struct{}

func (failingStore) GetSecret(context.Context, string) (string, error) {
	return "", fmt.Errorf("store unreachable")
}

func newTestResolver(t *testing.T, store Store) *Resolver {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return NewResolver(store, log)
}

func TestResolveStoreWins(t *testing.T) {
	t.Setenv("DB_PASS", "from-env")
	r := newTestResolver(t, StaticStore{"db-password": "from-store"})

	got, err := r.Resolve(context.Background(), "db-password", "DB_PASS", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "from-store" {
		t.Fatalf("value: want=%q got=%q", "from-store", got)
	}
}

func TestResolveEnvFallbackWhenStoreUnreachable(t *testing.T) {
	t.Setenv("DB_PASS", "test123")
	r := newTestResolver(t, failingStore{})

	got, err := r.Resolve(context.Background(), "db-password", "DB_PASS", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "test123" {
		t.Fatalf("value: want=%q got=%q", "test123", got)
	}
}

func TestResolveDefault(t *testing.T) {
	t.Setenv("DB_PASS", "")
	r := newTestResolver(t, failingStore{})

	got, err := r.Resolve(context.Background(), "db-password", "DB_PASS", "fallback")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "fallback" {
		t.Fatalf("value: want=%q got=%q", "fallback", got)
	}
}

func TestResolveUnresolved(t *testing.T) {
	t.Setenv("DB_PASS", "")
	r := newTestResolver(t, failingStore{})

	_, err := r.Resolve(context.Background(), "db-password", "DB_PASS", "")
	if err == nil {
		t.Fatalf("Resolve: expected error, got nil")
	}
	var unresolved *ErrUnresolved
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected *ErrUnresolved, got=%T", err)
	}
	if unresolved.SecretName != "db-password" {
		t.Fatalf("secret name: want=%q got=%q", "db-password", unresolved.SecretName)
	}
}

func TestResolveNilStoreUsesEnv(t *testing.T) {
	t.Setenv("GRAPH_PASS", "neo4j-secret")
	r := newTestResolver(t, nil)

	got, err := r.Resolve(context.Background(), "graph-password", "GRAPH_PASS", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "neo4j-secret" {
		t.Fatalf("value: want=%q got=%q", "neo4j-secret", got)
	}
}
