package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/amedina/team-assistant-v1-sub000/internal/platform/envutil"
	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
	"github.com/amedina/team-assistant-v1-sub000/internal/secrets"
)

// EmbeddingCache keeps query embeddings in Redis so repeated fused-context
// queries skip the embedding call. Entries are keyed by model and a hash of
// the query text; misses are silent.
type EmbeddingCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// New returns nil without error when REDIS_ADDR is unset; the cache is an
// optional accelerator, not a required dependency.
func New(ctx context.Context, log *logger.Logger, resolver *secrets.Resolver) (*EmbeddingCache, error) {
	addr := envutil.Str("REDIS_ADDR", "")
	if addr == "" {
		return nil, nil
	}

	password, err := resolveOptionalPassword(ctx, resolver)
	if err != nil {
		return nil, err
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       envutil.Int("REDIS_DB", 0),
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("rediscache: ping: %w", err)
	}

	return &EmbeddingCache{
		log: log.With("client", "EmbeddingCache"),
		rdb: rdb,
		ttl: envutil.DurationSeconds("EMBED_CACHE_TTL_SECONDS", time.Hour),
	}, nil
}

// resolveOptionalPassword treats the redis password as an optional secret:
// an unresolved lookup means an unauthenticated instance, not a failure.
func resolveOptionalPassword(ctx context.Context, resolver *secrets.Resolver) (string, error) {
	password, err := resolver.Resolve(ctx, "redis-password", "REDIS_PASSWORD", "")
	if err != nil {
		var unresolved *secrets.ErrUnresolved
		if errors.As(err, &unresolved) {
			return "", nil
		}
		return "", fmt.Errorf("rediscache: resolve password: %w", err)
	}
	return password, nil
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embed:" + model + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached embedding or nil on miss.
func (c *EmbeddingCache) Get(ctx context.Context, model, text string) []float32 {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, cacheKey(model, text)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Debug("embedding cache read failed", "error", err)
		}
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil
	}
	return vec
}

func (c *EmbeddingCache) Set(ctx context.Context, model, text string, vec []float32) {
	if c == nil || c.rdb == nil || len(vec) == 0 {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(model, text), raw, c.ttl).Err(); err != nil {
		c.log.Debug("embedding cache write failed", "error", err)
	}
}

func (c *EmbeddingCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
