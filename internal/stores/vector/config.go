package vector

import (
	"net/url"
	"strings"
	"time"

	"github.com/amedina/team-assistant-v1-sub000/internal/platform/envutil"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

// Config holds the Qdrant connection settings. All values come from the
// environment; secrets never do (Qdrant API keys go through the resolver).
type Config struct {
	URL        string
	Collection string
	VectorDim  int
	Timeout    time.Duration
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:        envutil.Str("QDRANT_URL", ""),
		Collection: envutil.Str("QDRANT_COLLECTION", "team_assistant_chunks"),
		VectorDim:  envutil.Int("QDRANT_VECTOR_DIM", 1536),
		Timeout:    envutil.DurationSeconds("QDRANT_TIMEOUT_SECONDS", 10*time.Second),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return &stores.ConfigurationError{Store: "vector", Message: "QDRANT_URL is required"}
	}
	parsed, err := url.Parse(c.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &stores.ConfigurationError{
			Store:   "vector",
			Message: "invalid QDRANT_URL " + c.URL + "; expected absolute URL like http://qdrant:6333",
			Cause:   err,
		}
	}
	if strings.TrimSpace(c.Collection) == "" {
		return &stores.ConfigurationError{Store: "vector", Message: "QDRANT_COLLECTION is required"}
	}
	if c.VectorDim <= 0 {
		return &stores.ConfigurationError{Store: "vector", Message: "QDRANT_VECTOR_DIM must be a positive integer"}
	}
	return nil
}
