// Package config assembles the non-secret runtime configuration from the
// environment, plus an optional YAML manifest describing the sources to
// ingest. Secrets never appear here; they go through the secret resolver.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amedina/team-assistant-v1-sub000/internal/platform/envutil"
	"github.com/amedina/team-assistant-v1-sub000/internal/processor"
	"github.com/amedina/team-assistant-v1-sub000/internal/stores"
)

type Config struct {
	// Chunking drives the text processor.
	Chunking processor.Options

	// Batch is the shared sub-batching and retry policy for all store writes.
	Batch stores.BatchPolicy

	// ConvergenceWindow bounds how long after a successful ingestion a chunk
	// may remain invisible to one of the stores before it counts as a
	// consistency violation.
	ConvergenceWindow time.Duration

	// SourcesFile optionally points at a YAML manifest of sources to ingest.
	SourcesFile string
}

func FromEnv() (Config, error) {
	cfg := Config{
		Chunking: processor.Options{
			ChunkSize:       envutil.Int("CHUNK_SIZE", 1000),
			ChunkOverlap:    envutil.Int("CHUNK_OVERLAP", 150),
			MaxChunkTokens:  envutil.Int("MAX_CHUNK_TOKENS", 2048),
			ExtractEntities: envutil.Bool("EXTRACT_ENTITIES", true),
		},
		Batch: stores.BatchPolicy{
			BatchSize:       envutil.Int("INGEST_BATCH_SIZE", 100),
			MaxRetries:      uint64(envutil.Int("INGEST_MAX_RETRIES", 3)),
			InitialInterval: envutil.DurationSeconds("INGEST_RETRY_INITIAL_SECONDS", 0),
			MaxInterval:     envutil.DurationSeconds("INGEST_RETRY_MAX_SECONDS", 5*time.Second),
		},
		ConvergenceWindow: envutil.DurationSeconds("CONVERGENCE_WINDOW_SECONDS", 30*time.Second),
		SourcesFile:       envutil.Str("SOURCES_FILE", ""),
	}
	if cfg.Batch.InitialInterval == 0 {
		cfg.Batch.InitialInterval = 200 * time.Millisecond
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("config: CHUNK_SIZE must be positive")
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("config: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.Batch.BatchSize <= 0 {
		return fmt.Errorf("config: INGEST_BATCH_SIZE must be positive")
	}
	if c.ConvergenceWindow <= 0 {
		return fmt.Errorf("config: CONVERGENCE_WINDOW_SECONDS must be positive")
	}
	return nil
}

// Source is one entry of the sources manifest.
type Source struct {
	Type       string   `yaml:"type"`
	Identifier string   `yaml:"identifier"`
	Tags       []string `yaml:"tags"`
}

type sourcesManifest struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the YAML manifest. A config with no manifest returns an
// empty list, not an error.
func (c Config) LoadSources() ([]Source, error) {
	if c.SourcesFile == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(c.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("config: read sources manifest: %w", err)
	}
	var manifest sourcesManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("config: parse sources manifest: %w", err)
	}
	for i, s := range manifest.Sources {
		if s.Type == "" || s.Identifier == "" {
			return nil, fmt.Errorf("config: sources[%d] needs both type and identifier", i)
		}
	}
	return manifest.Sources, nil
}
