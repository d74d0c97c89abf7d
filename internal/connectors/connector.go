// Package connectors defines the boundary to the systems documents are
// pulled from. Fetch logic itself (git, drive, web) lives outside this
// repository; the pipeline only consumes this interface.
package connectors

import (
	"context"
	"fmt"

	"github.com/amedina/team-assistant-v1-sub000/internal/domain"
)

// SyncMode tells a connector how much to re-fetch. Full pulls everything,
// incremental only documents newer than the last run, smart adds documents
// whose content hash changed since the last run.
type SyncMode string

const (
	SyncFull        SyncMode = "full"
	SyncIncremental SyncMode = "incremental"
	SyncSmart       SyncMode = "smart"
)

func (m SyncMode) Valid() bool {
	return m == SyncFull || m == SyncIncremental || m == SyncSmart
}

// Fetched is one item off the document stream. Err is set when a single
// document could not be fetched; the stream continues past it.
type Fetched struct {
	Doc domain.Document
	Err error
}

// Connector is the source boundary. FetchDocuments is lazy and restartable:
// each call opens a fresh, finite stream that closes when the source is
// exhausted or the context is cancelled.
type Connector interface {
	Name() string
	Connect(ctx context.Context) error
	FetchDocuments(ctx context.Context, mode SyncMode) (<-chan Fetched, error)
	CheckConnection(ctx context.Context) bool
	Disconnect(ctx context.Context) error
}

// Static serves a fixed document list. Used by the validate command and
// throughout the tests.
type Static struct {
	ConnectorName string
	Docs          []domain.Document

	connected bool
}

func (s *Static) Name() string {
	if s.ConnectorName != "" {
		return s.ConnectorName
	}
	return "static"
}

func (s *Static) Connect(_ context.Context) error {
	s.connected = true
	return nil
}

func (s *Static) FetchDocuments(ctx context.Context, mode SyncMode) (<-chan Fetched, error) {
	if !s.connected {
		return nil, fmt.Errorf("connectors: %s not connected", s.Name())
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("connectors: invalid sync mode %q", mode)
	}
	out := make(chan Fetched)
	go func() {
		defer close(out)
		for _, doc := range s.Docs {
			select {
			case out <- Fetched{Doc: doc}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Static) CheckConnection(_ context.Context) bool { return s.connected }

func (s *Static) Disconnect(_ context.Context) error {
	s.connected = false
	return nil
}
