package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies the connector family a document came from.
type SourceType string

const (
	SourceTypeRepo        SourceType = "repo"
	SourceTypeDriveFolder SourceType = "drive-folder"
	SourceTypeDriveFile   SourceType = "drive-file"
	SourceTypeWeb         SourceType = "web"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceTypeRepo, SourceTypeDriveFolder, SourceTypeDriveFile, SourceTypeWeb:
		return true
	default:
		return false
	}
}

// Document is the raw unit handed over by a connector. It is consumed once
// by the processor and never persisted itself.
type Document struct {
	SourceType       SourceType
	SourceIdentifier string
	RawText          string
	RetrievedAt      time.Time
}

// Chunk is the unit of storage and retrieval. ChunkUUID is derived from the
// chunk's source slot via NewChunkUUID and is identical across the vector,
// relational and graph stores; it is the cross-store join key.
type Chunk struct {
	ChunkUUID        uuid.UUID
	SourceType       SourceType
	SourceIdentifier string
	SequenceIndex    int
	Text             string
	TextSummary      string
	Metadata         map[string]any
	ContentHash      string
	IngestedAt       time.Time
}

// HashContent returns the hex sha256 of a chunk's cleaned text. Replace-mode
// ingestion compares this hash to decide whether a rewrite is needed.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EntityType is a closed enumeration. An entity with an unknown or empty
// type is a validation error, not a silently accepted default; extractor
// labels outside the enumeration map to EntityTypeConcept.
type EntityType string

const (
	EntityTypePerson       EntityType = "person"
	EntityTypeOrganization EntityType = "organization"
	EntityTypeProject      EntityType = "project"
	EntityTypeTechnology   EntityType = "technology"
	EntityTypeLocation     EntityType = "location"
	EntityTypeEvent        EntityType = "event"
	EntityTypeDocument     EntityType = "document"
	EntityTypeConcept      EntityType = "concept"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityTypePerson, EntityTypeOrganization, EntityTypeProject,
		EntityTypeTechnology, EntityTypeLocation, EntityTypeEvent,
		EntityTypeDocument, EntityTypeConcept:
		return true
	default:
		return false
	}
}

// NormalizeEntityType maps a free-form extractor label into the closed
// enumeration, falling back to concept for anything unrecognized.
func NormalizeEntityType(label string) EntityType {
	t := EntityType(strings.ToLower(strings.TrimSpace(label)))
	switch t {
	case "org", "company":
		return EntityTypeOrganization
	case "tool", "library", "framework", "language":
		return EntityTypeTechnology
	case "place":
		return EntityTypeLocation
	}
	if t.Valid() {
		return t
	}
	return EntityTypeConcept
}

var (
	entityIDNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	chunkIDNamespace  = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
)

// NewChunkUUID derives the identifier for one logical chunk slot. Identity is
// the slot (source plus sequence position), not the content: re-ingesting a
// document yields the same UUID set, so replace mode upserts in place instead
// of accumulating duplicates, and content changes are detected by comparing
// the stored content hash under the same UUID.
func NewChunkUUID(sourceType SourceType, sourceIdentifier string, sequenceIndex int) uuid.UUID {
	key := fmt.Sprintf("%s|%s|%d", sourceType, sourceIdentifier, sequenceIndex)
	return uuid.NewSHA1(chunkIDNamespace, []byte(key))
}

// Entity is a named thing extracted from one or more chunks. EntityID is
// deterministic from normalized name and type so repeated extraction merges
// instead of duplicating.
type Entity struct {
	EntityID     uuid.UUID
	Type         EntityType
	Name         string
	SourceChunks []uuid.UUID
}

// NewEntity builds an entity with its deterministic identifier.
func NewEntity(name string, typ EntityType, sourceChunks ...uuid.UUID) (Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Entity{}, fmt.Errorf("domain: entity name required")
	}
	if !typ.Valid() {
		return Entity{}, fmt.Errorf("domain: entity %q has invalid type %q", name, typ)
	}
	key := string(typ) + "|" + strings.ToLower(name)
	return Entity{
		EntityID:     uuid.NewSHA1(entityIDNamespace, []byte(key)),
		Type:         typ,
		Name:         name,
		SourceChunks: sourceChunks,
	}, nil
}

func (e Entity) Validate() error {
	if e.EntityID == uuid.Nil {
		return fmt.Errorf("domain: entity %q missing id", e.Name)
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("domain: entity missing name")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("domain: entity %q has invalid type %q", e.Name, e.Type)
	}
	return nil
}

// Relationship is a typed, directed edge between two entities. Both
// endpoints must exist as entities before the edge is written.
type Relationship struct {
	FromEntityID     uuid.UUID
	ToEntityID       uuid.UUID
	RelationshipType string
	SourceChunks     []uuid.UUID
	Confidence       float64
}

func (r Relationship) Validate() error {
	if r.FromEntityID == uuid.Nil || r.ToEntityID == uuid.Nil {
		return fmt.Errorf("domain: relationship %q missing endpoint", r.RelationshipType)
	}
	if strings.TrimSpace(r.RelationshipType) == "" {
		return fmt.Errorf("domain: relationship missing type")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("domain: relationship %q confidence %v out of range", r.RelationshipType, r.Confidence)
	}
	return nil
}
