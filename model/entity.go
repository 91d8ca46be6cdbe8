package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType is the fixed type vocabulary for canonical entities
type EntityType string

const (
	EntityTypePerson   EntityType = "PERSON"
	EntityTypeOrg      EntityType = "ORG"
	EntityTypePlace    EntityType = "PLACE"
	EntityTypeGPE      EntityType = "GPE"
	EntityTypeFacility EntityType = "FACILITY"
	EntityTypeDate     EntityType = "DATE"
	EntityTypeEvent    EntityType = "EVENT"
	EntityTypeArtifact EntityType = "ARTIFACT"
	EntityTypeRace     EntityType = "RACE"
	EntityTypeDeity    EntityType = "DEITY"
	EntityTypeUnknown  EntityType = "UNKNOWN"
)

// IsLocation reports whether the type denotes somewhere a thing can be
func (t EntityType) IsLocation() bool {
	return t == EntityTypePlace || t == EntityTypeGPE || t == EntityTypeFacility
}

// IsCommunicator reports whether the type can be spoken to
func (t EntityType) IsCommunicator() bool {
	return t == EntityTypePerson || t == EntityTypeOrg
}

// Span locates one mention of an entity inside a source document.
// Start and End are half-open byte offsets.
type Span struct {
	DocumentID string `json:"document_id"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
}

// Entity is a canonical record. Created on first confident mention and
// mutated by the merge engine as later mentions and aliases fold in;
// never destroyed within a run.
type Entity struct {
	ID         uuid.UUID  `json:"id"`
	Project    string     `json:"project,omitempty"`
	Name       string     `json:"name"`
	Type       EntityType `json:"entity_type"`
	Confidence float64    `json:"confidence"`
	Aliases    []string   `json:"aliases,omitempty"`
	Spans      []Span     `json:"spans,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Similarity float64    `json:"similarity,omitempty"` // set by similarity lookups only
}

// HasAlias reports whether the entity already carries the alias,
// case-insensitively. The canonical name counts as an alias of itself.
func (e *Entity) HasAlias(alias string) bool {
	lower := strings.ToLower(alias)
	if strings.ToLower(e.Name) == lower {
		return true
	}
	for _, a := range e.Aliases {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}

// AddAlias appends the alias unless it is already known
func (e *Entity) AddAlias(alias string) {
	if alias == "" || e.HasAlias(alias) {
		return
	}
	e.Aliases = append(e.Aliases, alias)
}

// EntityCandidate is a raw candidate mention produced by the alias pass or
// by pattern extraction, before merging. DeclaredType is the type the
// producing stage asserted; NearestType is a hint derived from surrounding
// context when no type was asserted.
type EntityCandidate struct {
	Name         string     `json:"name"`
	DeclaredType EntityType `json:"declared_type,omitempty"`
	NearestType  EntityType `json:"nearest_type,omitempty"`
	Confidence   float64    `json:"confidence"`
	Span         Span       `json:"span"`
	Source       string     `json:"source"`
	EntityID     uuid.UUID  `json:"entity_id,omitempty"` // set for alias-pass hits
}

// EffectiveType resolves the declared type, else the nearest-type hint,
// else UNKNOWN. Pure two-field lookup, no runtime type inspection.
func (c *EntityCandidate) EffectiveType() EntityType {
	if c.DeclaredType != "" && c.DeclaredType != EntityTypeUnknown {
		return c.DeclaredType
	}
	if c.NearestType != "" {
		return c.NearestType
	}
	return EntityTypeUnknown
}
