package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MatchSourceAlias marks matches produced by the pass-0 alias matcher
const MatchSourceAlias = "alias"

// AliasEntry is a confirmed mapping from surface text to a canonical entity.
// Uniqueness key within an index is (EntityID, Alias), case-insensitive.
type AliasEntry struct {
	EntityID    uuid.UUID  `json:"entity_id"`
	EntityName  string     `json:"entity_name"`
	Alias       string     `json:"alias"`
	Type        EntityType `json:"entity_type"`
	Confidence  float64    `json:"confidence"`
	ConfirmedAt time.Time  `json:"confirmed_at"`
}

// Key returns the case-insensitive uniqueness key of the entry
func (e *AliasEntry) Key() string {
	return e.EntityID.String() + "|" + strings.ToLower(e.Alias)
}

// AliasIndex is the per-project versioned alias dictionary.
// Version is a monotonic counter bumped on every structural mutation and
// used as the cache-invalidation signal for all derived views of the project.
type AliasIndex struct {
	Version   uint64       `json:"version"`
	Aliases   []AliasEntry `json:"aliases"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewAliasIndex returns an empty index at version 0
func NewAliasIndex() *AliasIndex {
	return &AliasIndex{
		Version:   0,
		Aliases:   []AliasEntry{},
		UpdatedAt: time.Now(),
	}
}

// Upsert adds an entry or, if the (EntityID, Alias) key already exists,
// overwrites its type, confidence and timestamp. Returns true if a new
// entry was appended.
func (i *AliasIndex) Upsert(entry AliasEntry) bool {
	key := entry.Key()
	for n := range i.Aliases {
		if i.Aliases[n].Key() == key {
			i.Aliases[n].EntityName = entry.EntityName
			i.Aliases[n].Type = entry.Type
			i.Aliases[n].Confidence = entry.Confidence
			i.Aliases[n].ConfirmedAt = entry.ConfirmedAt
			return false
		}
	}
	i.Aliases = append(i.Aliases, entry)
	return true
}

// Remove filters out all entries matching the (entityID, alias) key.
// Returns the number of entries removed.
func (i *AliasIndex) Remove(entityID uuid.UUID, alias string) int {
	lower := strings.ToLower(alias)
	kept := make([]AliasEntry, 0, len(i.Aliases))
	removed := 0
	for _, entry := range i.Aliases {
		if entry.EntityID == entityID && strings.ToLower(entry.Alias) == lower {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	i.Aliases = kept
	return removed
}

// AliasMatch is a located hit of an AliasEntry against text.
// Start and End are half-open byte offsets into the exact input text.
type AliasMatch struct {
	Start       int        `json:"start"`
	End         int        `json:"end"`
	MatchedText string     `json:"matched_text"`
	EntityID    uuid.UUID  `json:"entity_id"`
	EntityName  string     `json:"entity_name"`
	Type        EntityType `json:"entity_type"`
	Confidence  float64    `json:"confidence"`
	Source      string     `json:"source"`
}

// Overlaps reports whether two half-open ranges share any character
func (m *AliasMatch) Overlaps(start, end int) bool {
	return m.Start < end && start < m.End
}
