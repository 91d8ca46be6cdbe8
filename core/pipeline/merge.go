package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marensch/lorekeep/model"
)

// MergeInput is the union of everything a run produced before merging.
// Relations are expected to have passed the guard already; Rejected carries
// the guard's rejection count through to the run statistics.
type MergeInput struct {
	AliasMatches []model.AliasMatch
	Entities     []model.EntityCandidate
	Relations    []model.RelationCandidate
	Coref        []model.CorefLink
	Rejected     int
}

// Merger turns raw candidates into one consistent entity/relation set.
// Entities are keyed by case-normalized canonical name; coreference links
// fold partial mentions into their antecedent instead of creating
// duplicates; confidence aggregates by maximum, never by average, so a
// single exact dictionary hit is not diluted by noisier signals.
type Merger struct {
	DocumentID    string
	MinConfidence float64

	entities []*model.Entity
	byName   map[string]*model.Entity
}

// NewMerger creates a merger for one document run
func NewMerger(documentID string, minConfidence float64) *Merger {
	return &Merger{
		DocumentID:    documentID,
		MinConfidence: minConfidence,
		byName:        make(map[string]*model.Entity),
	}
}

// Merge deduplicates candidates into final entities and relations.
// Alias-pass matches are folded first and their spans are never overwritten
// by pattern-based candidates at the same range.
func (m *Merger) Merge(input *MergeInput) ([]*model.Entity, []*model.Relation) {
	canonicalOf := corefCanonicals(input.Coref)

	for _, match := range input.AliasMatches {
		entity := m.fold(match.EntityName, match.Type, match.Confidence, match.EntityID)
		entity.AddAlias(match.MatchedText)
		m.addSpan(entity, model.Span{
			DocumentID: m.DocumentID,
			Start:      match.Start,
			End:        match.End,
			Text:       match.MatchedText,
		})
	}

	for _, candidate := range input.Entities {
		if candidate.Confidence < m.MinConfidence {
			continue
		}
		if overlapsAny(input.AliasMatches, candidate.Span.Start, candidate.Span.End) {
			continue // alias hits take priority at a span
		}

		name := candidate.Name
		if canonical, ok := canonicalOf[normalizeName(name)]; ok {
			entity := m.fold(canonical, candidate.EffectiveType(), candidate.Confidence, uuid.Nil)
			entity.AddAlias(name)
			m.addSpan(entity, candidate.Span)
			continue
		}

		entity := m.fold(name, candidate.EffectiveType(), candidate.Confidence, candidate.EntityID)
		m.addSpan(entity, candidate.Span)
	}

	for _, link := range input.Coref {
		entity := m.resolve(link.Canonical, canonicalOf)
		if entity == nil {
			continue
		}
		if !IsPronoun(link.Mention) {
			entity.AddAlias(link.Mention)
		}
		m.addSpan(entity, link.Span)
	}

	relations := m.mergeRelations(input.Relations, canonicalOf)

	return m.entities, relations
}

// fold finds the entity the name resolves to, creating it on first
// confident mention, and aggregates confidence by maximum
func (m *Merger) fold(name string, entityType model.EntityType, confidence float64, id uuid.UUID) *model.Entity {
	if entity := m.lookup(name); entity != nil {
		if confidence > entity.Confidence {
			entity.Confidence = confidence
		}
		if entity.Type == model.EntityTypeUnknown && entityType != model.EntityTypeUnknown && entityType != "" {
			entity.Type = entityType
		}
		if !strings.EqualFold(entity.Name, name) {
			entity.AddAlias(name)
		}
		entity.UpdatedAt = time.Now()
		return entity
	}

	if id == uuid.Nil {
		id = uuid.New()
	}
	if entityType == "" {
		entityType = model.EntityTypeUnknown
	}
	now := time.Now()
	entity := &model.Entity{
		ID:         id,
		Name:       name,
		Type:       entityType,
		Confidence: confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.entities = append(m.entities, entity)
	m.byName[normalizeName(name)] = entity
	return entity
}

// lookup matches a name against canonical names first, then known aliases
func (m *Merger) lookup(name string) *model.Entity {
	if entity, ok := m.byName[normalizeName(name)]; ok {
		return entity
	}
	for _, entity := range m.entities {
		if entity.HasAlias(name) {
			return entity
		}
	}
	return nil
}

// resolve follows a coreference canonical indirection before looking up
func (m *Merger) resolve(name string, canonicalOf map[string]string) *model.Entity {
	if canonical, ok := canonicalOf[normalizeName(name)]; ok {
		name = canonical
	}
	return m.lookup(name)
}

func (m *Merger) addSpan(entity *model.Entity, span model.Span) {
	for _, existing := range entity.Spans {
		if existing.DocumentID == span.DocumentID && existing.Start == span.Start && existing.End == span.End {
			return
		}
	}
	entity.Spans = append(entity.Spans, span)
}

// mergeRelations resolves both participants to merged entities and
// deduplicates by (subject identity, predicate, object identity)
func (m *Merger) mergeRelations(candidates []model.RelationCandidate, canonicalOf map[string]string) []*model.Relation {
	var relations []*model.Relation
	seen := make(map[string]*model.Relation)

	for n := range candidates {
		candidate := &candidates[n]
		subject := m.resolve(candidate.Subject.Name, canonicalOf)
		object := m.resolve(candidate.Object.Name, canonicalOf)
		if subject == nil || object == nil || subject == object {
			continue
		}

		key := subject.ID.String() + "|" + string(candidate.Predicate) + "|" + object.ID.String()
		if existing, ok := seen[key]; ok {
			if candidate.Confidence > existing.Confidence {
				existing.Confidence = candidate.Confidence
			}
			continue
		}

		relation := &model.Relation{
			ID:         uuid.New(),
			SubjectID:  subject.ID,
			ObjectID:   object.ID,
			Predicate:  candidate.Predicate,
			Family:     candidate.Family,
			Confidence: candidate.Confidence,
			PathLength: candidate.PathLength,
			Surface:    candidate.Surface,
			CreatedAt:  time.Now(),
		}
		seen[key] = relation
		relations = append(relations, relation)
	}

	return relations
}

// corefCanonicals maps normalized mention names to their canonical name.
// Pronoun mentions are excluded; they bind by span, not by name.
func corefCanonicals(links []model.CorefLink) map[string]string {
	canonicalOf := make(map[string]string, len(links))
	for _, link := range links {
		if IsPronoun(link.Mention) {
			continue
		}
		if normalizeName(link.Mention) == normalizeName(link.Canonical) {
			continue
		}
		canonicalOf[normalizeName(link.Mention)] = link.Canonical
	}
	return canonicalOf
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
