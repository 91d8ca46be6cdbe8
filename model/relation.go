package model

import (
	"time"

	"github.com/google/uuid"
)

// Predicate is the fixed predicate vocabulary for relations
type Predicate string

const (
	PredicateParentOf   Predicate = "parent_of"
	PredicateChildOf    Predicate = "child_of"
	PredicateMarriedTo  Predicate = "married_to"
	PredicateWorksAt    Predicate = "works_at"
	PredicateMemberOf   Predicate = "member_of"
	PredicateFounded    Predicate = "founded"
	PredicateLeads      Predicate = "leads"
	PredicateRules      Predicate = "rules"
	PredicateLocatedIn  Predicate = "located_in"
	PredicateLivesIn    Predicate = "lives_in"
	PredicateBornIn     Predicate = "born_in"
	PredicateTraveledTo Predicate = "traveled_to"
	PredicatePartOf     Predicate = "part_of"
	PredicateAliasOf    Predicate = "alias_of"
	PredicateSameAs     Predicate = "same_as"
	PredicateSpokeTo    Predicate = "spoke_to"
)

// RelationFamily is the coarse semantic category of a predicate,
// used by the candidate guard
type RelationFamily string

const (
	FamilyLocation      RelationFamily = "location"
	FamilyIdentity      RelationFamily = "identity"
	FamilyPartWhole     RelationFamily = "part_whole"
	FamilyCommunication RelationFamily = "communication"
	FamilyKinship       RelationFamily = "kinship"
	FamilyAffiliation   RelationFamily = "affiliation"
	FamilyMovement      RelationFamily = "movement"
	FamilyGeneric       RelationFamily = "generic"
)

// predicateFamilies maps every known predicate to its family
var predicateFamilies = map[Predicate]RelationFamily{
	PredicateParentOf:   FamilyKinship,
	PredicateChildOf:    FamilyKinship,
	PredicateMarriedTo:  FamilyKinship,
	PredicateWorksAt:    FamilyAffiliation,
	PredicateMemberOf:   FamilyAffiliation,
	PredicateFounded:    FamilyAffiliation,
	PredicateLeads:      FamilyAffiliation,
	PredicateRules:      FamilyAffiliation,
	PredicateLocatedIn:  FamilyLocation,
	PredicateLivesIn:    FamilyLocation,
	PredicateBornIn:     FamilyLocation,
	PredicateTraveledTo: FamilyMovement,
	PredicatePartOf:     FamilyPartWhole,
	PredicateAliasOf:    FamilyIdentity,
	PredicateSameAs:     FamilyIdentity,
	PredicateSpokeTo:    FamilyCommunication,
}

// Family returns the coarse category of the predicate,
// or FamilyGeneric for predicates outside the vocabulary
func (p Predicate) Family() RelationFamily {
	if f, ok := predicateFamilies[p]; ok {
		return f
	}
	return FamilyGeneric
}

// Relation is a finalized fact between two merged entities
type Relation struct {
	ID         uuid.UUID      `json:"id"`
	SubjectID  uuid.UUID      `json:"subject_id"`
	ObjectID   uuid.UUID      `json:"object_id"`
	Predicate  Predicate      `json:"predicate"`
	Family     RelationFamily `json:"family"`
	Confidence float64        `json:"confidence"`
	PathLength int            `json:"path_length"`
	Surface    string         `json:"surface"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RelationCandidate is a proposed relation between two candidate mentions,
// produced by pattern extraction and filtered by the guard before merging.
// Subject and object carry their own type evidence: a declared type when the
// producing pattern asserted one, a nearest-type hint otherwise.
type RelationCandidate struct {
	Subject     EntityCandidate `json:"subject"`
	Object      EntityCandidate `json:"object"`
	Predicate   Predicate       `json:"predicate"`
	Family      RelationFamily  `json:"family"`
	Confidence  float64         `json:"confidence"`
	PathLength  int             `json:"path_length"`
	Surface     string          `json:"surface"` // literal text of the triggering span
}
