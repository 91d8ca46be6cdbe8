package pipeline

import (
	"regexp"
	"strings"

	"github.com/marensch/lorekeep/model"
)

// locationIdioms superficially resemble location relations but are not ones
var locationIdioms = []string{
	"in trouble",
	"at odds",
	"in love",
	"in charge",
	"in danger",
	"at war",
	"in time",
	"on edge",
}

// aliasMarkers are explicit identity cues in surface text
var aliasMarkers = []string{
	"also known as",
	"alias of",
	"known as",
	"also called",
}

var akaPattern = regexp.MustCompile(`(?i)\ba\.?k\.?a\.?\b`)

// partCues are part-denoting lexical cues required by part-whole relations,
// the most overgenerating trigger family
var partCues = []string{
	"chapter", "wheel", "page", "room", "engine", "member", "leaf",
	"wing", "door", "gate", "blade", "limb", "branch", "verse",
	"tower", "hall", "shard", "part", "piece", "fragment",
}

var partCuePattern = regexp.MustCompile(`(?i)\b(` + strings.Join(partCues, "|") + `)s?\b`)

// Guard is the pure relation-candidate validity predicate. It has no side
// effects and never fails; an unrecognized family falls through to the
// baseline distance check only.
type Guard struct {
	// MaxPathLength caps the dependency-path distance between the two
	// participant mentions; relations inferred across more intervening
	// clauses are unreliable
	MaxPathLength int
}

// NewGuard returns a guard with the default distance cap
func NewGuard() *Guard {
	return &Guard{MaxPathLength: model.DefaultExtractionConfig().MaxPathLength}
}

// AcceptRelation evaluates all applicable checks as an unconditional AND
func (g *Guard) AcceptRelation(candidate *model.RelationCandidate) bool {
	if candidate.PathLength > g.MaxPathLength {
		return false
	}

	surface := strings.ToLower(candidate.Surface)

	switch candidate.Family {
	case model.FamilyLocation:
		if !candidate.Object.EffectiveType().IsLocation() {
			return false
		}
		for _, idiom := range locationIdioms {
			if strings.Contains(surface, idiom) {
				return false
			}
		}
		return true

	case model.FamilyIdentity:
		if hasAliasMarker(surface) {
			return true
		}
		// Without an explicit marker, an identity relation across
		// incompatible types is rejected
		return candidate.Subject.EffectiveType() == candidate.Object.EffectiveType()

	case model.FamilyPartWhole:
		return partCuePattern.MatchString(surface)

	case model.FamilyCommunication:
		return candidate.Object.EffectiveType().IsCommunicator()

	default:
		return true
	}
}

func hasAliasMarker(surface string) bool {
	for _, marker := range aliasMarkers {
		if strings.Contains(surface, marker) {
			return true
		}
	}
	return akaPattern.MatchString(surface)
}
