package pipeline

import (
	"strings"

	"github.com/marensch/lorekeep/model"
)

// entTypeMap translates named-entity tags of the annotation collaborator
// into the fixed entity type vocabulary
var entTypeMap = map[string]model.EntityType{
	"PERSON":      model.EntityTypePerson,
	"ORG":         model.EntityTypeOrg,
	"GPE":         model.EntityTypeGPE,
	"LOC":         model.EntityTypePlace,
	"FAC":         model.EntityTypeFacility,
	"DATE":        model.EntityTypeDate,
	"TIME":        model.EntityTypeDate,
	"EVENT":       model.EntityTypeEvent,
	"WORK_OF_ART": model.EntityTypeArtifact,
	"PRODUCT":     model.EntityTypeArtifact,
	"NORP":        model.EntityTypeRace,
}

// nearestTypeCues hint the type of an untagged proper noun from nearby
// common nouns ("the city of Veloria", "Queen Maren")
var nearestTypeCues = map[string]model.EntityType{
	"city":     model.EntityTypeGPE,
	"town":     model.EntityTypeGPE,
	"village":  model.EntityTypeGPE,
	"kingdom":  model.EntityTypeGPE,
	"empire":   model.EntityTypeGPE,
	"land":     model.EntityTypeGPE,
	"mountain": model.EntityTypePlace,
	"forest":   model.EntityTypePlace,
	"river":    model.EntityTypePlace,
	"sea":      model.EntityTypePlace,
	"castle":   model.EntityTypeFacility,
	"temple":   model.EntityTypeFacility,
	"tavern":   model.EntityTypeFacility,
	"guild":    model.EntityTypeOrg,
	"order":    model.EntityTypeOrg,
	"house":    model.EntityTypeOrg,
	"company":  model.EntityTypeOrg,
	"king":     model.EntityTypePerson,
	"queen":    model.EntityTypePerson,
	"lord":     model.EntityTypePerson,
	"lady":     model.EntityTypePerson,
	"captain":  model.EntityTypePerson,
	"god":      model.EntityTypeDeity,
	"goddess":  model.EntityTypeDeity,
	"elf":      model.EntityTypeRace,
	"dwarf":    model.EntityTypeRace,
}

// verbFrame maps a verb lemma (optionally requiring a preposition on the
// object) to a predicate
type verbFrame struct {
	prep      string
	predicate model.Predicate
}

var verbFrames = map[string][]verbFrame{
	"found":     {{"", model.PredicateFounded}},
	"establish": {{"", model.PredicateFounded}},
	"work":      {{"at", model.PredicateWorksAt}, {"for", model.PredicateWorksAt}},
	"live":      {{"in", model.PredicateLivesIn}},
	"reside":    {{"in", model.PredicateLivesIn}},
	"dwell":     {{"in", model.PredicateLivesIn}},
	"bear":      {{"in", model.PredicateBornIn}},
	"marry":     {{"", model.PredicateMarriedTo}},
	"travel":    {{"to", model.PredicateTraveledTo}},
	"journey":   {{"to", model.PredicateTraveledTo}},
	"sail":      {{"to", model.PredicateTraveledTo}},
	"ride":      {{"to", model.PredicateTraveledTo}},
	"move":      {{"to", model.PredicateTraveledTo}},
	"go":        {{"to", model.PredicateTraveledTo}},
	"rule":      {{"", model.PredicateRules}, {"over", model.PredicateRules}},
	"govern":    {{"", model.PredicateRules}},
	"lead":      {{"", model.PredicateLeads}},
	"command":   {{"", model.PredicateLeads}},
	"speak":     {{"to", model.PredicateSpokeTo}, {"with", model.PredicateSpokeTo}},
	"talk":      {{"to", model.PredicateSpokeTo}, {"with", model.PredicateSpokeTo}},
	"tell":      {{"", model.PredicateSpokeTo}},
	"join":      {{"", model.PredicateMemberOf}},
	"be":        {{"in", model.PredicateLocatedIn}, {"at", model.PredicateLocatedIn}},
	"stand":     {{"in", model.PredicateLocatedIn}, {"at", model.PredicateLocatedIn}},
	"lie":       {{"in", model.PredicateLocatedIn}, {"near", model.PredicateLocatedIn}},
}

// roleNouns maps genitive role nouns ("father of X") to a predicate whose
// subject is the role bearer
var roleNouns = map[string]model.Predicate{
	"father":  model.PredicateParentOf,
	"mother":  model.PredicateParentOf,
	"parent":  model.PredicateParentOf,
	"son":     model.PredicateChildOf,
	"daughter": model.PredicateChildOf,
	"child":   model.PredicateChildOf,
	"member":  model.PredicateMemberOf,
	"part":    model.PredicatePartOf,
	"founder": model.PredicateFounded,
	"leader":  model.PredicateLeads,
	"ruler":   model.PredicateRules,
}

const (
	confidenceTagged    = 0.85
	confidenceGuessed   = 0.6
	confidenceAliasCue  = 0.9
	confidenceVerbFrame = 0.75
	confidenceGenitive  = 0.7
	confidenceAppos     = 0.65
)

// PatternExtractor produces raw entity and relation candidates from the
// validated parse. Token statistics suppress spurious single-token entities
// and demote sentence-initial capitalization artifacts.
type PatternExtractor struct {
	stats *TokenStatistics
}

// NewPatternExtractor creates an extractor backed by the run's statistics
func NewPatternExtractor(stats *TokenStatistics) *PatternExtractor {
	return &PatternExtractor{stats: stats}
}

// Extract walks every sentence and returns entity candidates followed by
// relation candidates between them
func (x *PatternExtractor) Extract(doc *model.ParsedDocument) ([]model.EntityCandidate, []model.RelationCandidate) {
	var entities []model.EntityCandidate
	var relations []model.RelationCandidate

	for s := range doc.Sentences {
		sentence := &doc.Sentences[s]
		groups := entityGroups(sentence)

		candidates := make([]model.EntityCandidate, 0, len(groups))
		groupOf := make(map[int]int) // token index -> candidate index
		kept := 0
		for _, g := range groups {
			candidate, ok := x.candidateFromGroup(doc, sentence, g)
			if !ok {
				continue
			}
			candidates = append(candidates, candidate)
			for n := g.first; n <= g.last; n++ {
				groupOf[n] = kept
			}
			kept++
		}
		entities = append(entities, candidates...)

		relations = append(relations, x.sentenceRelations(doc, sentence, groups, candidates, groupOf)...)
	}

	return entities, relations
}

// tokenGroup is a contiguous run of named-entity or proper-noun tokens
type tokenGroup struct {
	first, last int // sentence-local token indices, inclusive
	ent         string
}

func entityGroups(sentence *model.ParsedSentence) []tokenGroup {
	var groups []tokenGroup
	tokens := sentence.Tokens

	for n := 0; n < len(tokens); {
		token := tokens[n]
		switch {
		case token.Ent != "":
			g := tokenGroup{first: n, last: n, ent: token.Ent}
			for n+1 < len(tokens) && tokens[n+1].Ent == token.Ent {
				n++
				g.last = n
			}
			groups = append(groups, g)
		case token.POS == "PROPN":
			g := tokenGroup{first: n, last: n}
			for n+1 < len(tokens) && tokens[n+1].POS == "PROPN" && tokens[n+1].Ent == "" {
				n++
				g.last = n
			}
			groups = append(groups, g)
		}
		n++
	}

	return groups
}

// candidateFromGroup builds an entity candidate, applying the statistics
// suppressions: attached-only fragments never stand alone, and a
// sentence-initial capitalized token with a lowercase echo elsewhere is a
// likely capitalization artifact
func (x *PatternExtractor) candidateFromGroup(doc *model.ParsedDocument, sentence *model.ParsedSentence, g tokenGroup) (model.EntityCandidate, bool) {
	first := sentence.Tokens[g.first]
	last := sentence.Tokens[g.last]
	name := doc.Text[first.Start:last.End]

	candidate := model.EntityCandidate{
		Name:       name,
		Confidence: confidenceGuessed,
		Span: model.Span{
			DocumentID: doc.DocumentID,
			Start:      first.Start,
			End:        last.End,
			Text:       name,
		},
		Source: "pattern",
	}

	if g.ent != "" {
		if mapped, ok := entTypeMap[g.ent]; ok {
			candidate.DeclaredType = mapped
		} else {
			candidate.DeclaredType = model.EntityTypeUnknown
		}
		candidate.Confidence = confidenceTagged
	} else {
		candidate.NearestType = x.nearestTypeHint(sentence, g)
	}

	if g.first == g.last {
		lower := strings.ToLower(first.Text)
		if x.stats.IsAttachedOnlyFragment(lower) {
			return candidate, false
		}
		if g.first == 0 && first.IsCapitalized() && x.stats.HasLowercaseEcho(lower) {
			if g.ent == "" {
				return candidate, false
			}
			candidate.Confidence /= 2
		}
	}

	return candidate, true
}

// nearestTypeHint scans a small window around the group for a type cue noun
func (x *PatternExtractor) nearestTypeHint(sentence *model.ParsedSentence, g tokenGroup) model.EntityType {
	lo := g.first - 3
	if lo < 0 {
		lo = 0
	}
	hi := g.last + 3
	if hi >= len(sentence.Tokens) {
		hi = len(sentence.Tokens) - 1
	}

	best := model.EntityType("")
	bestDist := len(sentence.Tokens)
	for n := lo; n <= hi; n++ {
		if n >= g.first && n <= g.last {
			continue
		}
		cue, ok := nearestTypeCues[strings.ToLower(sentence.Tokens[n].Lemma)]
		if !ok {
			continue
		}
		dist := g.first - n
		if n > g.last {
			dist = n - g.last
		}
		if dist < bestDist {
			best = cue
			bestDist = dist
		}
	}
	return best
}

// sentenceRelations applies the dependency patterns within one sentence
func (x *PatternExtractor) sentenceRelations(doc *model.ParsedDocument, sentence *model.ParsedSentence, groups []tokenGroup, candidates []model.EntityCandidate, groupOf map[int]int) []model.RelationCandidate {
	var relations []model.RelationCandidate
	tokens := sentence.Tokens
	children := childIndex(tokens)

	emit := func(subjIdx, objIdx int, predicate model.Predicate, confidence float64, anchorSubj, anchorObj int) {
		subject := candidates[subjIdx]
		object := candidates[objIdx]
		relations = append(relations, model.RelationCandidate{
			Subject:    subject,
			Object:     object,
			Predicate:  predicate,
			Family:     predicate.Family(),
			Confidence: confidence,
			PathLength: dependencyPathLength(tokens, anchorSubj, anchorObj),
			Surface:    surfaceBetween(doc, subject.Span, object.Span),
		})
	}

	// Verb frames: nsubj + (direct object | prep+pobj)
	for v, token := range tokens {
		if token.POS != "VERB" && token.POS != "AUX" {
			continue
		}
		frames, ok := verbFrames[strings.ToLower(token.Lemma)]
		if !ok {
			continue
		}

		subj := childWithDep(tokens, children[v], "nsubj", "nsubjpass")
		if subj < 0 {
			continue
		}
		subjIdx, ok := groupOf[subj]
		if !ok {
			continue
		}

		for _, frame := range frames {
			obj := -1
			if frame.prep == "" {
				obj = childWithDep(tokens, children[v], "dobj", "obj")
			} else {
				for _, c := range children[v] {
					if tokens[c].Dep == "prep" && strings.EqualFold(tokens[c].Lemma, frame.prep) {
						obj = childWithDep(tokens, children[c], "pobj")
						break
					}
				}
			}
			if obj < 0 {
				continue
			}
			objIdx, ok := groupOf[obj]
			if !ok || objIdx == subjIdx {
				continue
			}
			emit(subjIdx, objIdx, frame.predicate, confidenceVerbFrame, subj, obj)
		}
	}

	// Genitive roles: "S, father of O" (apposition) and
	// "S is the father of O" (copula attribute)
	for r, token := range tokens {
		predicate, ok := roleNouns[strings.ToLower(token.Lemma)]
		if !ok {
			continue
		}

		obj := genitiveObject(tokens, children, r)
		if obj < 0 {
			continue
		}
		objIdx, ok := groupOf[obj]
		if !ok {
			continue
		}

		subj := -1
		switch token.Dep {
		case "appos":
			subj = token.Head
		case "attr":
			subj = childWithDep(tokens, children[token.Head], "nsubj")
		}
		if subj < 0 {
			continue
		}
		subjIdx, ok := groupOf[subj]
		if !ok || subjIdx == objIdx {
			continue
		}
		emit(subjIdx, objIdx, predicate, confidenceGenitive, subj, obj)
	}

	// Apposition between two entity mentions: "Veloria, the City of Masts"
	for j, token := range tokens {
		if token.Dep != "appos" {
			continue
		}
		objIdx, ok := groupOf[j]
		if !ok {
			continue
		}
		subjIdx, ok := groupOf[token.Head]
		if !ok || subjIdx == objIdx {
			continue
		}
		emit(subjIdx, objIdx, model.PredicateSameAs, confidenceAppos, token.Head, j)
	}

	// Explicit alias markers between adjacent mentions
	for n := 0; n+1 < len(groups); n++ {
		a, okA := groupOf[groups[n].first]
		b, okB := groupOf[groups[n+1].first]
		if !okA || !okB || a == b {
			continue
		}
		between := strings.ToLower(doc.Text[candidates[a].Span.End:candidates[b].Span.Start])
		if hasAliasMarker(between) {
			emit(a, b, model.PredicateAliasOf, confidenceAliasCue, groups[n].last, groups[n+1].first)
		}
	}

	return relations
}

// childIndex builds head -> children lookup for one sentence
func childIndex(tokens []model.ParsedToken) map[int][]int {
	children := make(map[int][]int, len(tokens))
	for n, token := range tokens {
		if token.Head == n {
			continue // root
		}
		children[token.Head] = append(children[token.Head], n)
	}
	return children
}

func childWithDep(tokens []model.ParsedToken, candidates []int, deps ...string) int {
	for _, c := range candidates {
		for _, dep := range deps {
			if tokens[c].Dep == dep {
				return c
			}
		}
	}
	return -1
}

// genitiveObject finds the pobj of an "of" preposition attached to the token
func genitiveObject(tokens []model.ParsedToken, children map[int][]int, r int) int {
	for _, c := range children[r] {
		if tokens[c].Dep == "prep" && strings.EqualFold(tokens[c].Lemma, "of") {
			return childWithDep(tokens, children[c], "pobj")
		}
	}
	return -1
}

// dependencyPathLength is the number of edges separating two tokens in the
// sentence's dependency tree
func dependencyPathLength(tokens []model.ParsedToken, from, to int) int {
	if from == to {
		return 0
	}

	adjacent := make(map[int][]int, len(tokens))
	for n, token := range tokens {
		if token.Head == n || token.Head < 0 || token.Head >= len(tokens) {
			continue
		}
		adjacent[n] = append(adjacent[n], token.Head)
		adjacent[token.Head] = append(adjacent[token.Head], n)
	}

	visited := map[int]bool{from: true}
	frontier := []int{from}
	depth := 0
	for len(frontier) > 0 {
		depth++
		var next []int
		for _, n := range frontier {
			for _, m := range adjacent[n] {
				if visited[m] {
					continue
				}
				if m == to {
					return depth
				}
				visited[m] = true
				next = append(next, m)
			}
		}
		frontier = next
	}

	return len(tokens) // disconnected, effectively unreachable
}

// surfaceBetween returns the literal text spanning both mentions
func surfaceBetween(doc *model.ParsedDocument, a, b model.Span) string {
	start := a.Start
	if b.Start < start {
		start = b.Start
	}
	end := a.End
	if b.End > end {
		end = b.End
	}
	if start < 0 || end > len(doc.Text) || start >= end {
		return ""
	}
	return doc.Text[start:end]
}
