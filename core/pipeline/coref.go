package pipeline

import (
	"strings"

	"github.com/marensch/lorekeep/model"
)

var personalPronouns = map[string]bool{
	"he": true, "she": true, "they": true,
	"him": true, "her": true, "them": true,
	"his": true, "hers": true, "theirs": true,
}

// IsPronoun reports whether the mention text is a personal pronoun.
// Pronoun mentions attach spans to an entity but never become aliases.
func IsPronoun(text string) bool {
	return personalPronouns[strings.ToLower(text)]
}

// DeriveCorefLinks produces heuristic coreference links within one document:
// a single-word mention that is a word of an earlier multi-word name binds
// to it ("Sarah" after "Sarah Chen"), and a personal pronoun binds to the
// nearest preceding person mention. Externally supplied links (from a
// coreference collaborator) can simply be appended to the result.
func DeriveCorefLinks(doc *model.ParsedDocument, candidates []model.EntityCandidate) []model.CorefLink {
	var links []model.CorefLink

	links = append(links, partialNameLinks(candidates)...)
	links = append(links, pronounLinks(doc, candidates)...)

	return links
}

func partialNameLinks(candidates []model.EntityCandidate) []model.CorefLink {
	var links []model.CorefLink

	for n := range candidates {
		mention := &candidates[n]
		if strings.ContainsRune(mention.Name, ' ') {
			continue
		}

		var antecedent *model.EntityCandidate
		for m := range candidates {
			earlier := &candidates[m]
			if earlier.Span.Start >= mention.Span.Start {
				continue
			}
			if !nameContainsWord(earlier.Name, mention.Name) {
				continue
			}
			if !typesCompatible(earlier.EffectiveType(), mention.EffectiveType()) {
				continue
			}
			if antecedent == nil || earlier.Span.Start > antecedent.Span.Start {
				antecedent = earlier
			}
		}

		if antecedent != nil {
			links = append(links, model.CorefLink{
				Canonical: antecedent.Name,
				Mention:   mention.Name,
				Span:      mention.Span,
			})
		}
	}

	return links
}

func pronounLinks(doc *model.ParsedDocument, candidates []model.EntityCandidate) []model.CorefLink {
	var links []model.CorefLink

	for _, sentence := range doc.Sentences {
		for _, token := range sentence.Tokens {
			if token.POS != "PRON" || !IsPronoun(token.Text) {
				continue
			}

			var antecedent *model.EntityCandidate
			for m := range candidates {
				c := &candidates[m]
				if c.Span.Start >= token.Start {
					continue
				}
				if c.EffectiveType() != model.EntityTypePerson {
					continue
				}
				if antecedent == nil || c.Span.Start > antecedent.Span.Start {
					antecedent = c
				}
			}
			if antecedent == nil {
				continue
			}

			links = append(links, model.CorefLink{
				Canonical: antecedent.Name,
				Mention:   token.Text,
				Span: model.Span{
					DocumentID: doc.DocumentID,
					Start:      token.Start,
					End:        token.End,
					Text:       token.Text,
				},
			})
		}
	}

	return links
}

// nameContainsWord reports whether word equals one of name's words,
// case-insensitively
func nameContainsWord(name, word string) bool {
	lower := strings.ToLower(word)
	for _, part := range strings.Fields(strings.ToLower(name)) {
		if part == lower {
			return true
		}
	}
	return false
}

// typesCompatible accepts matching types and lets unknowns bind to anything
func typesCompatible(a, b model.EntityType) bool {
	if a == model.EntityTypeUnknown || b == model.EntityTypeUnknown {
		return true
	}
	return a == b
}
