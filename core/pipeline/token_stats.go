package pipeline

import (
	"strings"
	"unicode"

	"github.com/marensch/lorekeep/model"
)

// TokenStatistics holds corpus-wide case and frequency statistics over
// tokens, used to separate capitalization noise from true proper-noun usage
type TokenStatistics struct {
	tokens map[string]*model.TokenInfo
}

// BuildTokenStatistics folds token occurrences into aggregated statistics.
// Pure fold with no side effects, safe to call once per document before
// extraction.
func BuildTokenStatistics(occurrences []model.TokenOccurrence) *TokenStatistics {
	stats := &TokenStatistics{
		tokens: make(map[string]*model.TokenInfo),
	}

	for _, occ := range occurrences {
		info, ok := stats.tokens[occ.Lower]
		if !ok {
			info = &model.TokenInfo{AlwaysEmbeddedInProperName: true}
			stats.tokens[occ.Lower] = info
		}

		info.Total++
		if occ.Capitalized {
			info.CapitalizedCount++
			if occ.StandaloneHead {
				info.StandaloneCapitalizedCount++
			}
		} else {
			info.LowercaseCount++
		}

		// One-way flip: the first counter-example clears the flag permanently
		if !occ.EmbeddedInProperName {
			info.AlwaysEmbeddedInProperName = false
		}
	}

	return stats
}

// Info returns the aggregated counts for a token. Unknown tokens yield a
// zero TokenInfo and false, never a fault.
func (s *TokenStatistics) Info(token string) (model.TokenInfo, bool) {
	info, ok := s.tokens[strings.ToLower(token)]
	if !ok {
		return model.TokenInfo{}, false
	}
	return *info, true
}

// IsAttachedOnlyFragment reports whether the token has at least one
// capitalized occurrence, zero standalone-capitalized occurrences, and was
// always embedded in a longer proper name. Such tokens are suppressed as
// spurious single-token entities (a surname fragment that never appears
// alone).
func (s *TokenStatistics) IsAttachedOnlyFragment(token string) bool {
	info, ok := s.Info(token)
	if !ok {
		return false
	}
	return info.CapitalizedCount > 0 &&
		info.StandaloneCapitalizedCount == 0 &&
		info.AlwaysEmbeddedInProperName
}

// HasLowercaseEcho reports whether the token was ever seen lowercase
// anywhere in the corpus. A capitalized, sentence-initial occurrence of
// such a token is more likely a capitalization artifact than a proper noun.
func (s *TokenStatistics) HasLowercaseEcho(token string) bool {
	info, ok := s.Info(token)
	if !ok {
		return false
	}
	return info.LowercaseCount > 0
}

// OccurrencesFromParse derives token occurrences from the validated parse.
// Non-alphabetic tokens are skipped; proper-name embedding is read off
// contiguous named-entity or proper-noun groups.
func OccurrencesFromParse(doc *model.ParsedDocument) []model.TokenOccurrence {
	var occurrences []model.TokenOccurrence

	for _, sentence := range doc.Sentences {
		groups := properNameGroups(sentence.Tokens)

		for n, token := range sentence.Tokens {
			if !isWordToken(token.Text) {
				continue
			}

			capitalized := token.IsCapitalized()
			groupSize := groups[n]

			occurrences = append(occurrences, model.TokenOccurrence{
				Lower:                strings.ToLower(token.Text),
				Capitalized:          capitalized,
				SentenceInitial:      n == 0,
				StandaloneHead:       capitalized && groupSize == 1,
				EmbeddedInProperName: capitalized && groupSize > 1,
			})
		}
	}

	return occurrences
}

// properNameGroups assigns each token position the size of the contiguous
// proper-name group it belongs to (0 if it belongs to none). A group is a
// run of adjacent tokens that are named-entity tagged or proper nouns.
func properNameGroups(tokens []model.ParsedToken) map[int]int {
	sizes := make(map[int]int, len(tokens))

	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		size := end - start
		for n := start; n < end; n++ {
			sizes[n] = size
		}
		start = -1
	}

	for n, token := range tokens {
		if token.Ent != "" || token.POS == "PROPN" {
			if start < 0 {
				start = n
			}
			continue
		}
		flush(n)
	}
	flush(len(tokens))

	return sizes
}

func isWordToken(text string) bool {
	for _, r := range text {
		return unicode.IsLetter(r)
	}
	return false
}
