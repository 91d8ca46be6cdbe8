package pipeline

import (
	"regexp"
	"sort"

	"github.com/marensch/lorekeep/model"
)

// AliasPass runs the pass-0 matcher: it recognizes already-confirmed
// aliases in text before any pattern-based extraction.
//
// Entries are processed longest-alias-first so a multi-word alias always
// wins over any shorter alias it contains. Occurrences are whole-word and
// case-insensitive. A hit is accepted only if its character range does not
// overlap an already-accepted hit (first-accepted-wins under the
// length-descending order; entries of equal length keep index order, which
// makes the tie-break stable but deliberately confidence-blind).
//
// Returned matches never overlap and are sorted by ascending start offset.
func AliasPass(text string, index *model.AliasIndex) []model.AliasMatch {
	if index == nil || len(index.Aliases) == 0 || text == "" {
		return nil
	}

	entries := make([]model.AliasEntry, len(index.Aliases))
	copy(entries, index.Aliases)
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].Alias) > len(entries[j].Alias)
	})

	var accepted []model.AliasMatch
	for _, entry := range entries {
		if entry.Alias == "" {
			continue
		}

		pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(entry.Alias) + `\b`)
		if err != nil {
			continue
		}

		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if overlapsAny(accepted, start, end) {
				continue
			}
			accepted = append(accepted, model.AliasMatch{
				Start:       start,
				End:         end,
				MatchedText: text[start:end],
				EntityID:    entry.EntityID,
				EntityName:  entry.EntityName,
				Type:        entry.Type,
				Confidence:  entry.Confidence,
				Source:      model.MatchSourceAlias,
			})
		}
	}

	sort.Slice(accepted, func(i, j int) bool {
		return accepted[i].Start < accepted[j].Start
	})

	return accepted
}

func overlapsAny(matches []model.AliasMatch, start, end int) bool {
	for n := range matches {
		if matches[n].Overlaps(start, end) {
			return true
		}
	}
	return false
}
