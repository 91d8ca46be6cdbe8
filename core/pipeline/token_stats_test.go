package pipeline

import (
	"testing"

	"github.com/marensch/lorekeep/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTokenStatistics(t *testing.T) {
	t.Run("Counts fold monotonically", func(t *testing.T) {
		stats := BuildTokenStatistics([]model.TokenOccurrence{
			{Lower: "chen", Capitalized: true, EmbeddedInProperName: true},
			{Lower: "chen", Capitalized: true, EmbeddedInProperName: true},
			{Lower: "chen", Capitalized: false},
		})

		info, ok := stats.Info("chen")
		require.True(t, ok)
		assert.Equal(t, 3, info.Total)
		assert.Equal(t, 2, info.CapitalizedCount)
		assert.Equal(t, 1, info.LowercaseCount)
	})

	t.Run("AlwaysEmbeddedInProperName flips one way and never back", func(t *testing.T) {
		stats := BuildTokenStatistics([]model.TokenOccurrence{
			{Lower: "chen", Capitalized: true, EmbeddedInProperName: true},
			{Lower: "chen", Capitalized: true, EmbeddedInProperName: false},
			{Lower: "chen", Capitalized: true, EmbeddedInProperName: true},
		})

		info, ok := stats.Info("chen")
		require.True(t, ok)
		assert.False(t, info.AlwaysEmbeddedInProperName, "Expected the flag to stay cleared after a counter-example")
	})

	t.Run("Unknown tokens yield defaults, never a fault", func(t *testing.T) {
		stats := BuildTokenStatistics(nil)

		info, ok := stats.Info("ghost")
		assert.False(t, ok)
		assert.Zero(t, info.Total)
		assert.False(t, stats.IsAttachedOnlyFragment("ghost"))
		assert.False(t, stats.HasLowercaseEcho("ghost"))
	})
}

func TestIsAttachedOnlyFragment(t *testing.T) {
	t.Run("Surname fragment that never appears alone", func(t *testing.T) {
		stats := BuildTokenStatistics([]model.TokenOccurrence{
			{Lower: "beauregard", Capitalized: true, EmbeddedInProperName: true},
			{Lower: "beauregard", Capitalized: true, EmbeddedInProperName: true},
		})

		assert.True(t, stats.IsAttachedOnlyFragment("Beauregard"))
	})

	t.Run("Token seen standalone is not a fragment", func(t *testing.T) {
		stats := BuildTokenStatistics([]model.TokenOccurrence{
			{Lower: "beauregard", Capitalized: true, EmbeddedInProperName: true},
			{Lower: "beauregard", Capitalized: true, StandaloneHead: true},
		})

		assert.False(t, stats.IsAttachedOnlyFragment("beauregard"))
	})

	t.Run("Never-capitalized token is not a fragment", func(t *testing.T) {
		stats := BuildTokenStatistics([]model.TokenOccurrence{
			{Lower: "sword", EmbeddedInProperName: true},
		})

		assert.False(t, stats.IsAttachedOnlyFragment("sword"))
	})
}

func TestHasLowercaseEcho(t *testing.T) {
	stats := BuildTokenStatistics([]model.TokenOccurrence{
		{Lower: "hunter", Capitalized: true, SentenceInitial: true},
		{Lower: "hunter", Capitalized: false},
		{Lower: "veloria", Capitalized: true, StandaloneHead: true},
	})

	assert.True(t, stats.HasLowercaseEcho("Hunter"), "Expected lowercase echo lookup to be case-insensitive")
	assert.False(t, stats.HasLowercaseEcho("Veloria"))
}

func TestOccurrencesFromParse(t *testing.T) {
	doc := sarahChenParse(t)
	occurrences := OccurrencesFromParse(doc)

	byLower := func(lower string) []model.TokenOccurrence {
		var out []model.TokenOccurrence
		for _, occ := range occurrences {
			if occ.Lower == lower {
				out = append(out, occ)
			}
		}
		return out
	}

	t.Run("Punctuation is skipped", func(t *testing.T) {
		assert.Empty(t, byLower("."))
	})

	t.Run("Multi-token names are embedded, single names standalone", func(t *testing.T) {
		chen := byLower("chen")
		require.Len(t, chen, 1)
		assert.True(t, chen[0].EmbeddedInProperName)
		assert.False(t, chen[0].StandaloneHead)

		stanford := byLower("stanford")
		require.Len(t, stanford, 1)
		assert.True(t, stanford[0].StandaloneHead)
	})

	t.Run("Sentence-initial flag is positional", func(t *testing.T) {
		sarah := byLower("sarah")
		require.Len(t, sarah, 2)
		assert.True(t, sarah[0].SentenceInitial)
		assert.True(t, sarah[1].SentenceInitial)
	})
}
