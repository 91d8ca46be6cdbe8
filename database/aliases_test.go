package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marensch/lorekeep/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAliasesNewAliasesDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewAliasesDBHandler", func(t *testing.T) {
		aliasesDbHandler, err := NewAliasesDBHandler(database, true)
		assert.NoError(t, err, "Expected NewAliasesDBHandler to not return an error")
		require.NotNil(t, aliasesDbHandler, "Expected NewAliasesDBHandler to return a non-nil instance")
		require.NotNil(t, aliasesDbHandler.db, "Expected NewAliasesDBHandler to have a non-nil database instance")
		require.NotNil(t, aliasesDbHandler.db.Instance, "Expected NewAliasesDBHandler to have a non-nil database connection instance")
	})

	t.Run("Invalid call NewAliasesDBHandler with nil database", func(t *testing.T) {
		_, err := NewAliasesDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating AliasesDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestAliasesSelectAliasIndex(t *testing.T) {
	database := initDB(t)

	aliasesDbHandler, err := NewAliasesDBHandler(database, true)
	require.NoError(t, err)

	t.Run("Unknown project yields a fresh empty index", func(t *testing.T) {
		index, err := aliasesDbHandler.SelectAliasIndex("never-written")
		assert.NoError(t, err)
		require.NotNil(t, index)
		assert.Equal(t, uint64(0), index.Version)
		assert.Empty(t, index.Aliases)
	})
}

func TestAliasesSaveAliasIndex(t *testing.T) {
	database := initDB(t)

	aliasesDbHandler, err := NewAliasesDBHandler(database, true)
	require.NoError(t, err)

	entry := model.AliasEntry{
		EntityID:    uuid.New(),
		EntityName:  "Andrew Beauregard",
		Alias:       "Beauregard",
		Type:        model.EntityTypePerson,
		Confidence:  0.9,
		ConfirmedAt: time.Now(),
	}

	t.Run("First save creates the row at version 1", func(t *testing.T) {
		index := model.NewAliasIndex()
		index.Upsert(entry)

		saved, err := aliasesDbHandler.SaveAliasIndex("project-save", index, 0)
		assert.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, uint64(1), saved.Version, "Expected the version to bump by exactly 1")

		// Cleanup
		defer func() {
			assert.NoError(t, aliasesDbHandler.DeleteAliasIndex("project-save"))
		}()

		loaded, err := aliasesDbHandler.SelectAliasIndex("project-save")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), loaded.Version)
		require.Len(t, loaded.Aliases, 1)
		assert.Equal(t, entry.EntityID, loaded.Aliases[0].EntityID)
		assert.Equal(t, "Beauregard", loaded.Aliases[0].Alias)
		assert.WithinDuration(t, time.Now(), loaded.UpdatedAt, 5*time.Second, "Expected UpdatedAt to be refreshed")
	})

	t.Run("Each save bumps the version by exactly 1", func(t *testing.T) {
		defer func() {
			assert.NoError(t, aliasesDbHandler.DeleteAliasIndex("project-bump"))
		}()

		index := model.NewAliasIndex()
		index.Upsert(entry)

		saved, err := aliasesDbHandler.SaveAliasIndex("project-bump", index, 0)
		require.NoError(t, err)

		index.Remove(entry.EntityID, entry.Alias)
		saved, err = aliasesDbHandler.SaveAliasIndex("project-bump", index, saved.Version)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), saved.Version)

		loaded, err := aliasesDbHandler.SelectAliasIndex("project-bump")
		require.NoError(t, err)
		assert.Empty(t, loaded.Aliases)
	})

	t.Run("Stale expected version is a registry conflict", func(t *testing.T) {
		defer func() {
			assert.NoError(t, aliasesDbHandler.DeleteAliasIndex("project-conflict"))
		}()

		index := model.NewAliasIndex()
		index.Upsert(entry)

		_, err := aliasesDbHandler.SaveAliasIndex("project-conflict", index, 0)
		require.NoError(t, err)

		// Writing again with the already-consumed version must fail
		_, err = aliasesDbHandler.SaveAliasIndex("project-conflict", index, 0)
		assert.ErrorIs(t, err, model.ErrRegistryConflict)
	})

	t.Run("Replace overwrites outright and resets the version to 0", func(t *testing.T) {
		defer func() {
			assert.NoError(t, aliasesDbHandler.DeleteAliasIndex("project-replace"))
		}()

		index := model.NewAliasIndex()
		index.Upsert(entry)

		saved, err := aliasesDbHandler.SaveAliasIndex("project-replace", index, 0)
		require.NoError(t, err)
		saved, err = aliasesDbHandler.SaveAliasIndex("project-replace", index, saved.Version)
		require.NoError(t, err)
		require.Equal(t, uint64(2), saved.Version)

		rebuilt := model.NewAliasIndex()
		rebuilt.Upsert(model.AliasEntry{
			EntityID:    uuid.New(),
			EntityName:  "Veloria",
			Alias:       "the Jewel",
			Type:        model.EntityTypeGPE,
			Confidence:  0.8,
			ConfirmedAt: time.Now(),
		})

		replaced, err := aliasesDbHandler.ReplaceAliasIndex("project-replace", rebuilt)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), replaced.Version, "Expected the replace to reset the version to 0")

		loaded, err := aliasesDbHandler.SelectAliasIndex("project-replace")
		require.NoError(t, err)
		assert.Equal(t, uint64(0), loaded.Version)
		require.Len(t, loaded.Aliases, 1)
		assert.Equal(t, "the Jewel", loaded.Aliases[0].Alias, "Expected the old entries to be gone")

		// Incremental writes pick the version discipline back up from 0
		saved, err = aliasesDbHandler.SaveAliasIndex("project-replace", loaded, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), saved.Version)
	})

	t.Run("Replace on a project without a row creates it at version 0", func(t *testing.T) {
		defer func() {
			assert.NoError(t, aliasesDbHandler.DeleteAliasIndex("project-replace-fresh"))
		}()

		index := model.NewAliasIndex()
		index.Upsert(entry)

		replaced, err := aliasesDbHandler.ReplaceAliasIndex("project-replace-fresh", index)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), replaced.Version)
	})

	t.Run("Projects are isolated from each other", func(t *testing.T) {
		defer func() {
			assert.NoError(t, aliasesDbHandler.DeleteAliasIndex("project-a"))
			assert.NoError(t, aliasesDbHandler.DeleteAliasIndex("project-b"))
		}()

		indexA := model.NewAliasIndex()
		indexA.Upsert(entry)
		_, err := aliasesDbHandler.SaveAliasIndex("project-a", indexA, 0)
		require.NoError(t, err)

		loadedB, err := aliasesDbHandler.SelectAliasIndex("project-b")
		require.NoError(t, err)
		assert.Equal(t, uint64(0), loadedB.Version)
		assert.Empty(t, loadedB.Aliases)

		_, err = aliasesDbHandler.SaveAliasIndex("project-b", model.NewAliasIndex(), 0)
		assert.NoError(t, err, "Expected project-a's version to not constrain project-b")
	})
}
