package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marensch/lorekeep/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntitiesNewEntitiesDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewEntitiesDBHandler", func(t *testing.T) {
		entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
		assert.NoError(t, err, "Expected NewEntitiesDBHandler to not return an error")
		require.NotNil(t, entitiesDbHandler, "Expected NewEntitiesDBHandler to return a non-nil instance")
		require.NotNil(t, entitiesDbHandler.db, "Expected NewEntitiesDBHandler to have a non-nil database instance")
		require.NotNil(t, entitiesDbHandler.db.Instance, "Expected NewEntitiesDBHandler to have a non-nil database connection instance")
	})

	t.Run("Invalid call NewEntitiesDBHandler with nil database", func(t *testing.T) {
		_, err := NewEntitiesDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating EntitiesDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestEntitiesUpsert(t *testing.T) {
	database := initDB(t)

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err)

	t.Run("Insert entity", func(t *testing.T) {
		entity := &model.Entity{
			Name:       "Sarah Chen",
			Type:       model.EntityTypePerson,
			Confidence: 0.85,
			Aliases:    []string{"Sarah"},
			Spans:      []model.Span{{DocumentID: "doc-1", Start: 0, End: 10, Text: "Sarah Chen"}},
			Metadata:   map[string]interface{}{"source": "pattern"},
		}

		err := entitiesDbHandler.UpsertEntity("project-upsert", entity)
		assert.NoError(t, err, "Expected UpsertEntity to not return an error")
		assert.NotEqual(t, uuid.Nil, entity.ID, "Expected inserted entity to have an ID")
		assert.WithinDuration(t, entity.CreatedAt, time.Now(), 2*time.Second, "Expected CreatedAt to be set")

		// Cleanup
		assert.NoError(t, entitiesDbHandler.DeleteEntity(entity.ID))
	})

	t.Run("Upsert on name collision keeps identity and max confidence", func(t *testing.T) {
		first := &model.Entity{
			Name:       "Marcus",
			Type:       model.EntityTypePerson,
			Confidence: 0.9,
		}
		err := entitiesDbHandler.UpsertEntity("project-upsert", first)
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, entitiesDbHandler.DeleteEntity(first.ID))
		}()

		second := &model.Entity{
			Name:       "marcus",
			Type:       model.EntityTypeUnknown,
			Confidence: 0.4,
			Aliases:    []string{"the Gray Fox"},
		}
		err = entitiesDbHandler.UpsertEntity("project-upsert", second)
		assert.NoError(t, err)

		assert.Equal(t, first.ID, second.ID, "Expected the case-insensitive name collision to fold")
		assert.Equal(t, 0.9, second.Confidence, "Expected confidence to aggregate by maximum")
		assert.Equal(t, model.EntityTypePerson, second.Type, "Expected UNKNOWN to not overwrite a known type")
	})
}

func TestEntitiesSelect(t *testing.T) {
	database := initDB(t)

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err)

	entity := &model.Entity{
		Name:       "Veloria",
		Type:       model.EntityTypeGPE,
		Confidence: 0.8,
		Spans:      []model.Span{{DocumentID: "doc-1", Start: 20, End: 27, Text: "Veloria"}},
	}
	require.NoError(t, entitiesDbHandler.UpsertEntity("project-select", entity))
	defer func() {
		assert.NoError(t, entitiesDbHandler.DeleteEntity(entity.ID))
	}()

	t.Run("Select entity by ID", func(t *testing.T) {
		loaded, err := entitiesDbHandler.SelectEntity(entity.ID)
		assert.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, "Veloria", loaded.Name)
		assert.Equal(t, model.EntityTypeGPE, loaded.Type)
		require.Len(t, loaded.Spans, 1)
		assert.Equal(t, "doc-1", loaded.Spans[0].DocumentID)
	})

	t.Run("Select entity by name is case-insensitive", func(t *testing.T) {
		loaded, err := entitiesDbHandler.SelectEntityByName("project-select", "veloria")
		assert.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, entity.ID, loaded.ID)
	})

	t.Run("Missing entity by name yields nil without error", func(t *testing.T) {
		loaded, err := entitiesDbHandler.SelectEntityByName("project-select", "nobody")
		assert.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("Select entities by project", func(t *testing.T) {
		entities, err := entitiesDbHandler.SelectEntitiesByProject("project-select", 10)
		assert.NoError(t, err)
		require.Len(t, entities, 1)
		assert.Equal(t, "Veloria", entities[0].Name)
	})

	t.Run("Other projects see nothing", func(t *testing.T) {
		entities, err := entitiesDbHandler.SelectEntitiesByProject("project-other", 10)
		assert.NoError(t, err)
		assert.Empty(t, entities)
	})
}

func TestEntitiesSimilarity(t *testing.T) {
	database := initDB(t)

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err)

	embedding := func(seed float32) []float32 {
		v := make([]float32, 384)
		v[0] = 1
		v[1] = seed
		return v
	}

	near := &model.Entity{Name: "Sarah Chen", Type: model.EntityTypePerson, Confidence: 0.9}
	far := &model.Entity{Name: "Veloria", Type: model.EntityTypeGPE, Confidence: 0.8}
	require.NoError(t, entitiesDbHandler.UpsertEntity("project-sim", near))
	require.NoError(t, entitiesDbHandler.UpsertEntity("project-sim", far))
	defer func() {
		assert.NoError(t, entitiesDbHandler.DeleteEntity(near.ID))
		assert.NoError(t, entitiesDbHandler.DeleteEntity(far.ID))
	}()

	require.NoError(t, entitiesDbHandler.UpdateEntityEmbedding(near.ID, embedding(0.1)))
	require.NoError(t, entitiesDbHandler.UpdateEntityEmbedding(far.ID, embedding(25)))

	t.Run("Closest embedding ranks first", func(t *testing.T) {
		results, err := entitiesDbHandler.SelectEntitiesBySimilarity("project-sim", embedding(0.1), 10)
		assert.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "Sarah Chen", results[0].Name)
		assert.Greater(t, results[0].Similarity, results[1].Similarity)
	})

	t.Run("Entities without embeddings are excluded", func(t *testing.T) {
		bare := &model.Entity{Name: "Marcus", Type: model.EntityTypePerson, Confidence: 0.7}
		require.NoError(t, entitiesDbHandler.UpsertEntity("project-sim", bare))
		defer func() {
			assert.NoError(t, entitiesDbHandler.DeleteEntity(bare.ID))
		}()

		results, err := entitiesDbHandler.SelectEntitiesBySimilarity("project-sim", embedding(0.1), 10)
		assert.NoError(t, err)
		assert.Len(t, results, 2)
	})
}

func TestEntitiesChangeIndexType(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err)

	t.Run("Change to ivfflat and back to hnsw", func(t *testing.T) {
		err := entitiesDbHandler.ChangeIndexType(ctx, "ivfflat", map[string]interface{}{"lists": 50})
		assert.NoError(t, err)

		err = entitiesDbHandler.ChangeIndexType(ctx, "hnsw", nil)
		assert.NoError(t, err)
	})

	t.Run("Unsupported index type fails", func(t *testing.T) {
		err := entitiesDbHandler.ChangeIndexType(ctx, "btree", nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported index type")
	})
}
