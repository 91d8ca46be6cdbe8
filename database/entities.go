package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/marensch/lorekeep/helper"
	"github.com/marensch/lorekeep/model"
	loresql "github.com/marensch/lorekeep/sql"
	"github.com/pgvector/pgvector-go"
)

// EntitiesDBHandlerFunctions defines the interface for entity registry database operations.
type EntitiesDBHandlerFunctions interface {
	UpsertEntity(project string, entity *model.Entity) error
	SelectEntity(id uuid.UUID) (*model.Entity, error)
	SelectEntityByName(project string, name string) (*model.Entity, error)
	SelectEntitiesByProject(project string, limit int) ([]*model.Entity, error)
	SelectEntitiesBySimilarity(project string, embedding []float32, limit int) ([]*model.Entity, error)
	UpdateEntityEmbedding(id uuid.UUID, embedding []float32) error
	DeleteEntity(id uuid.UUID) error
}

// EntitiesDBHandler handles entity registry database operations
type EntitiesDBHandler struct {
	db *helper.Database
}

// NewEntitiesDBHandler creates a new entities database handler.
// It initializes the database connection and loads entity-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db: db,
	}

	err := loresql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *EntitiesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities();`)
	if err != nil {
		log.Panicf("error initializing entities table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

// UpsertEntity folds a merged entity into the project's registry. On a name
// collision the confidence aggregates by maximum and UNKNOWN never
// overwrites a known type; aliases and spans arrive pre-folded.
func (h *EntitiesDBHandler) UpsertEntity(project string, entity *model.Entity) error {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	aliases, spans, err := marshalEntityParts(entity)
	if err != nil {
		return err
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_entity($1, $2, $3, $4, $5, $6, $7, $8)`,
		entity.ID,
		project,
		entity.Name,
		string(entity.Type),
		entity.Confidence,
		aliases,
		spans,
		entity.Metadata,
	)

	err = scanEntity(row.Scan, entity, false)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectEntity retrieves an entity by ID
func (h *EntitiesDBHandler) SelectEntity(id uuid.UUID) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity($1)`,
		id,
	)

	err := scanEntity(row.Scan, entity, false)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntityByName retrieves an entity by case-insensitive canonical name.
// A missing entity yields (nil, nil), not an error.
func (h *EntitiesDBHandler) SelectEntityByName(project string, name string) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity_by_name($1, $2)`,
		project,
		name,
	)

	err := scanEntity(row.Scan, entity, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntitiesByProject lists a project's entities ordered by name
func (h *EntitiesDBHandler) SelectEntitiesByProject(project string, limit int) ([]*model.Entity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_entities_by_project($1, $2)`,
		project,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.Entity
	for rows.Next() {
		entity := &model.Entity{}
		err := scanEntity(rows.Scan, entity, false)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		entities = append(entities, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

// SelectEntitiesBySimilarity performs vector similarity search over entity
// name embeddings within one project
func (h *EntitiesDBHandler) SelectEntitiesBySimilarity(project string, embedding []float32, limit int) ([]*model.Entity, error) {
	embeddingVector := pgvector.NewVector(embedding)

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_entities_by_similarity($1, $2, $3)`,
		project,
		embeddingVector,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.Entity
	for rows.Next() {
		entity := &model.Entity{}
		err := scanEntity(rows.Scan, entity, true)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		results = append(results, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// UpdateEntityEmbedding stores the name embedding of an entity
func (h *EntitiesDBHandler) UpdateEntityEmbedding(id uuid.UUID, embedding []float32) error {
	embeddingVector := pgvector.NewVector(embedding)

	_, err := h.db.Instance.Exec(
		`SELECT update_entity_embedding($1, $2)`,
		id,
		embeddingVector,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteEntity deletes an entity by ID
func (h *EntitiesDBHandler) DeleteEntity(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_entity($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// marshalEntityParts encodes the JSONB columns of an entity row
func marshalEntityParts(entity *model.Entity) ([]byte, []byte, error) {
	aliases := entity.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	rawAliases, err := json.Marshal(aliases)
	if err != nil {
		return nil, nil, helper.NewError("marshal aliases", err)
	}

	spans := entity.Spans
	if spans == nil {
		spans = []model.Span{}
	}
	rawSpans, err := json.Marshal(spans)
	if err != nil {
		return nil, nil, helper.NewError("marshal spans", err)
	}

	return rawAliases, rawSpans, nil
}

// scanEntity reads one entity row, decoding the JSONB columns
func scanEntity(scan func(dest ...any) error, entity *model.Entity, withSimilarity bool) error {
	var rawAliases, rawSpans []byte

	dest := []any{
		&entity.ID,
		&entity.Project,
		&entity.Name,
		&entity.Type,
		&entity.Confidence,
		&rawAliases,
		&rawSpans,
		&entity.Metadata,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	}
	if withSimilarity {
		dest = append(dest, &entity.Similarity)
	}

	err := scan(dest...)
	if err != nil {
		return err
	}

	err = json.Unmarshal(rawAliases, &entity.Aliases)
	if err != nil {
		return fmt.Errorf("error unmarshalling aliases: %w", err)
	}
	err = json.Unmarshal(rawSpans, &entity.Spans)
	if err != nil {
		return fmt.Errorf("error unmarshalling spans: %w", err)
	}

	return nil
}
