package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/marensch/lorekeep/helper"
	"github.com/marensch/lorekeep/model"
	loresql "github.com/marensch/lorekeep/sql"
)

// AliasesDBHandlerFunctions defines the interface for alias dictionary database operations.
type AliasesDBHandlerFunctions interface {
	SelectAliasIndex(project string) (*model.AliasIndex, error)
	SaveAliasIndex(project string, index *model.AliasIndex, expectedVersion uint64) (*model.AliasIndex, error)
	ReplaceAliasIndex(project string, index *model.AliasIndex) (*model.AliasIndex, error)
	DeleteAliasIndex(project string) error
}

// AliasesDBHandler handles alias dictionary persistence. Each project owns
// one versioned JSONB row; every structural mutation bumps the version by
// exactly 1 through a compare-and-swap write.
type AliasesDBHandler struct {
	db *helper.Database
}

// NewAliasesDBHandler creates a new aliases database handler.
// It initializes the database connection and loads alias-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewAliasesDBHandler(db *helper.Database, force bool) (*AliasesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	aliasesDbHandler := &AliasesDBHandler{
		db: db,
	}

	err := loresql.LoadAliasesSql(aliasesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load aliases sql", err)
	}

	err = aliasesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized AliasesDBHandler")

	return aliasesDbHandler, nil
}

// CreateTable creates the 'alias_indexes' table in the database.
// If the table already exists, it does not create it again.
func (h *AliasesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_aliases();`)
	if err != nil {
		log.Panicf("error initializing alias_indexes table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table alias_indexes")

	return nil
}

// SelectAliasIndex loads the alias index of a project. A project without a
// stored row yields a fresh empty index at version 0, never an error.
func (h *AliasesDBHandler) SelectAliasIndex(project string) (*model.AliasIndex, error) {
	var raw []byte
	index := model.NewAliasIndex()

	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_alias_index($1)`,
		project,
	)

	err := row.Scan(
		&index.Version,
		&raw,
		&index.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return index, nil
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	err = json.Unmarshal(raw, &index.Aliases)
	if err != nil {
		return nil, helper.NewError("unmarshal aliases", err)
	}

	return index, nil
}

// SaveAliasIndex persists the full index with a version check: the write
// succeeds only if the stored version still equals expectedVersion, and bumps
// it by exactly 1. A concurrent mutation surfaces model.ErrRegistryConflict.
func (h *AliasesDBHandler) SaveAliasIndex(project string, index *model.AliasIndex, expectedVersion uint64) (*model.AliasIndex, error) {
	entries, err := json.Marshal(index.Aliases)
	if err != nil {
		return nil, helper.NewError("marshal aliases", err)
	}

	saved := &model.AliasIndex{Aliases: index.Aliases}
	var raw []byte

	row := h.db.Instance.QueryRow(
		`SELECT * FROM save_alias_index($1, $2, $3)`,
		project,
		expectedVersion,
		entries,
	)

	err = row.Scan(
		&saved.Version,
		&raw,
		&saved.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: alias index of project %s moved past version %d", model.ErrRegistryConflict, project, expectedVersion)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return saved, nil
}

// ReplaceAliasIndex overwrites a project's index outright and resets the
// version to 0, bypassing the version check. Rebuilds from the entity
// registry use this; incremental mutations go through SaveAliasIndex.
func (h *AliasesDBHandler) ReplaceAliasIndex(project string, index *model.AliasIndex) (*model.AliasIndex, error) {
	entries, err := json.Marshal(index.Aliases)
	if err != nil {
		return nil, helper.NewError("marshal aliases", err)
	}

	saved := &model.AliasIndex{Aliases: index.Aliases}
	var raw []byte

	row := h.db.Instance.QueryRow(
		`SELECT * FROM replace_alias_index($1, $2)`,
		project,
		entries,
	)

	err = row.Scan(
		&saved.Version,
		&raw,
		&saved.UpdatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return saved, nil
}

// DeleteAliasIndex removes a project's alias index entirely
func (h *AliasesDBHandler) DeleteAliasIndex(project string) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_alias_index($1)`,
		project,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}
