package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed aliases.sql
var aliasesSQL string

//go:embed entities.sql
var entitiesSQL string

// Function lists for verification
var AliasesFunctions = []string{
	"init_aliases",
	"select_alias_index",
	"save_alias_index",
	"replace_alias_index",
	"delete_alias_index",
}

var EntitiesFunctions = []string{
	"init_entities",
	"upsert_entity",
	"select_entity",
	"select_entity_by_name",
	"select_entities_by_project",
	"select_entities_by_similarity",
	"update_entity_embedding",
	"delete_entity",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadAliasesSql loads alias-dictionary SQL functions
func LoadAliasesSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, AliasesFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing aliases functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(aliasesSQL)
	if err != nil {
		return fmt.Errorf("error executing aliases SQL: %w", err)
	}

	exist, err := checkFunctions(db, AliasesFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL aliases functions loaded successfully")
	return nil
}

// LoadEntitiesSql loads entity-registry SQL functions
func LoadEntitiesSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, EntitiesFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing entities functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(entitiesSQL)
	if err != nil {
		return fmt.Errorf("error executing entities SQL: %w", err)
	}

	exist, err := checkFunctions(db, EntitiesFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL entities functions loaded successfully")
	return nil
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadAliasesSql(db, force); err != nil {
		return err
	}

	if err := LoadEntitiesSql(db, force); err != nil {
		return err
	}

	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
