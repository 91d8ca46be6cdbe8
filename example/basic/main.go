package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/marensch/lorekeep"
	"github.com/marensch/lorekeep/helper"
	"github.com/marensch/lorekeep/model"
)

const sampleText = `Marcus Beauregard, also known as the Gray Fox, left Veloria at dawn.
The Gray Fox had spent years in the city of Veloria before the war.
Anna, daughter of Marcus, stayed behind at the North Gate.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	l, err := lorekeep.New(dbConfig)
	if err != nil {
		log.Fatalf("Failed to create lorekeep: %v", err)
	}
	defer l.Close()

	// Confirm a dictionary alias up front so the pass-0 matcher can
	// resolve "Gray Fox" mentions to the canonical entity
	project := "basic-example"
	marcusID := uuid.New()
	index, err := l.ConfirmAlias(project, model.AliasEntry{
		EntityID:   marcusID,
		EntityName: "Marcus Beauregard",
		Alias:      "Gray Fox",
		Type:       model.EntityTypePerson,
		Confidence: 0.95,
	})
	if err != nil {
		log.Fatalf("Failed to confirm alias: %v", err)
	}
	fmt.Printf("Alias index at version %d with %d entries\n", index.Version, len(index.Aliases))

	// Without an annotation collaborator the run degrades to dictionary
	// extraction. Point this at a running annotation service for full
	// pattern-based extraction:
	//   l.UseRemoteAnnotator("http://localhost:8070")

	fmt.Println("\nProcessing document...")
	result, err := l.ProcessDocument(context.Background(), project, "doc-1", sampleText)
	if err != nil {
		log.Fatalf("Failed to process document: %v", err)
	}

	fmt.Printf("Extracted %d entities and %d relations (degraded: %v)\n",
		result.Stats.EntityCount, result.Stats.RelationCount, result.Stats.Degraded)

	for _, entity := range result.Entities {
		fmt.Printf("\n--- %s (%s) ---\n", entity.Name, entity.Type)
		fmt.Printf("Confidence: %.2f\n", entity.Confidence)
		for _, span := range entity.Spans {
			fmt.Printf("Mention: %q at [%d, %d)\n", span.Text, span.Start, span.End)
			fmt.Printf("Provenance: %s\n", l.MentionProvenance(entity.ID, span.Text, "doc-1", span.Start))
		}
	}

	// Persist the merged entities into the registry
	if err := l.CommitResult(project, result); err != nil {
		log.Fatalf("Failed to commit result: %v", err)
	}
	fmt.Println("\nCommitted result to the entity registry")

	// Rebuild the dictionary from the registry so future documents match
	// every committed name and alias
	index, err = l.RebuildAliasIndex(project)
	if err != nil {
		log.Fatalf("Failed to rebuild alias index: %v", err)
	}
	fmt.Printf("Rebuilt alias index at version %d with %d entries\n", index.Version, len(index.Aliases))

	fmt.Println("\nBasic example completed successfully!")
}
