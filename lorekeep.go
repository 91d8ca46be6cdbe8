package lorekeep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marensch/lorekeep/annotate"
	"github.com/marensch/lorekeep/core/cache"
	"github.com/marensch/lorekeep/core/pipeline"
	"github.com/marensch/lorekeep/core/provenance"
	"github.com/marensch/lorekeep/database"
	"github.com/marensch/lorekeep/generate"
	"github.com/marensch/lorekeep/helper"
	"github.com/marensch/lorekeep/model"
	loresql "github.com/marensch/lorekeep/sql"
)

const (
	// Cache sizing for per-project alias indexes
	cacheCapacity = 128
	cacheTTL      = 5 * time.Minute

	// Retries on registry version conflicts before surfacing the error
	conflictRetries = 3

	// Upper bound on entities loaded for an index rebuild
	rebuildLimit = 10000
)

// Lorekeep provides a unified interface to the extraction pipeline and
// all database handlers
type Lorekeep struct {
	DB           *helper.Database
	Aliases      *database.AliasesDBHandler
	Entities     *database.EntitiesDBHandler
	Orchestrator *pipeline.Orchestrator
	Cache        *cache.VersionedCache
	Embedder     *annotate.NameEmbedder // Optional name embedder for similarity suggestions
	// Logging
	log *slog.Logger
	// Per-project write locks
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a new Lorekeep instance with all handlers initialized.
// The orchestrator starts without an annotation collaborator; use
// SetAnnotator() or UseRemoteAnnotator() to attach one, otherwise every
// run degrades to dictionary-only extraction.
func New(config *helper.DatabaseConfiguration) (*Lorekeep, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("lorekeep", config, logger)
	err := loresql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// force=false to not reload if functions already exist
	aliases, err := database.NewAliasesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create aliases handler", err)
	}

	entities, err := database.NewEntitiesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create entities handler", err)
	}

	return &Lorekeep{
		DB:           db,
		Aliases:      aliases,
		Entities:     entities,
		Orchestrator: pipeline.NewOrchestrator(nil),
		Cache:        cache.New(cacheCapacity, cacheTTL),
		log:          logger,
		locks:        map[string]*sync.Mutex{},
	}, nil
}

// Close closes the optional model sessions and the database connection
func (l *Lorekeep) Close() error {
	if l.Embedder != nil {
		if err := l.Embedder.Close(); err != nil {
			return helper.NewError("close embedder", err)
		}
	}
	if l.Orchestrator != nil {
		if fallback, ok := l.Orchestrator.Fallback.(*annotate.FallbackRecognizer); ok && fallback != nil {
			if err := fallback.Close(); err != nil {
				return helper.NewError("close fallback recognizer", err)
			}
		}
	}
	if l.DB != nil && l.DB.Instance != nil {
		return l.DB.Instance.Close()
	}
	return nil
}

// SetAnnotator sets the linguistic-annotation collaborator
func (l *Lorekeep) SetAnnotator(annotator pipeline.Annotator) {
	l.Orchestrator.Annotator = annotator
}

// UseRemoteAnnotator attaches the HTTP annotation client at baseURL,
// bounded by the configured collaborator timeout
func (l *Lorekeep) UseRemoteAnnotator(baseURL string) {
	l.Orchestrator.Annotator = annotate.NewClient(baseURL, l.Orchestrator.Config.CollaboratorTimeout)
}

// SetFallback sets the recognizer used for degraded runs
func (l *Lorekeep) SetFallback(recognizer pipeline.Recognizer) {
	l.Orchestrator.Fallback = recognizer
}

// UseDefaultFallback sets up the local NER fallback recognizer with the
// distilbert-NER model
func (l *Lorekeep) UseDefaultFallback() error {
	recognizer, err := annotate.NewFallbackRecognizer()
	if err != nil {
		return helper.NewError("create fallback recognizer", err)
	}
	l.Orchestrator.Fallback = recognizer
	return nil
}

// SetHinter sets the optional type hinter for untyped candidates
func (l *Lorekeep) SetHinter(hinter pipeline.TypeHinter) {
	l.Orchestrator.Hinter = hinter
}

// UseGenerativeHinter sets up the generative-text backend as type hinter.
// An empty apiKey falls back to the ANTHROPIC_API_KEY environment variable.
func (l *Lorekeep) UseGenerativeHinter(apiKey string) error {
	hinter, err := generate.NewClient(apiKey)
	if err != nil {
		return helper.NewError("create generative hinter", err)
	}
	l.Orchestrator.Hinter = hinter
	return nil
}

// SetEmbedder sets the name embedder for similarity suggestions
func (l *Lorekeep) SetEmbedder(embedder *annotate.NameEmbedder) {
	l.Embedder = embedder
}

// UseDefaultEmbedder sets up the default name embedder with the
// all-MiniLM-L6-v2 model (384 dimensions)
func (l *Lorekeep) UseDefaultEmbedder() error {
	embedder, err := annotate.NewNameEmbedder()
	if err != nil {
		return helper.NewError("create name embedder", err)
	}
	l.Embedder = embedder
	return nil
}

// ProcessDocument runs the full extraction pipeline for one document
// against the project's alias index. The index is served from the
// versioned cache; dictionary mutations invalidate it.
func (l *Lorekeep) ProcessDocument(ctx context.Context, project string, documentID string, text string) (*model.PipelineResult, error) {
	index, err := l.aliasIndex(project)
	if err != nil {
		return nil, helper.NewError("load alias index", err)
	}

	result, err := l.Orchestrator.Run(ctx, project, documentID, text, index, nil)
	if err != nil {
		return nil, err
	}

	l.log.Info("Processed document",
		slog.String("project", project),
		slog.String("document_id", documentID),
		slog.Int("entities", result.Stats.EntityCount),
		slog.Int("relations", result.Stats.RelationCount),
		slog.Bool("degraded", result.Stats.Degraded))

	return result, nil
}

// CommitResult persists the merged entities of one pipeline run under the
// project lock. When an embedder is set, every committed entity also gets
// a fresh name embedding; embedding failures are logged, never fatal.
func (l *Lorekeep) CommitResult(project string, result *model.PipelineResult) error {
	if result == nil {
		return helper.NewError("commit result", fmt.Errorf("result is nil"))
	}

	lock := l.projectLock(project)
	lock.Lock()
	defer lock.Unlock()

	for i, entity := range result.Entities {
		if err := l.Entities.UpsertEntity(project, entity); err != nil {
			return helper.NewError(fmt.Sprintf("upsert entity %d", i), err)
		}

		if l.Embedder == nil {
			continue
		}
		embedding, err := l.Embedder.Embed(entity.Name)
		if err != nil {
			l.log.Warn("Skipping name embedding", slog.String("entity", entity.Name), slog.String("error", err.Error()))
			continue
		}
		if err := l.Entities.UpdateEntityEmbedding(entity.ID, embedding); err != nil {
			return helper.NewError(fmt.Sprintf("update embedding of entity %d", i), err)
		}
	}

	l.log.Info("Committed result",
		slog.String("project", project),
		slog.String("document_id", result.DocumentID),
		slog.Int("entities", len(result.Entities)))

	return nil
}

// ConfirmAlias adds or refreshes a dictionary entry and saves the index
// under version discipline. A zero ConfirmedAt is stamped with now.
func (l *Lorekeep) ConfirmAlias(project string, entry model.AliasEntry) (*model.AliasIndex, error) {
	if entry.ConfirmedAt.IsZero() {
		entry.ConfirmedAt = time.Now()
	}

	return l.mutateAliasIndex(project, "confirm alias", func(index *model.AliasIndex) bool {
		index.Upsert(entry)
		return true
	})
}

// RemoveAlias drops all entries matching the (entityID, alias) key.
// Removing a key that is not present is not a mutation and bumps nothing.
func (l *Lorekeep) RemoveAlias(project string, entityID uuid.UUID, alias string) (*model.AliasIndex, error) {
	return l.mutateAliasIndex(project, "remove alias", func(index *model.AliasIndex) bool {
		return index.Remove(entityID, alias) > 0
	})
}

// RebuildAliasIndex rebuilds the project's dictionary from the entity
// registry: every entity contributes its canonical name and all its
// confirmed aliases. The rebuilt index replaces the stored one outright
// with the version reset to 0.
func (l *Lorekeep) RebuildAliasIndex(project string) (*model.AliasIndex, error) {
	lock := l.projectLock(project)
	lock.Lock()
	defer lock.Unlock()

	entities, err := l.Entities.SelectEntitiesByProject(project, rebuildLimit)
	if err != nil {
		return nil, helper.NewError("load project entities", err)
	}

	index := model.NewAliasIndex()
	for _, entity := range entities {
		surfaces := append([]string{entity.Name}, entity.Aliases...)
		for _, surface := range surfaces {
			index.Upsert(model.AliasEntry{
				EntityID:    entity.ID,
				EntityName:  entity.Name,
				Alias:       surface,
				Type:        entity.Type,
				Confidence:  entity.Confidence,
				ConfirmedAt: time.Now(),
			})
		}
	}

	replaced, err := l.Aliases.ReplaceAliasIndex(project, index)
	if err != nil {
		return nil, helper.NewError("rebuild alias index", err)
	}

	l.Cache.Invalidate()
	l.log.Info("Rebuilt alias index",
		slog.String("project", project),
		slog.Int("aliases", len(replaced.Aliases)))

	return replaced, nil
}

// MentionProvenance returns the deterministic provenance identifier of
// one alias mention
func (l *Lorekeep) MentionProvenance(entityID uuid.UUID, alias string, documentID string, position int) string {
	return provenance.Encode(entityID, alias, documentID, position)
}

// DecodeProvenance recovers the mention fields from a provenance identifier
func (l *Lorekeep) DecodeProvenance(id string) (*provenance.Mention, error) {
	return provenance.Decode(id)
}

// SimilarEntities suggests registry entities whose names embed close to
// the given name, for cross-document duplicate review
func (l *Lorekeep) SimilarEntities(project string, name string, limit int) ([]*model.Entity, error) {
	if l.Embedder == nil {
		return nil, helper.NewError("similar entities", fmt.Errorf("embedder not set, use SetEmbedder() first"))
	}

	embedding, err := l.Embedder.Embed(name)
	if err != nil {
		return nil, helper.NewError("embed name", err)
	}

	return l.Entities.SelectEntitiesBySimilarity(project, embedding, limit)
}

// ChangeIndexType changes the name-embedding index type between HNSW and IVFFlat
func (l *Lorekeep) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return l.Entities.ChangeIndexType(ctx, indexType, params)
}

// mutateAliasIndex applies mutate under the project lock with a
// load-mutate-save cycle. Concurrent writers from other processes are
// retried a few times before the registry conflict is surfaced. Every
// successful mutation invalidates the cache.
func (l *Lorekeep) mutateAliasIndex(project string, context string, mutate func(index *model.AliasIndex) bool) (*model.AliasIndex, error) {
	lock := l.projectLock(project)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		index, err := l.Aliases.SelectAliasIndex(project)
		if err != nil {
			return nil, helper.NewError(context, err)
		}

		if !mutate(index) {
			return index, nil
		}

		saved, err := l.Aliases.SaveAliasIndex(project, index, index.Version)
		if err == nil {
			l.Cache.Invalidate()
			l.log.Info("Saved alias index",
				slog.String("project", project),
				slog.Uint64("version", saved.Version),
				slog.Int("aliases", len(saved.Aliases)))
			return saved, nil
		}
		if !errors.Is(err, model.ErrRegistryConflict) {
			return nil, helper.NewError(context, err)
		}
		lastErr = err
	}

	return nil, helper.NewError(context, lastErr)
}

// aliasIndex serves the project's dictionary from the cache, falling back
// to the registry on a miss
func (l *Lorekeep) aliasIndex(project string) (*model.AliasIndex, error) {
	key := cache.BuildKey(project, "alias_index", nil, l.Cache.Version())
	if cached, ok := l.Cache.Get(key); ok {
		return cached.(*model.AliasIndex), nil
	}

	index, err := l.Aliases.SelectAliasIndex(project)
	if err != nil {
		return nil, err
	}

	l.Cache.Set(key, index)
	return index, nil
}

func (l *Lorekeep) projectLock(project string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[project]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[project] = lock
	}
	return lock
}
