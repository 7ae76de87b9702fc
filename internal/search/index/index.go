// Package index wraps the bleve full-text index holding one document per
// searchable question.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"overflow/pkg/platform/sentinel"
)

const defaultLimit = 20

var storedFields = []string{"title", "content", "tags", "created_at", "answer_count", "has_accepted_answer"}

// Index is safe for concurrent use.
type Index struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the index.
type Options struct {
	DataPath string // empty keeps the index in memory
	Logger   *slog.Logger
}

// Open opens the index under DataPath, creating it when missing. An index
// whose mapping version differs, or that fails to open, is recreated; it
// reports rebuilt=true so the caller can re-derive documents from the
// projection store.
func Open(opts Options) (idx *Index, rebuilt bool, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.DataPath == "" {
		mem, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, false, fmt.Errorf("create in-memory index: %w", err)
		}
		return &Index{index: mem, logger: logger}, false, nil
	}

	if err := os.MkdirAll(opts.DataPath, 0o755); err != nil {
		return nil, false, fmt.Errorf("create index dir: %w", err)
	}
	indexPath := filepath.Join(opts.DataPath, "questions.bleve")
	versionPath := filepath.Join(opts.DataPath, "questions.version")

	var bi bleve.Index
	if _, statErr := os.Stat(indexPath); statErr == nil {
		existing, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil || string(existing) != mappingVersion:
			logger.Info("search index mapping changed, rebuilding",
				"old_version", string(existing),
				"new_version", mappingVersion,
			)
		default:
			bi, err = bleve.Open(indexPath)
			if err != nil {
				logger.Warn("failed to open search index, recreating", "path", indexPath, "error", err)
				bi = nil
			}
		}
		if bi == nil {
			if err := os.RemoveAll(indexPath); err != nil {
				return nil, false, fmt.Errorf("remove old index: %w", err)
			}
			rebuilt = true
		}
	}

	if bi == nil {
		bi, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, false, fmt.Errorf("create index: %w", err)
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
			logger.Warn("failed to write search index version", "error", err)
		}
		logger.Info("created search index", "path", indexPath, "mapping_version", mappingVersion)
	} else {
		logger.Info("opened search index", "path", indexPath)
	}

	return &Index{index: bi, path: indexPath, logger: logger}, rebuilt, nil
}

func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}

// Upsert replaces the whole document for doc.ID.
func (i *Index) Upsert(doc Document) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if err := i.index.Index(doc.ID, doc.toMap()); err != nil {
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes a document. Deleting an absent id succeeds.
func (i *Index) Delete(id string) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if err := i.index.Delete(id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.DocCount()
}

// Get returns the document for id or sentinel.ErrNotFound.
func (i *Index) Get(ctx context.Context, id string) (Document, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{id}), 1, 0, false)
	req.Fields = storedFields
	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return Document{}, fmt.Errorf("get %s: %w", id, err)
	}
	if len(res.Hits) == 0 {
		return Document{}, sentinel.ErrNotFound
	}
	return fromFields(res.Hits[0].ID, res.Hits[0].Fields), nil
}

// Query is a parsed search request.
type Query struct {
	Text  string
	Tag   string
	Limit int
}

// Search matches Text against title and content, restricted to documents
// carrying Tag when set. Empty Text matches everything, newest first.
func (i *Index) Search(ctx context.Context, q Query) ([]Document, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	req := bleve.NewSearchRequestOptions(buildQuery(q), limit, 0, false)
	req.Fields = storedFields
	if q.Text == "" {
		req.SortBy([]string{"-created_at", "_id"})
	}

	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}
	docs := make([]Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		docs = append(docs, fromFields(hit.ID, hit.Fields))
	}
	return docs, nil
}

func buildQuery(q Query) query.Query {
	var text query.Query
	if q.Text == "" {
		text = bleve.NewMatchAllQuery()
	} else {
		title := bleve.NewMatchQuery(q.Text)
		title.SetField("title")
		title.SetBoost(2.0)
		content := bleve.NewMatchQuery(q.Text)
		content.SetField("content")
		text = bleve.NewDisjunctionQuery(title, content)
	}
	if q.Tag == "" {
		return text
	}
	tag := bleve.NewTermQuery(q.Tag)
	tag.SetField("tags")
	return bleve.NewConjunctionQuery(text, tag)
}
