package searchengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/BradenHooton/directory-search/internal/index"
	"github.com/BradenHooton/directory-search/internal/models"
)

// BleveEngine keeps one Bleve index per generation, on disk under dir or in
// memory when dir is empty.
type BleveEngine struct {
	dir     string
	logger  *slog.Logger
	mu      sync.RWMutex
	indexes map[string]bleve.Index
}

func NewBleveEngine(dir string, logger *slog.Logger) (*BleveEngine, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
	}
	return &BleveEngine{
		dir:     dir,
		logger:  logger,
		indexes: make(map[string]bleve.Index),
	}, nil
}

// buildMapping derives the Bleve mapping from an index structure. Strings are
// indexed whole so filters and wildcards see the exact stored value.
func buildMapping(structure models.IndexStructure) mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false

	for _, field := range structure {
		var fm *mapping.FieldMapping
		switch field.Type {
		case models.FieldTypeInt64:
			fm = bleve.NewNumericFieldMapping()
		case models.FieldTypeDateTimeOffset:
			fm = bleve.NewDateTimeFieldMapping()
		default:
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = keyword.Name
		}
		fm.Store = true
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(field.Name, fm)
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = keyword.Name
	im.StoreDynamic = false
	im.IndexDynamic = false
	im.DocValuesDynamic = false
	return im
}

func (e *BleveEngine) CreateIndex(ctx context.Context, name string, structure models.IndexStructure) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.indexes[name]; ok {
		return fmt.Errorf("index %s: %w", name, models.ErrConflict)
	}

	var (
		idx bleve.Index
		err error
	)
	if e.dir == "" {
		idx, err = bleve.NewMemOnly(buildMapping(structure))
	} else {
		idx, err = bleve.New(filepath.Join(e.dir, name), buildMapping(structure))
	}
	if err != nil {
		return fmt.Errorf("create bleve index: %w", err)
	}
	e.indexes[name] = idx
	return nil
}

// open returns the named index, opening it from disk if it was created before
// this process started. Bleve holds an exclusive lock on an open index, so
// only one process may use the directory at a time.
func (e *BleveEngine) open(name string) (bleve.Index, error) {
	e.mu.RLock()
	idx, ok := e.indexes[name]
	e.mu.RUnlock()
	if ok {
		return idx, nil
	}
	if e.dir == "" {
		return nil, fmt.Errorf("index %s: %w", name, models.ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.indexes[name]; ok {
		return idx, nil
	}
	idx, err := bleve.Open(filepath.Join(e.dir, name))
	if err != nil {
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			return nil, fmt.Errorf("index %s: %w", name, models.ErrNotFound)
		}
		return nil, fmt.Errorf("open bleve index %s: %w", name, err)
	}
	e.indexes[name] = idx
	return idx, nil
}

// IndexDocuments applies the batch. Documents Bleve refuses to map are
// reported individually with a 400 and the rest are still written.
func (e *BleveEngine) IndexDocuments(ctx context.Context, name string, actions []index.IndexAction) (*index.BatchResult, error) {
	idx, err := e.open(name)
	if err != nil {
		return nil, err
	}

	batch := idx.NewBatch()
	results := make([]index.DocumentResult, 0, len(actions))
	failed := 0
	for _, a := range actions {
		var err error
		switch a.Action {
		case index.ActionDelete:
			batch.Delete(a.Key)
		default:
			err = batch.Index(a.Key, map[string]any(a.Document))
		}
		if err != nil {
			failed++
			results = append(results, index.DocumentResult{Key: a.Key, StatusCode: http.StatusBadRequest, ErrorMessage: err.Error()})
			continue
		}
		results = append(results, index.DocumentResult{Key: a.Key, Succeeded: true, StatusCode: http.StatusOK})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}

	status := http.StatusOK
	if failed > 0 {
		status = index.StatusPartialSuccess
	}
	return &index.BatchResult{StatusCode: status, Results: results}, nil
}

func (e *BleveEngine) Query(ctx context.Context, name string, q index.Query) (*index.QueryResult, error) {
	idx, err := e.open(name)
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(buildBleveQuery(q), q.Top, q.Skip, false)
	req.Fields = []string{"*"}
	if q.SortBy != "" {
		sortField := q.SortBy
		if !q.SortAscending {
			sortField = "-" + sortField
		}
		req.SortBy([]string{sortField, "_id"})
	}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	matches := make([]models.Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc := make(models.Document, len(hit.Fields))
		for k, v := range hit.Fields {
			doc[k] = v
		}
		matches = append(matches, doc)
	}
	return &index.QueryResult{Matches: matches, TotalCount: int(res.Total)}, nil
}

func buildBleveQuery(q index.Query) query.Query {
	var criteria query.Query
	if q.Criteria == "" || q.Criteria == "*" || len(q.SearchFields) == 0 {
		criteria = query.NewMatchAllQuery()
	} else {
		pattern := q.Criteria
		if !strings.ContainsAny(pattern, "*?") {
			pattern = "*" + pattern + "*"
		}
		fields := make([]query.Query, 0, len(q.SearchFields))
		for _, f := range q.SearchFields {
			wq := query.NewWildcardQuery(pattern)
			wq.SetField(f)
			fields = append(fields, wq)
		}
		criteria = query.NewDisjunctionQuery(fields)
	}

	if len(q.Filter) == 0 {
		return criteria
	}

	conjuncts := []query.Query{criteria}
	for _, cond := range q.Filter {
		clauses := make([]query.Query, 0, len(cond))
		for _, clause := range cond {
			clauses = append(clauses, clauseQuery(clause)...)
		}
		conjuncts = append(conjuncts, query.NewDisjunctionQuery(clauses))
	}
	return query.NewConjunctionQuery(conjuncts)
}

func clauseQuery(c index.Clause) []query.Query {
	if c.Op == index.OpAnyOf {
		out := make([]query.Query, 0, len(c.Values))
		for _, v := range c.Values {
			tq := query.NewTermQuery(v)
			tq.SetField(c.Field)
			out = append(out, tq)
		}
		return out
	}

	if c.Type != models.FieldTypeInt64 {
		tq := query.NewTermQuery(c.Str)
		tq.SetField(c.Field)
		if c.Op == index.OpNotEqual {
			return []query.Query{not(tq)}
		}
		return []query.Query{tq}
	}

	v := float64(c.Int)
	inclusive := true
	switch c.Op {
	case index.OpGreaterOrEqual:
		rq := query.NewNumericRangeInclusiveQuery(&v, nil, &inclusive, nil)
		rq.SetField(c.Field)
		return []query.Query{rq}
	case index.OpNotEqual:
		rq := query.NewNumericRangeInclusiveQuery(&v, &v, &inclusive, &inclusive)
		rq.SetField(c.Field)
		return []query.Query{not(rq)}
	default:
		rq := query.NewNumericRangeInclusiveQuery(&v, &v, &inclusive, &inclusive)
		rq.SetField(c.Field)
		return []query.Query{rq}
	}
}

func not(q query.Query) query.Query {
	bq := query.NewBooleanQuery(nil, nil, nil)
	bq.AddMust(query.NewMatchAllQuery())
	bq.AddMustNot(q)
	return bq
}

func (e *BleveEngine) DeleteDocument(ctx context.Context, name, key string) error {
	idx, err := e.open(name)
	if err != nil {
		return err
	}
	doc, err := idx.Document(key)
	if err != nil {
		return fmt.Errorf("lookup document: %w", err)
	}
	if doc == nil {
		return models.ErrNotFound
	}
	return idx.Delete(key)
}

func (e *BleveEngine) ListIndexNames(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)

	e.mu.RLock()
	for name := range e.indexes {
		seen[name] = true
	}
	e.mu.RUnlock()

	if e.dir != "" {
		entries, err := os.ReadDir(e.dir)
		if err != nil {
			return nil, fmt.Errorf("list index directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				seen[entry.Name()] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (e *BleveEngine) DeleteIndex(ctx context.Context, name string) error {
	e.mu.Lock()
	idx, ok := e.indexes[name]
	delete(e.indexes, name)
	e.mu.Unlock()

	if ok {
		if err := idx.Close(); err != nil {
			e.logger.Warn("failed to close bleve index", slog.String("index", name), slog.Any("error", err))
		}
	}
	if e.dir == "" {
		if !ok {
			return models.ErrNotFound
		}
		return nil
	}
	return os.RemoveAll(filepath.Join(e.dir, name))
}

// Close closes every open index.
func (e *BleveEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for name, idx := range e.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	e.indexes = make(map[string]bleve.Index)
	return errors.Join(errs...)
}
