package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/directory-search/internal/metrics"
	"github.com/BradenHooton/directory-search/internal/models"
)

const (
	DefaultBatchSize   = 40
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 500 * time.Millisecond
)

// Index is one physical index generation with a fixed structure
type Index struct {
	name        string
	structure   models.IndexStructure
	engine      Engine
	logger      *slog.Logger
	batchSize   int
	maxAttempts int
	retryDelay  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures an Index
type Option func(*Index)

func WithBatchSize(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.maxAttempts = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(ix *Index) {
		ix.retryDelay = d
	}
}

// WithSleeper replaces the wait between retry attempts.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(ix *Index) {
		ix.sleep = sleep
	}
}

// New returns a handle to an existing index generation.
func New(engine Engine, name string, structure models.IndexStructure, logger *slog.Logger, opts ...Option) *Index {
	ix := &Index{
		name:        name,
		structure:   structure,
		engine:      engine,
		logger:      logger,
		batchSize:   DefaultBatchSize,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

func (ix *Index) Name() string {
	return ix.name
}

func (ix *Index) Structure() models.IndexStructure {
	return ix.structure
}

// Store validates the documents and upserts them in batches. Per-document
// write failures are logged and dropped; only configuration, validation and
// engine transport errors are returned.
func (ix *Index) Store(ctx context.Context, documents []models.Document, correlationID string) error {
	keyField, err := ix.structure.KeyField(ix.name)
	if err != nil {
		return err
	}
	if err := Validate(ix.name, documents, ix.structure); err != nil {
		return err
	}

	normalized := make([]models.Document, len(documents))
	for i, doc := range documents {
		normalized[i] = normalize(doc, ix.structure)
	}

	batches := chunk(normalized, ix.batchSize)
	for i, batch := range batches {
		ix.logger.Debug("writing batch",
			slog.Int("batch", i+1),
			slog.Int("batches", len(batches)),
			slog.String("index", ix.name),
			slog.String("correlation_id", correlationID),
		)
		if err := ix.storeBatch(ctx, keyField.Name, batch, correlationID); err != nil {
			return fmt.Errorf("error writing batch %d to %s: %w", i+1, ix.name, err)
		}
	}
	return nil
}

// storeBatch writes one batch, resubmitting only the retryable failures until
// the attempt budget is spent.
func (ix *Index) storeBatch(ctx context.Context, keyField string, batch []models.Document, correlationID string) error {
	label := metrics.IndexLabel(ix.name)
	pending := batch

	for attempt := 1; attempt <= ix.maxAttempts && len(pending) > 0; attempt++ {
		if attempt > 1 {
			if err := ix.sleep(ctx, ix.retryDelay); err != nil {
				return err
			}
		}

		actions := make([]IndexAction, len(pending))
		for i, doc := range pending {
			actions[i] = IndexAction{Action: ActionUpload, Key: doc.String(keyField), Document: doc}
		}

		metrics.WriteAttempts.WithLabelValues(label).Inc()
		result, err := ix.engine.IndexDocuments(ctx, ix.name, actions)
		if err != nil {
			return err
		}
		if result == nil || result.StatusCode != StatusPartialSuccess {
			metrics.DocumentsWritten.WithLabelValues(label, "stored").Add(float64(len(pending)))
			return nil
		}

		var terminal, retryable []*models.WriteFailure
		for _, r := range result.Results {
			if r.Succeeded {
				continue
			}
			failure := &models.WriteFailure{Key: r.Key, StatusCode: r.StatusCode, Message: r.ErrorMessage}
			if failure.Retryable() {
				retryable = append(retryable, failure)
			} else {
				terminal = append(terminal, failure)
			}
		}
		metrics.DocumentsWritten.WithLabelValues(label, "stored").Add(float64(len(pending) - len(terminal) - len(retryable)))

		if len(terminal) > 0 {
			metrics.DocumentsWritten.WithLabelValues(label, "terminal").Add(float64(len(terminal)))
			ix.logger.Error(fmt.Sprintf("Documents failed to index into %q, status code(s): %s", ix.name, statusCodes(terminal)),
				slog.Any("documents", failureKeys(terminal)),
				slog.String("correlation_id", correlationID),
			)
		}
		if len(retryable) == 0 {
			return nil
		}

		if attempt == ix.maxAttempts {
			metrics.DocumentsWritten.WithLabelValues(label, "exhausted").Add(float64(len(retryable)))
			ix.logger.Error(fmt.Sprintf("Documents failed to index into %q after multiple retries, status code(s): %s", ix.name, statusCodes(retryable)),
				slog.Any("documents", failureKeys(retryable)),
				slog.String("correlation_id", correlationID),
			)
			return nil
		}

		metrics.DocumentsWritten.WithLabelValues(label, "retried").Add(float64(len(retryable)))
		retryKeys := make(map[string]bool, len(retryable))
		for _, f := range retryable {
			retryKeys[f.Key] = true
		}
		next := make([]models.Document, 0, len(retryable))
		for _, doc := range pending {
			if retryKeys[doc.String(keyField)] {
				next = append(next, doc)
			}
		}
		pending = next
	}
	return nil
}

// SearchRequest describes one page of a search
type SearchRequest struct {
	Criteria      string
	Page          int
	PageSize      int
	SortBy        string
	SortAscending bool
	Filters       []Filter
	SearchFields  []string
}

// SearchResult is one page of matching documents
type SearchResult struct {
	Documents            []models.Document
	TotalNumberOfResults int
	NumberOfPages        int
}

// Search runs a filtered, sorted, paged query against the index.
func (ix *Index) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	result, err := ix.search(ctx, req)
	if err != nil {
		filters, _ := json.Marshal(req.Filters)
		return nil, fmt.Errorf("error searching %s using criteria '%s' (page=%d, pageSize=%d, sortBy=%s, sortAsc=%t, filters=%s): %w",
			ix.name, req.Criteria, req.Page, req.PageSize, req.SortBy, req.SortAscending, filters, err)
	}
	return result, nil
}

func (ix *Index) search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.Page < 1 {
		return nil, badRequest("page must be 1 or greater")
	}
	if req.PageSize < 1 {
		return nil, badRequest("page size must be 1 or greater")
	}

	predicate, err := BuildPredicate(ix.name, ix.structure, req.Filters)
	if err != nil {
		return nil, err
	}
	if req.SortBy != "" {
		if _, ok := ix.structure.Field(req.SortBy); !ok {
			return nil, badRequest("sort field %s is not in the index structure for %s", req.SortBy, ix.name)
		}
	}

	searchFields := req.SearchFields
	if len(searchFields) == 0 {
		searchFields = ix.structure.SearchableFields()
	}
	for _, name := range searchFields {
		if field, ok := ix.structure.Field(name); !ok || !field.Searchable {
			return nil, badRequest("search field %s is not searchable in %s", name, ix.name)
		}
	}

	criteria := strings.TrimSpace(req.Criteria)
	if criteria == "" {
		criteria = "*"
	}

	qr, err := ix.engine.Query(ctx, ix.name, Query{
		Criteria:      criteria,
		SearchFields:  searchFields,
		Filter:        predicate,
		SortBy:        req.SortBy,
		SortAscending: req.SortAscending,
		Skip:          (req.Page - 1) * req.PageSize,
		Top:           req.PageSize,
	})
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, len(qr.Matches))
	for i, m := range qr.Matches {
		docs[i] = coerce(m, ix.structure)
	}
	return &SearchResult{
		Documents:            docs,
		TotalNumberOfResults: qr.TotalCount,
		NumberOfPages:        int(math.Ceil(float64(qr.TotalCount) / float64(req.PageSize))),
	}, nil
}

// Get returns the document with the given key, or models.ErrNotFound.
func (ix *Index) Get(ctx context.Context, key string) (models.Document, error) {
	keyField, err := ix.structure.KeyField(ix.name)
	if err != nil {
		return nil, err
	}
	result, err := ix.Search(ctx, SearchRequest{
		Criteria:      "*",
		Page:          1,
		PageSize:      1,
		SortBy:        keyField.Name,
		SortAscending: true,
		Filters:       []Filter{{Field: keyField.Name, Values: []string{key}}},
	})
	if err != nil {
		return nil, err
	}
	if len(result.Documents) == 0 {
		return nil, models.ErrNotFound
	}
	return result.Documents[0], nil
}

// Delete removes a document by key. A missing document is not an error.
func (ix *Index) Delete(ctx context.Context, key string) error {
	err := ix.engine.DeleteDocument(ctx, ix.name, key)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("error deleting document with id %s from index %s: %w", key, ix.name, err)
	}
	return nil
}

// Create provisions a new empty index generation.
func Create(ctx context.Context, engine Engine, name string, structure models.IndexStructure, logger *slog.Logger, opts ...Option) (*Index, error) {
	if _, err := structure.KeyField(name); err != nil {
		return nil, err
	}
	if err := engine.CreateIndex(ctx, name, structure); err != nil {
		return nil, fmt.Errorf("error creating index %s: %w", name, err)
	}
	return New(engine, name, structure, logger, opts...), nil
}

// UnusedMatcher picks the index names that may be deleted from the full list
type UnusedMatcher func(ctx context.Context, names []string) ([]string, error)

// TidyIndexes deletes every index the matcher reports as unused. The first
// deletion failure stops the run and is returned.
func TidyIndexes(ctx context.Context, engine Engine, matcher UnusedMatcher, logger *slog.Logger, correlationID string) error {
	names, err := engine.ListIndexNames(ctx)
	if err != nil {
		return fmt.Errorf("error listing indexes: %w", err)
	}
	unused, err := matcher(ctx, names)
	if err != nil {
		return err
	}

	for _, name := range unused {
		if err := engine.DeleteIndex(ctx, name); err != nil {
			err = fmt.Errorf("error deleting index %s: %w", name, err)
			logger.Error("failed to delete index", slog.String("index", name), slog.Any("error", err), slog.String("correlation_id", correlationID))
			return err
		}
		logger.Info("deleted index", slog.String("index", name), slog.String("correlation_id", correlationID))
	}
	return nil
}

func chunk(docs []models.Document, size int) [][]models.Document {
	batches := make([][]models.Document, 0, (len(docs)+size-1)/size)
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		batches = append(batches, docs[start:end])
	}
	return batches
}

func statusCodes(failures []*models.WriteFailure) string {
	seen := make(map[int]bool)
	codes := make([]int, 0)
	for _, f := range failures {
		if !seen[f.StatusCode] {
			seen[f.StatusCode] = true
			codes = append(codes, f.StatusCode)
		}
	}
	sort.Ints(codes)
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

func failureKeys(failures []*models.WriteFailure) []string {
	keys := make([]string, len(failures))
	for i, f := range failures {
		keys[i] = f.Key
	}
	return keys
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
