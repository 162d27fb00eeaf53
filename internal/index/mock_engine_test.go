package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/BradenHooton/directory-search/internal/models"
)

// MockEngine implements Engine with overridable function fields. Calls that
// are not overridden fall through to a simple in-memory store.
type MockEngine struct {
	CreateIndexFunc    func(ctx context.Context, name string, structure models.IndexStructure) error
	IndexDocumentsFunc func(ctx context.Context, name string, actions []IndexAction) (*BatchResult, error)
	QueryFunc          func(ctx context.Context, name string, q Query) (*QueryResult, error)
	DeleteDocumentFunc func(ctx context.Context, name, key string) error
	ListIndexNamesFunc func(ctx context.Context) ([]string, error)
	DeleteIndexFunc    func(ctx context.Context, name string) error

	mu      sync.Mutex
	indexes map[string]map[string]models.Document
	Batches [][]IndexAction
	Queries []Query
	Deleted []string
}

func NewMockEngine() *MockEngine {
	return &MockEngine{indexes: make(map[string]map[string]models.Document)}
}

func (m *MockEngine) CreateIndex(ctx context.Context, name string, structure models.IndexStructure) error {
	if m.CreateIndexFunc != nil {
		return m.CreateIndexFunc(ctx, name, structure)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[name] = make(map[string]models.Document)
	return nil
}

func (m *MockEngine) IndexDocuments(ctx context.Context, name string, actions []IndexAction) (*BatchResult, error) {
	m.mu.Lock()
	m.Batches = append(m.Batches, actions)
	m.mu.Unlock()

	if m.IndexDocumentsFunc != nil {
		return m.IndexDocumentsFunc(ctx, name, actions)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	docs, ok := m.indexes[name]
	if !ok {
		return nil, fmt.Errorf("index %s does not exist", name)
	}
	result := &BatchResult{StatusCode: 200}
	for _, a := range actions {
		docs[a.Key] = a.Document.Clone()
		result.Results = append(result.Results, DocumentResult{Key: a.Key, Succeeded: true, StatusCode: 200})
	}
	return result, nil
}

func (m *MockEngine) Query(ctx context.Context, name string, q Query) (*QueryResult, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, q)
	m.mu.Unlock()

	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, name, q)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	docs, ok := m.indexes[name]
	if !ok {
		return nil, fmt.Errorf("index %s does not exist", name)
	}

	matches := make([]models.Document, 0)
	for _, d := range docs {
		if q.Filter.Matches(d) {
			matches = append(matches, d.Clone())
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].String(q.SortBy), matches[j].String(q.SortBy)
		if ai, ok := matches[i][q.SortBy].(int64); ok {
			bi, _ := matches[j][q.SortBy].(int64)
			if q.SortAscending {
				return ai < bi
			}
			return ai > bi
		}
		if q.SortAscending {
			return a < b
		}
		return a > b
	})

	total := len(matches)
	start := min(q.Skip, total)
	end := min(q.Skip+q.Top, total)
	return &QueryResult{Matches: matches[start:end], TotalCount: total}, nil
}

func (m *MockEngine) DeleteDocument(ctx context.Context, name, key string) error {
	if m.DeleteDocumentFunc != nil {
		return m.DeleteDocumentFunc(ctx, name, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[name][key]; !ok {
		return models.ErrNotFound
	}
	delete(m.indexes[name], key)
	return nil
}

func (m *MockEngine) ListIndexNames(ctx context.Context) ([]string, error) {
	if m.ListIndexNamesFunc != nil {
		return m.ListIndexNamesFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.indexes))
	for n := range m.indexes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MockEngine) DeleteIndex(ctx context.Context, name string) error {
	m.mu.Lock()
	m.Deleted = append(m.Deleted, name)
	m.mu.Unlock()

	if m.DeleteIndexFunc != nil {
		return m.DeleteIndexFunc(ctx, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.indexes, name)
	return nil
}

// partial builds a 207 result from key -> status. Keys not listed succeed.
func partial(actions []IndexAction, failures map[string]int) *BatchResult {
	result := &BatchResult{StatusCode: StatusPartialSuccess}
	for _, a := range actions {
		code, failed := failures[a.Key]
		if !failed {
			result.Results = append(result.Results, DocumentResult{Key: a.Key, Succeeded: true, StatusCode: 200})
			continue
		}
		result.Results = append(result.Results, DocumentResult{Key: a.Key, StatusCode: code, ErrorMessage: "failed"})
	}
	return result
}

func actionKeys(actions []IndexAction) []string {
	keys := make([]string, len(actions))
	for i, a := range actions {
		keys[i] = a.Key
	}
	return keys
}
