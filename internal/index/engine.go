package index

import (
	"context"
	"net/http"

	"github.com/BradenHooton/directory-search/internal/models"
)

// Action is the write action attached to a document in a batch
type Action string

const (
	ActionUpload Action = "upload"
	ActionDelete Action = "delete"
)

// StatusPartialSuccess is returned by an engine when only some documents in a batch were written
const StatusPartialSuccess = http.StatusMultiStatus

// IndexAction is one document write in a batch
type IndexAction struct {
	Action   Action
	Key      string
	Document models.Document
}

// DocumentResult is the per-document outcome of a batch write
type DocumentResult struct {
	Key          string
	Succeeded    bool
	StatusCode   int
	ErrorMessage string
}

// BatchResult is the outcome of a batch write. StatusCode is StatusPartialSuccess
// when at least one document failed.
type BatchResult struct {
	StatusCode int
	Results    []DocumentResult
}

// Query is an engine-neutral search request
type Query struct {
	Criteria      string
	SearchFields  []string
	Filter        Predicate
	SortBy        string
	SortAscending bool
	Skip          int
	Top           int
}

// QueryResult holds one page of matches plus the total match count
type QueryResult struct {
	Matches    []models.Document
	TotalCount int
}

// Engine is the external search engine an Index writes to and queries
type Engine interface {
	CreateIndex(ctx context.Context, name string, structure models.IndexStructure) error
	IndexDocuments(ctx context.Context, name string, actions []IndexAction) (*BatchResult, error)
	Query(ctx context.Context, name string, q Query) (*QueryResult, error)
	// DeleteDocument returns models.ErrNotFound when no document has the key
	DeleteDocument(ctx context.Context, name, key string) error
	ListIndexNames(ctx context.Context) ([]string, error)
	DeleteIndex(ctx context.Context, name string) error
}
