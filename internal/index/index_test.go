package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/directory-search/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStructure = models.IndexStructure{
	{Name: "id", Type: models.FieldTypeString, Key: true, Filterable: true},
	{Name: "statusId", Type: models.FieldTypeInt64, Filterable: true, Sortable: true},
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestIndex(t *testing.T, engine *MockEngine, structure models.IndexStructure) (*Index, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	require.NoError(t, engine.CreateIndex(context.Background(), "test-index", structure))
	return New(engine, "test-index", structure, logger, WithSleeper(noSleep)), &buf
}

func TestStore_MissingKeyIsValidationError(t *testing.T) {
	engine := NewMockEngine()
	ix, _ := newTestIndex(t, engine, testStructure)

	err := ix.Store(context.Background(), []models.Document{{"statusId": 1}}, "corr")

	var vErr *models.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "id", vErr.Field)
	assert.Empty(t, engine.Batches)
}

func TestStore_NoKeyFieldIsConfigurationError(t *testing.T) {
	engine := NewMockEngine()
	ix, _ := newTestIndex(t, engine, models.IndexStructure{{Name: "statusId", Type: models.FieldTypeInt64}})

	err := ix.Store(context.Background(), []models.Document{{"statusId": 1}}, "corr")

	var cfgErr *models.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, engine.Batches, "no write may be attempted")
}

func TestStore_InvalidInt64(t *testing.T) {
	engine := NewMockEngine()
	ix, _ := newTestIndex(t, engine, testStructure)

	err := ix.Store(context.Background(), []models.Document{{"id": "u1", "statusId": "two"}}, "corr")

	var vErr *models.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "statusId", vErr.Field)
	assert.Equal(t, "u1", vErr.DocumentKey)
	assert.True(t, errors.Is(err, models.ErrBadRequest))
}

func TestValidate_DoesNotMutate(t *testing.T) {
	doc := models.Document{"id": "u1", "statusId": "2"}

	err := Validate("test-index", []models.Document{doc}, testStructure)

	require.NoError(t, err)
	assert.Equal(t, "2", doc["statusId"])
}

func TestValidate_StringSetRequired(t *testing.T) {
	structure := models.IndexStructure{
		{Name: "id", Type: models.FieldTypeString, Key: true},
		{Name: "services", Type: models.FieldTypeStringSet},
	}

	err := Validate("test-index", []models.Document{{"id": "u1"}}, structure)
	var vErr *models.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "services", vErr.Field)

	assert.NoError(t, Validate("test-index", []models.Document{{"id": "u1", "services": []string{}}}, structure))
}

func TestValidate_DateField(t *testing.T) {
	structure := models.IndexStructure{
		{Name: "id", Type: models.FieldTypeString, Key: true},
		{Name: "createdAt", Type: models.FieldTypeDateTimeOffset},
	}

	assert.NoError(t, Validate("test-index", []models.Document{{"id": "u1", "createdAt": time.Now()}}, structure))
	assert.NoError(t, Validate("test-index", []models.Document{{"id": "u1", "createdAt": "2024-01-02T03:04:05Z"}}, structure))
	assert.Error(t, Validate("test-index", []models.Document{{"id": "u1", "createdAt": "not a date"}}, structure))
}

func TestStore_ZeroDateIsAbsent(t *testing.T) {
	structure := models.IndexStructure{
		{Name: "id", Type: models.FieldTypeString, Key: true},
		{Name: "createdAt", Type: models.FieldTypeDateTimeOffset},
	}
	zero := &time.Time{}
	docs := []models.Document{
		{"id": "u1", "createdAt": time.Time{}},
		{"id": "u2", "createdAt": zero},
	}
	require.NoError(t, Validate("test-index", docs, structure))

	engine := NewMockEngine()
	ix, _ := newTestIndex(t, engine, structure)
	require.NoError(t, ix.Store(context.Background(), docs, "corr"))

	for _, key := range []string{"u1", "u2"} {
		stored, err := ix.Get(context.Background(), key)
		require.NoError(t, err)
		assert.NotContains(t, stored, "createdAt")
	}
}

func TestStore_BatchesOfForty(t *testing.T) {
	engine := NewMockEngine()
	ix, _ := newTestIndex(t, engine, testStructure)

	docs := make([]models.Document, 95)
	for i := range docs {
		docs[i] = models.Document{"id": fmt.Sprintf("u%d", i), "statusId": 1}
	}

	require.NoError(t, ix.Store(context.Background(), docs, "corr"))

	require.Len(t, engine.Batches, 3)
	assert.Len(t, engine.Batches[0], 40)
	assert.Len(t, engine.Batches[1], 40)
	assert.Len(t, engine.Batches[2], 15)
	for _, a := range engine.Batches[0] {
		assert.Equal(t, ActionUpload, a.Action)
	}
}

func TestStore_RetryBound(t *testing.T) {
	engine := NewMockEngine()
	engine.IndexDocumentsFunc = func(ctx context.Context, name string, actions []IndexAction) (*BatchResult, error) {
		failures := map[string]int{}
		for _, a := range actions {
			failures[a.Key] = 503
		}
		failures["u2"] = 409
		return partial(actions, failures), nil
	}
	ix, logs := newTestIndex(t, engine, testStructure)

	err := ix.Store(context.Background(), []models.Document{{"id": "u1"}, {"id": "u2"}}, "corr")

	require.NoError(t, err, "write failures are not returned to the caller")
	assert.Len(t, engine.Batches, 3)
	assert.Contains(t, logs.String(), "after multiple retries, status code(s): 409,503")
}

func TestStore_RetryNarrowing(t *testing.T) {
	engine := NewMockEngine()
	attempt := 0
	engine.IndexDocumentsFunc = func(ctx context.Context, name string, actions []IndexAction) (*BatchResult, error) {
		attempt++
		switch attempt {
		case 1:
			return partial(actions, map[string]int{"A": 400, "B": 503, "C": 422}), nil
		case 2:
			return partial(actions, map[string]int{"C": 503}), nil
		default:
			return partial(actions, nil), nil
		}
	}
	ix, logs := newTestIndex(t, engine, testStructure)

	docs := []models.Document{{"id": "A"}, {"id": "B"}, {"id": "C"}, {"id": "D"}}
	require.NoError(t, ix.Store(context.Background(), docs, "corr"))

	require.Len(t, engine.Batches, 3)
	assert.Equal(t, []string{"A", "B", "C", "D"}, actionKeys(engine.Batches[0]))
	assert.Equal(t, []string{"B", "C"}, actionKeys(engine.Batches[1]))
	assert.Equal(t, []string{"C"}, actionKeys(engine.Batches[2]))
	assert.Contains(t, logs.String(), "status code(s): 400")
	assert.NotContains(t, logs.String(), "after multiple retries")
}

func TestStore_SingleRetryableDocumentIsRetried(t *testing.T) {
	engine := NewMockEngine()
	attempt := 0
	engine.IndexDocumentsFunc = func(ctx context.Context, name string, actions []IndexAction) (*BatchResult, error) {
		attempt++
		if attempt == 1 {
			return partial(actions, map[string]int{"u1": 503}), nil
		}
		return partial(actions, nil), nil
	}
	ix, _ := newTestIndex(t, engine, testStructure)

	require.NoError(t, ix.Store(context.Background(), []models.Document{{"id": "u1"}}, "corr"))
	assert.Len(t, engine.Batches, 2)
}

func TestStore_RetryWaitsBetweenAttempts(t *testing.T) {
	engine := NewMockEngine()
	engine.IndexDocumentsFunc = func(ctx context.Context, name string, actions []IndexAction) (*BatchResult, error) {
		return partial(actions, map[string]int{"u1": 503}), nil
	}
	require.NoError(t, engine.CreateIndex(context.Background(), "test-index", testStructure))

	var waits []time.Duration
	ix := New(engine, "test-index", testStructure, slog.Default(), WithSleeper(func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}))

	require.NoError(t, ix.Store(context.Background(), []models.Document{{"id": "u1"}}, "corr"))
	assert.Equal(t, []time.Duration{DefaultRetryDelay, DefaultRetryDelay}, waits)
}

func TestStore_EngineErrorIsWrapped(t *testing.T) {
	engine := NewMockEngine()
	engine.IndexDocumentsFunc = func(ctx context.Context, name string, actions []IndexAction) (*BatchResult, error) {
		return nil, errors.New("connection refused")
	}
	ix, _ := newTestIndex(t, engine, testStructure)

	err := ix.Store(context.Background(), []models.Document{{"id": "u1"}}, "corr")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "error writing batch 1 to test-index")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStore_NormalizesInt64AndRoundTrips(t *testing.T) {
	engine := NewMockEngine()
	ix, _ := newTestIndex(t, engine, testStructure)
	doc := models.Document{"id": "u1", "statusId": "2"}

	require.NoError(t, ix.Store(context.Background(), []models.Document{doc}, "corr"))

	got, err := ix.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got["statusId"])
	assert.Equal(t, "2", doc["statusId"], "input document must not be modified")
}

func TestStore_Idempotent(t *testing.T) {
	engine := NewMockEngine()
	ix, _ := newTestIndex(t, engine, testStructure)
	doc := models.Document{"id": "u1", "statusId": 1}

	require.NoError(t, ix.Store(context.Background(), []models.Document{doc}, "corr"))
	require.NoError(t, ix.Store(context.Background(), []models.Document{doc}, "corr"))

	result, err := ix.Search(context.Background(), SearchRequest{
		Criteria: "*", Page: 1, PageSize: 25, SortBy: "id", SortAscending: true,
		Filters: []Filter{{Field: "id", Values: []string{"u1"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalNumberOfResults)
	assert.Equal(t, int64(1), result.Documents[0]["statusId"])
}

func TestSearch_PagedFilteredScenario(t *testing.T) {
	engine := NewMockEngine()
	structure := append(models.IndexStructure{}, testStructure...)
	structure = append(structure, models.Field{Name: "lastLogin", Type: models.FieldTypeInt64, Filterable: true, Sortable: true})
	ix, _ := newTestIndex(t, engine, structure)

	docs := make([]models.Document, 60)
	for i := range docs {
		docs[i] = models.Document{"id": fmt.Sprintf("u%02d", i), "statusId": 1 + i%2, "lastLogin": int64(1000 + i)}
	}
	// filtered population must exceed two pages
	docs = append(docs, models.Document{"id": "x1", "statusId": 0})
	require.NoError(t, ix.Store(context.Background(), docs, "corr"))

	result, err := ix.Search(context.Background(), SearchRequest{
		Criteria: "*", Page: 2, PageSize: 25, SortBy: "lastLogin", SortAscending: false,
		Filters: []Filter{{Field: "statusId", Values: []string{"1", "2"}}},
	})

	require.NoError(t, err)
	assert.Equal(t, 60, result.TotalNumberOfResults)
	assert.Equal(t, 3, result.NumberOfPages)
	require.NotEmpty(t, result.Documents)
	assert.LessOrEqual(t, len(result.Documents), 25)
	for _, d := range result.Documents {
		assert.Contains(t, []int64{1, 2}, d["statusId"])
	}
	assert.Equal(t, 25, engine.Queries[len(engine.Queries)-1].Skip)
}

func TestSearch_ErrorsIncludeParameters(t *testing.T) {
	engine := NewMockEngine()
	ix, _ := newTestIndex(t, engine, testStructure)

	_, err := ix.Search(context.Background(), SearchRequest{
		Criteria: "bob", Page: 1, PageSize: 25, SortBy: "id",
		Filters: []Filter{{Field: "colour", Values: []string{"red"}}},
	})

	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "using criteria 'bob'")
	assert.Contains(t, msg, "page=1, pageSize=25, sortBy=id")
	assert.Contains(t, msg, "field colour is not in the index structure")
}

func TestSearch_InvalidRequestIsBadRequest(t *testing.T) {
	structure := append(models.IndexStructure{}, testStructure...)
	structure = append(structure, models.Field{Name: "searchableName", Type: models.FieldTypeString, Searchable: true})

	tests := []struct {
		name string
		req  SearchRequest
		want string
	}{
		{"invalid Int64 filter value", SearchRequest{Filters: []Filter{{Field: "statusId", Values: []string{"active"}}}}, "not a valid Int64"},
		{"unknown filter field", SearchRequest{Filters: []Filter{{Field: "colour", Values: []string{"red"}}}}, "field colour"},
		{"unknown sort field", SearchRequest{SortBy: "colour"}, "sort field colour"},
		{"unknown search field", SearchRequest{SearchFields: []string{"colour"}}, "search field colour"},
		{"search field not searchable", SearchRequest{SearchFields: []string{"statusId"}}, "search field statusId"},
		{"page below one", SearchRequest{Page: -1}, "page must be 1 or greater"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewMockEngine()
			ix, _ := newTestIndex(t, engine, structure)
			req := tt.req
			req.Criteria = "*"
			if req.Page == 0 {
				req.Page = 1
			}
			req.PageSize = 25

			_, err := ix.Search(context.Background(), req)

			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrBadRequest), err.Error())
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, engine.Queries)
		})
	}
}

func TestSearch_FilterWithoutValues(t *testing.T) {
	engine := NewMockEngine()
	ix, _ := newTestIndex(t, engine, testStructure)

	_, err := ix.Search(context.Background(), SearchRequest{
		Criteria: "*", Page: 1, PageSize: 25,
		Filters: []Filter{{Field: "statusId"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing on statusId")

	_, err = ix.Search(context.Background(), SearchRequest{
		Criteria: "*", Page: 1, PageSize: 25,
		Filters: []Filter{{Values: []string{"1"}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all filters must have a field")
}

func TestDelete_NotFoundIsSuccess(t *testing.T) {
	engine := NewMockEngine()
	ix, _ := newTestIndex(t, engine, testStructure)

	assert.NoError(t, ix.Delete(context.Background(), "missing"))
}

func TestDelete_OtherErrorsAreWrapped(t *testing.T) {
	engine := NewMockEngine()
	engine.DeleteDocumentFunc = func(ctx context.Context, name, key string) error {
		return errors.New("timeout")
	}
	ix, _ := newTestIndex(t, engine, testStructure)

	err := ix.Delete(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error deleting document with id u1 from index test-index")
}

func TestCreate_RequiresKey(t *testing.T) {
	engine := NewMockEngine()

	_, err := Create(context.Background(), engine, "search-users-1", models.IndexStructure{{Name: "a"}}, slog.Default())

	var cfgErr *models.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	names, err := engine.ListIndexNames(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names, "engine must not be called for a keyless structure")
}

func TestTidyIndexes_DeletesOnlyUnused(t *testing.T) {
	engine := NewMockEngine()
	engine.ListIndexNamesFunc = func(ctx context.Context) ([]string, error) {
		return []string{"search-users-A", "search-users-B"}, nil
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	matcher := func(ctx context.Context, names []string) ([]string, error) {
		unused := make([]string, 0)
		for _, n := range names {
			if n != "search-users-B" {
				unused = append(unused, n)
			}
		}
		return unused, nil
	}

	require.NoError(t, TidyIndexes(context.Background(), engine, matcher, logger, "corr"))
	assert.Equal(t, []string{"search-users-A"}, engine.Deleted)
	assert.Contains(t, buf.String(), "deleted index")
}

func TestTidyIndexes_DeletionErrorStopsRun(t *testing.T) {
	engine := NewMockEngine()
	engine.ListIndexNamesFunc = func(ctx context.Context) ([]string, error) {
		return []string{"a", "b", "c"}, nil
	}
	engine.DeleteIndexFunc = func(ctx context.Context, name string) error {
		if name == "b" {
			return errors.New("locked")
		}
		return nil
	}
	matcher := func(ctx context.Context, names []string) ([]string, error) { return names, nil }

	err := TidyIndexes(context.Background(), engine, matcher, slog.Default(), "corr")

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "error deleting index b"))
	assert.Equal(t, []string{"a", "b"}, engine.Deleted)
}
