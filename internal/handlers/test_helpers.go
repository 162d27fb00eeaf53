package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/directory-search/internal/mapper"
	"github.com/BradenHooton/directory-search/internal/models"
	"github.com/BradenHooton/directory-search/internal/services"
	pkghttp "github.com/BradenHooton/directory-search/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRawRequest creates an HTTP request with the body sent exactly as given
func NewRawRequest(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockUserService implements UserService for testing
type MockUserService struct {
	SearchFunc func(ctx context.Context, params services.SearchParams) (*services.UserSearchResult, error)
	GetFunc    func(ctx context.Context, id string) (*mapper.UserView, error)
	CreateFunc func(ctx context.Context, id string) error
	PatchFunc  func(ctx context.Context, id string, patch services.UserPatch) error
	DeleteFunc func(ctx context.Context, id string) error
}

func (m *MockUserService) Search(ctx context.Context, params services.SearchParams) (*services.UserSearchResult, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, params)
	}
	return &services.UserSearchResult{Users: []mapper.UserView{}}, nil
}

func (m *MockUserService) Get(ctx context.Context, id string) (*mapper.UserView, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserService) Create(ctx context.Context, id string) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, id)
	}
	return nil
}

func (m *MockUserService) Patch(ctx context.Context, id string, patch services.UserPatch) error {
	if m.PatchFunc != nil {
		return m.PatchFunc(ctx, id, patch)
	}
	return nil
}

func (m *MockUserService) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockDeviceService implements DeviceService for testing
type MockDeviceService struct {
	SearchFunc func(ctx context.Context, params services.SearchParams) (*services.DeviceSearchResult, error)
	GetFunc    func(ctx context.Context, serialNumber string) (*mapper.DeviceView, error)
	PatchFunc  func(ctx context.Context, serialNumber string, patch services.DevicePatch) error
}

func (m *MockDeviceService) Search(ctx context.Context, params services.SearchParams) (*services.DeviceSearchResult, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, params)
	}
	return &services.DeviceSearchResult{Devices: []mapper.DeviceView{}}, nil
}

func (m *MockDeviceService) Get(ctx context.Context, serialNumber string) (*mapper.DeviceView, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, serialNumber)
	}
	return nil, models.ErrNotFound
}

func (m *MockDeviceService) Patch(ctx context.Context, serialNumber string, patch services.DevicePatch) error {
	if m.PatchFunc != nil {
		return m.PatchFunc(ctx, serialNumber, patch)
	}
	return nil
}

// WithChiRouteContext adds chi route parameters to a request context
// This is needed for testing handlers that use chi.URLParam() to extract path parameters
//
// Example usage:
//
//	req := httptest.NewRequest("GET", "/users/user123", nil)
//	req = WithChiRouteContext(req, map[string]string{
//	    "id": "user123",
//	})
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// WithChiParamFromURL sets the last path segment as the named chi route parameter,
// e.g. /devices/SN1 with name "sn".
func WithChiParamFromURL(r *http.Request, name string) *http.Request {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) >= 2 {
		return WithChiRouteContext(r, map[string]string{
			name: parts[len(parts)-1],
		})
	}
	return r
}
