// Package clients talks to the upstream directories, organisations, access
// and devices services.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/BradenHooton/directory-search/internal/config"
	"github.com/BradenHooton/directory-search/internal/models"
	pkglogger "github.com/BradenHooton/directory-search/pkg/logger"
)

const retryBase = 200 * time.Millisecond

// Client is a JSON GET client for one upstream service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	logger     *slog.Logger
}

// StatusError is a non-success upstream response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d (%s: %s)", e.StatusCode, e.Method, e.URL)
}

func (e *StatusError) Is(target error) bool {
	return target == models.ErrNotFound && e.StatusCode == http.StatusNotFound
}

func NewClient(baseURL string, cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 20
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

// get fetches resource and decodes the JSON body into out. A 404 maps to
// models.ErrNotFound; 5xx and transport errors are retried with backoff.
func (c *Client) get(ctx context.Context, resource string, out any) error {
	url := c.baseURL + resource
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.do(ctx, url, out)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
			return err
		}
		if err != nil {
			c.logger.Warn("upstream request failed, retrying",
				slog.String("url", url),
				slog.Any("error", err),
				pkglogger.CorrelationAttr(pkglogger.CorrelationID(ctx)),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	return err
}

func (c *Client) do(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "bearer "+c.token)
	}
	if id := pkglogger.CorrelationID(ctx); id != "" {
		req.Header.Set(pkglogger.CorrelationHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: http.MethodGet, URL: url, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

func pageQuery(page, pageSize int) string {
	return fmt.Sprintf("page=%d&pageSize=%d", page, pageSize)
}
