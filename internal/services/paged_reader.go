package services

import (
	"context"

	"github.com/BradenHooton/directory-search/internal/models"
)

// PageFetcher reads one 1-indexed page of an upstream collection.
type PageFetcher[T any] func(ctx context.Context, page, pageSize int) (models.Page[T], error)

// ForEachPage reads pages 1 through the reported number of pages, handing
// each page's items to fn. A failed fetch is wrapped in *models.UpstreamReadError.
func ForEachPage[T any](ctx context.Context, source string, pageSize int, fetch PageFetcher[T], fn func(items []T) error) error {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := fetch(ctx, page, pageSize)
		if err != nil {
			return &models.UpstreamReadError{Source: source, Page: page, Err: err}
		}
		if err := fn(result.Items); err != nil {
			return err
		}

		if page >= result.NumberOfPages {
			return nil
		}
	}
}

// ReadAllPages collects every item of a paged collection.
func ReadAllPages[T any](ctx context.Context, source string, pageSize int, fetch PageFetcher[T]) ([]T, error) {
	items := make([]T, 0)
	err := ForEachPage(ctx, source, pageSize, fetch, func(page []T) error {
		items = append(items, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
