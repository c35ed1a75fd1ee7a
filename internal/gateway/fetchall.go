package gateway

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/and161185/neptus-sync/internal/model"
)

// PageFunc fetches a single 1-based page.
type PageFunc[T any] func(ctx context.Context, page, perPage int) (model.Page[T], error)

// FetchAll fetches page 1, then pages 2..TotalPages concurrently, and returns
// the items concatenated in page order. Any page failure aborts the whole call
// and cancels the requests still in flight. maxParallel <= 0 means no cap.
// When the server reports a total count, TotalPages is clamped to what that
// count can fill.
func FetchAll[T any](ctx context.Context, perPage, maxParallel int, fetch PageFunc[T]) ([]T, error) {
	first, err := fetch(ctx, 1, perPage)
	if err != nil {
		return nil, fmt.Errorf("page 1: %w", err)
	}
	pages := pageCount(first, perPage)
	if pages <= 1 {
		return first.Items, nil
	}

	rest := make([][]T, pages-1)
	g, gctx := errgroup.WithContext(ctx)
	if maxParallel > 0 {
		g.SetLimit(maxParallel)
	}
	for page := 2; page <= pages; page++ {
		g.Go(func() error {
			p, err := fetch(gctx, page, perPage)
			if err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			rest[page-2] = p.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	n := len(first.Items)
	for _, items := range rest {
		n += len(items)
	}
	out := make([]T, 0, n)
	out = append(out, first.Items...)
	for _, items := range rest {
		out = append(out, items...)
	}
	return out, nil
}

func pageCount[T any](first model.Page[T], perPage int) int {
	pages := first.TotalPages
	size := first.PerPage
	if size <= 0 {
		size = perPage
	}
	if first.TotalCount > 0 && size > 0 {
		if n := (first.TotalCount + size - 1) / size; n < pages {
			pages = n
		}
	}
	return pages
}
