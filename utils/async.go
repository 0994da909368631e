package utils

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Await runs fn on its own goroutine and blocks until it returns.
// fn gets a context that is cancelled when the caller's is.
func Await[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	g, gctx := errgroup.WithContext(ctx)
	var v T
	g.Go(func() error {
		var err error
		v, err = fn(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}
