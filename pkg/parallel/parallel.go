// Package parallel runs data-parallel phases over index ranges. Each call is a
// full barrier: it returns only after every block has finished.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Blocks returns the number of blocks of size chunk needed to cover n items.
func Blocks(n, chunk int) int {
	if n <= 0 {
		return 0
	}
	if chunk <= 0 {
		chunk = n
	}
	return (n + chunk - 1) / chunk
}

// For splits [0, n) into blocks of size chunk and calls fn(block, start, end)
// for each block on at most workers goroutines. The first error cancels the
// remaining blocks and is returned.
func For(ctx context.Context, n, chunk, workers int, fn func(block, start, end int) error) error {
	if n <= 0 {
		return nil
	}
	if chunk <= 0 {
		chunk = n
	}
	blocks := Blocks(n, chunk)

	// Not worth a goroutine.
	if blocks == 1 || workers == 1 {
		for b := 0; b < blocks; b++ {
			start, end := bounds(b, n, chunk)
			if err := fn(b, start, end); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for b := 0; b < blocks; b++ {
		start, end := bounds(b, n, chunk)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(b, start, end)
		})
	}
	return g.Wait()
}

func bounds(block, n, chunk int) (int, int) {
	start := block * chunk
	end := start + chunk
	if end > n {
		end = n
	}
	return start, end
}
