// Package validation implements the statistical validation engines:
// permutation test, block bootstrap and walk-forward segmentation.
// Trials may execute on any number of workers in any order; results
// are always merged back by deterministic trial index, never by
// completion order, so wall-clock scheduling never affects output
// bytes.
package validation

import (
	"context"
	"sync"
)

// RunIndexed executes fn for every index in [0, n) across `workers`
// goroutines and returns the results ordered by index. The first error
// wins; remaining work is drained without being recorded.
func RunIndexed[T any](ctx context.Context, workers, n int, fn func(i int) (T, error)) ([]T, error) {
	if n == 0 {
		return []T{}, nil
	}
	if workers <= 1 {
		results := make([]T, n)
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r, err := fn(i)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}

	if workers > n {
		workers = n
	}

	results := make([]T, n)
	indices := make(chan int)
	errCh := make(chan error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				r, err := fn(i)
				if err != nil {
					errCh <- err
					return
				}
				results[i] = r // each index written exactly once
			}
		}()
	}

	var firstErr error
feed:
	for i := 0; i < n; i++ {
		select {
		case indices <- i:
		case err := <-errCh:
			firstErr = err
			break feed
		case <-ctx.Done():
			firstErr = ctx.Err()
			break feed
		}
	}
	close(indices)
	wg.Wait()

	if firstErr == nil {
		select {
		case err := <-errCh:
			firstErr = err
		default:
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
