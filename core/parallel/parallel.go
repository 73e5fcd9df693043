package parallel

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
)

// Workers returns the worker count to use for n items.
// A non-positive limit means one worker per CPU core.
func Workers(n, limit int) int {
	workers := limit
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n // No need for more workers than items
	}
	return workers
}

// ForEach calls fn(ctx, i) for every i in [0, n) on at most limit goroutines.
// The first error cancels the context passed to the remaining calls and is returned.
// A panic inside fn is converted into an error naming the item index.
func ForEach(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	items := make(chan int)

	for w := 0; w < Workers(n, limit); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range items {
				err := errors.SafeExecute(fmt.Sprintf("item %d", i), func() error {
					return fn(ctx, i)
				})
				if err != nil {
					once.Do(func() {
						firstErr = err
						cancel()
					})
				}
			}
		}()
	}

send:
	for i := 0; i < n; i++ {
		select {
		case items <- i:
		case <-ctx.Done():
			break send
		}
	}
	close(items)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// ForEachWithThreshold runs sequentially when n is at or below threshold.
func ForEachWithThreshold(ctx context.Context, n, threshold, limit int, fn func(ctx context.Context, i int) error) error {
	if n <= threshold {
		return ForEach(ctx, n, 1, fn)
	}
	return ForEach(ctx, n, limit, fn)
}
