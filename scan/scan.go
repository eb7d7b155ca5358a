package scan

import (
	"context"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ImagesIn returns the names of the image files directly inside dir, in
// directory order. Subdirectories are never descended into.
func ImagesIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !IsImage(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Each calls fn for every name with at most concurrency calls in flight.
// A concurrency of 0 uses DefaultConcurrency. Errors returned by fn stop the
// remaining work and the first one is returned.
func Each(ctx context.Context, names []string, concurrency int, spinner *ProgressSpinner, fn func(ctx context.Context, name string) error) error {
	if concurrency == 0 {
		concurrency = DefaultConcurrency()
	}
	if spinner != nil {
		spinner.IncrementDiscovered(len(names))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, name := range names {
		if gctx.Err() != nil {
			break
		}
		name := name
		g.Go(func() error {
			err := fn(gctx, name)
			if spinner != nil {
				spinner.IncrementProcessed()
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func DefaultConcurrency() int {
	maxProcs := runtime.GOMAXPROCS(0)
	numCPU := runtime.NumCPU()
	if maxProcs < numCPU {
		return maxProcs
	}
	return numCPU
}
