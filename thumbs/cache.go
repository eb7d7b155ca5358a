package thumbs

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"image-folder-picker/scan"
)

var (
	thumbnailRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imagefolderpicker_thumbnail_requests_total",
		Help: "Thumbnail requests by how they were answered",
	}, []string{"result"})

	thumbnailGenerateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagefolderpicker_thumbnail_generate_duration_seconds",
		Help:    "Time spent decoding, resizing and encoding one thumbnail",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})
)

// Cache serves thumbnails from disk, generating them on demand. Concurrent
// requests for the same cache file share a single generation.
type Cache struct {
	group singleflight.Group
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the JPEG thumbnail of folder/filename at size. A stale or
// missing cache file is regenerated first; if generation fails an uncached
// render of the original is returned instead. Callers must have checked
// that the source exists inside folder.
func (c *Cache) Get(folder, filename string, size int) ([]byte, error) {
	size = ResolveSize(size)
	source := filepath.Join(folder, filename)
	cachePath := CachePath(folder, filename, size)

	if IsValid(source, cachePath) {
		if data, err := os.ReadFile(cachePath); err == nil {
			thumbnailRequests.WithLabelValues("hit").Inc()
			return data, nil
		}
	}

	err := c.generate(source, cachePath, size, false)
	if err == nil {
		data, readErr := os.ReadFile(cachePath)
		if readErr == nil {
			thumbnailRequests.WithLabelValues("generated").Inc()
			return data, nil
		}
		err = readErr
	}
	log.Printf("Error generating thumbnail for %s: %v", source, err)

	var buf bytes.Buffer
	if err := Render(&buf, source, size); err != nil {
		thumbnailRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	thumbnailRequests.WithLabelValues("fallback").Inc()
	return buf.Bytes(), nil
}

// generate writes the thumbnail unless, with force unset, another caller
// already produced a fresh one while this one waited.
func (c *Cache) generate(source, cachePath string, size int, force bool) error {
	_, err, _ := c.group.Do(cachePath, func() (any, error) {
		if !force && IsValid(source, cachePath) {
			return nil, nil
		}
		start := time.Now()
		err := Generate(source, cachePath, size)
		thumbnailGenerateDuration.Observe(time.Since(start).Seconds())
		return nil, err
	})
	return err
}

// RefreshResult counts the outcome of a Refresh.
type RefreshResult struct {
	Regenerated int `json:"regenerated"`
	Errors      int `json:"errors"`
}

// Refresh regenerates the size thumbnail of every image directly inside
// folder, valid or not. Up to workers images are processed at once; spinner
// may be nil. Per-image failures are counted, not returned.
func (c *Cache) Refresh(ctx context.Context, folder string, size, workers int, spinner *scan.ProgressSpinner) (RefreshResult, error) {
	names, err := scan.ImagesIn(folder)
	if err != nil {
		return RefreshResult{}, err
	}

	var regenerated, failed int64
	err = scan.Each(ctx, names, workers, spinner, func(_ context.Context, name string) error {
		source := filepath.Join(folder, name)
		if err := c.generate(source, CachePath(folder, name, size), ResolveSize(size), true); err != nil {
			log.Printf("Error regenerating thumbnail for %s: %v", source, err)
			atomic.AddInt64(&failed, 1)
			return nil
		}
		atomic.AddInt64(&regenerated, 1)
		return nil
	})

	return RefreshResult{
		Regenerated: int(regenerated),
		Errors:      int(failed),
	}, err
}
