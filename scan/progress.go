package scan

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// ProgressSpinner shows work progress with a spinning animation
type ProgressSpinner struct {
	label      string
	out        io.Writer
	processed  int64
	discovered int64
	mu         sync.Mutex
	ticker     *time.Ticker
	done       chan bool
	startTime  time.Time
}

// NewProgressSpinner creates and starts a new progress spinner writing to stderr
func NewProgressSpinner(label string) *ProgressSpinner {
	return newProgressSpinner(label, os.Stderr)
}

func newProgressSpinner(label string, out io.Writer) *ProgressSpinner {
	s := &ProgressSpinner{
		label:     label,
		out:       out,
		ticker:    time.NewTicker(100 * time.Millisecond),
		done:      make(chan bool),
		startTime: time.Now(),
	}

	go s.animate()

	return s
}

// animate runs the spinner animation in a background goroutine
func (s *ProgressSpinner) animate() {
	// Unicode braille spinner characters
	chars := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	i := 0

	for {
		select {
		case <-s.ticker.C:
			s.mu.Lock()
			fmt.Fprintf(s.out, "\r%s %s: %s / %s images",
				chars[i],
				s.label,
				humanize.Comma(s.Processed()),
				humanize.Comma(atomic.LoadInt64(&s.discovered)))
			s.mu.Unlock()
			i = (i + 1) % len(chars)
		case <-s.done:
			return
		}
	}
}

// IncrementProcessed increments the processed counter
func (s *ProgressSpinner) IncrementProcessed() {
	atomic.AddInt64(&s.processed, 1)
}

// IncrementDiscovered increments the discovered counter by n
func (s *ProgressSpinner) IncrementDiscovered(n int) {
	atomic.AddInt64(&s.discovered, int64(n))
}

// Processed returns how many items have been handled so far.
func (s *ProgressSpinner) Processed() int64 {
	return atomic.LoadInt64(&s.processed)
}

// Stop stops the spinner and prints the final summary
func (s *ProgressSpinner) Stop() {
	s.ticker.Stop()
	s.done <- true

	elapsed := time.Since(s.startTime)

	s.mu.Lock()
	fmt.Fprintf(s.out, "\r✓ %s: %s images in %.1fs\n",
		s.label,
		humanize.Comma(s.Processed()),
		elapsed.Seconds())
	s.mu.Unlock()
}
