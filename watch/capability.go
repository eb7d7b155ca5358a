package watch

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrUnavailable is returned by capabilities that cannot observe the filesystem.
var ErrUnavailable = errors.New("folder watching unavailable")

// Event is one raw filesystem notification for an entry of a watched folder.
type Event struct {
	Path  string
	IsDir bool
}

// Subscription is an active, non-recursive observation of one folder.
type Subscription interface {
	Cancel() error
}

// Capability is the source of filesystem events. The Manager talks only to
// this interface so hosts without OS notifications get a uniform
// "unavailable" answer instead of special cases.
type Capability interface {
	// Available reports whether Subscribe can succeed at all.
	Available() bool
	// Subscribe starts delivering events for the direct children of folder to fn.
	Subscribe(folder string, fn func(Event)) (Subscription, error)
	// Close stops event delivery, waiting at most timeout for it to end.
	Close(timeout time.Duration) error
}

// Noop never delivers events.
type Noop struct{}

func (Noop) Available() bool { return false }

func (Noop) Subscribe(string, func(Event)) (Subscription, error) { return nil, ErrUnavailable }

func (Noop) Close(time.Duration) error { return nil }

// NewCapability returns an fsnotify-backed Capability, or Noop when the
// platform watcher cannot be created.
func NewCapability() Capability {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("Warning: filesystem watcher unavailable, folder monitoring disabled: %v", err)
		return Noop{}
	}

	c := &fsCapability{
		watcher:  w,
		handlers: make(map[string]func(Event)),
		done:     make(chan struct{}),
	}
	go c.run()
	return c
}

// fsCapability multiplexes every subscribed folder over one fsnotify
// watcher; a single goroutine delivers all events.
type fsCapability struct {
	watcher  *fsnotify.Watcher
	mu       sync.RWMutex
	handlers map[string]func(Event)
	done     chan struct{}
	stopOnce sync.Once
}

func (c *fsCapability) Available() bool { return true }

func (c *fsCapability) Subscribe(folder string, fn func(Event)) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.handlers[folder]; ok {
		return nil, fmt.Errorf("already subscribed to %s", folder)
	}
	if err := c.watcher.Add(folder); err != nil {
		return nil, err
	}
	c.handlers[folder] = fn
	return &fsSubscription{capability: c, folder: folder}, nil
}

func (c *fsCapability) Close(timeout time.Duration) error {
	c.stopOnce.Do(func() {
		go c.watcher.Close()
	})

	select {
	case <-c.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("watcher did not stop within %s", timeout)
	}
}

func (c *fsCapability) run() {
	defer close(c.done)

	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.dispatch(event)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Folder watcher error: %v", err)
		}
	}
}

func (c *fsCapability) dispatch(event fsnotify.Event) {
	c.mu.RLock()
	fn := c.handlers[filepath.Dir(event.Name)]
	self := c.handlers[event.Name]
	c.mu.RUnlock()

	switch {
	case fn != nil:
		fn(Event{Path: event.Name, IsDir: isDir(event.Name)})
	case self != nil:
		// The watched folder itself was removed or renamed.
		self(Event{Path: event.Name, IsDir: true})
	}
}

// isDir stats path; entries that are already gone are taken to be
// directories when their name has no extension.
func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return filepath.Ext(path) == ""
	}
	return info.IsDir()
}

type fsSubscription struct {
	capability *fsCapability
	folder     string
}

func (s *fsSubscription) Cancel() error {
	c := s.capability
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.handlers, s.folder)
	if err := c.watcher.Remove(s.folder); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return err
	}
	return nil
}
