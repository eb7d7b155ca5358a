// Package watch tracks which folders the UI is showing and tells connected
// clients when their contents change. Watches are reference counted per
// canonical path; raw events are debounced per folder and then batched
// into one notification per folder per flush.
package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FolderChangedEvent is the push event name sent for every changed folder.
const FolderChangedEvent = "imagefolderpicker.folder_changed"

var (
	watcherEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imagefolderpicker_watch_events_total",
		Help: "Raw filesystem events by what the watcher did with them",
	}, []string{"outcome"})

	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imagefolderpicker_watch_notifications_total",
		Help: "Folder change notifications by delivery result",
	}, []string{"result"})

	watchedFolders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imagefolderpicker_watched_folders",
		Help: "Folders with at least one active watch",
	})
)

// FolderChanged is the payload of a FolderChangedEvent.
type FolderChanged struct {
	Folder string `json:"folder"`
}

// Notifier delivers an event to every connected client.
type Notifier interface {
	Send(event string, data any) error
}

// Options tunes the timing of a Manager.
type Options struct {
	// EventDebounce drops events for a folder arriving this soon after the
	// last accepted one.
	EventDebounce time.Duration
	// FlushDelay is how long pending folders wait for more changes.
	FlushDelay time.Duration
	// ShutdownTimeout bounds how long Shutdown waits for the capability.
	ShutdownTimeout time.Duration
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		EventDebounce:   300 * time.Millisecond,
		FlushDelay:      500 * time.Millisecond,
		ShutdownTimeout: 5 * time.Second,
	}
}

type registration struct {
	refs int
	sub  Subscription
}

// Manager owns every folder watch in the process.
type Manager struct {
	capability Capability
	notifier   Notifier
	opts       Options
	now        func() time.Time

	mu      sync.Mutex
	watches map[string]*registration
	closed  bool

	// notifyMu guards the pending set and flush timer. It is never held
	// while calling the notifier.
	notifyMu sync.Mutex
	pending  map[string]struct{}
	timer    *time.Timer
	timerGen uint64
	stopped  bool

	paused atomic.Bool

	shutdownOnce sync.Once
}

// New returns a Manager that observes folders through capability and
// reports changes to notifier.
func New(capability Capability, notifier Notifier, opts Options) *Manager {
	defaults := DefaultOptions()
	if opts.EventDebounce <= 0 {
		opts.EventDebounce = defaults.EventDebounce
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = defaults.FlushDelay
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaults.ShutdownTimeout
	}

	return &Manager{
		capability: capability,
		notifier:   notifier,
		opts:       opts,
		now:        time.Now,
		watches:    make(map[string]*registration),
		pending:    make(map[string]struct{}),
	}
}

// Canonical resolves path to the absolute, cleaned, symlink-free form used
// as the watch key. Paths that do not exist keep their cleaned absolute form.
func Canonical(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, nil
		}
		return "", err
	}
	return resolved, nil
}

// Available reports whether watches can succeed on this host.
func (m *Manager) Available() bool {
	return m.capability.Available()
}

// Watch adds a reference to folder, starting an OS-level watch for the
// first one. It returns false when watching is unavailable, the folder is
// not a directory, or the manager has shut down.
func (m *Manager) Watch(folder string) bool {
	if !m.capability.Available() {
		return false
	}

	path, err := Canonical(folder)
	if err != nil {
		log.Printf("Failed to resolve watch path %q: %v", folder, err)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	if reg, ok := m.watches[path]; ok {
		reg.refs++
		return true
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}

	h := &folderHandler{folder: path, manager: m}
	sub, err := m.capability.Subscribe(path, h.handle)
	if err != nil {
		log.Printf("Failed to watch %s: %v", path, err)
		return false
	}

	m.watches[path] = &registration{refs: 1, sub: sub}
	watchedFolders.Set(float64(len(m.watches)))
	log.Printf("Watching %s", path)
	return true
}

// Unwatch drops a reference to folder and reports whether the folder is
// still being watched afterwards. The OS-level watch ends with the last
// reference; unwatching an unknown folder is a no-op.
func (m *Manager) Unwatch(folder string) bool {
	path, err := Canonical(folder)
	if err != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.watches[path]
	if !ok {
		return false
	}

	reg.refs--
	if reg.refs > 0 {
		return true
	}

	delete(m.watches, path)
	watchedFolders.Set(float64(len(m.watches)))
	if err := reg.sub.Cancel(); err != nil {
		log.Printf("Failed to stop watching %s: %v", path, err)
	}
	log.Printf("Stopped watching %s", path)
	return false
}

// IsWatching reports whether folder has at least one reference.
func (m *Manager) IsWatching(folder string) bool {
	path, err := Canonical(folder)
	if err != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watches[path]
	return ok
}

// Watched returns the canonical paths of all watched folders, sorted.
func (m *Manager) Watched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	folders := make([]string, 0, len(m.watches))
	for path := range m.watches {
		folders = append(folders, path)
	}
	sort.Strings(folders)
	return folders
}

// Pause suppresses notifications until Resume. Changes made while paused
// are never reported.
func (m *Manager) Pause() {
	m.paused.Store(true)
}

// Resume re-enables notifications.
func (m *Manager) Resume() {
	m.paused.Store(false)
}

// Paused reports whether notifications are suppressed.
func (m *Manager) Paused() bool {
	return m.paused.Load()
}

// Shutdown cancels any pending flush, forgets every watch and stops the
// capability. The manager refuses new watches afterwards.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.notifyMu.Lock()
		m.stopped = true
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		m.timerGen++
		m.pending = make(map[string]struct{})
		m.notifyMu.Unlock()

		m.mu.Lock()
		m.closed = true
		m.watches = make(map[string]*registration)
		watchedFolders.Set(0)
		m.mu.Unlock()

		if err := m.capability.Close(m.opts.ShutdownTimeout); err != nil {
			log.Printf("Folder watcher shutdown: %v", err)
		}
	})
}

// schedule marks folder as changed and restarts the flush timer.
func (m *Manager) schedule(folder string) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	if m.stopped {
		return
	}
	if m.paused.Load() {
		watcherEvents.WithLabelValues("paused").Inc()
		return
	}

	watcherEvents.WithLabelValues("accepted").Inc()
	m.pending[folder] = struct{}{}

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timerGen++
	gen := m.timerGen
	m.timer = time.AfterFunc(m.opts.FlushDelay, func() { m.flush(gen) })
}

// flush sends one notification per pending folder. A timer that was
// superseded by a later schedule finds a newer generation and does nothing.
func (m *Manager) flush(gen uint64) {
	m.notifyMu.Lock()
	if gen != m.timerGen || m.stopped {
		m.notifyMu.Unlock()
		return
	}
	folders := make([]string, 0, len(m.pending))
	for folder := range m.pending {
		folders = append(folders, folder)
	}
	m.pending = make(map[string]struct{})
	m.timer = nil
	m.notifyMu.Unlock()

	if len(folders) == 0 {
		return
	}
	if m.paused.Load() {
		notificationsSent.WithLabelValues("suppressed").Add(float64(len(folders)))
		return
	}

	sort.Strings(folders)
	for _, folder := range folders {
		if err := m.notify(folder); err != nil {
			notificationsSent.WithLabelValues("failed").Inc()
			log.Printf("Failed to send folder change for %s: %v", folder, err)
			continue
		}
		notificationsSent.WithLabelValues("sent").Inc()
	}
}

func (m *Manager) notify(folder string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return m.notifier.Send(FolderChangedEvent, FolderChanged{Folder: folder})
}
