package watch

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscription struct {
	capability *fakeCapability
	folder     string
}

func (s *fakeSubscription) Cancel() error {
	f := s.capability
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, s.folder)
	f.cancelled++
	return nil
}

type fakeCapability struct {
	mu         sync.Mutex
	handlers   map[string]func(Event)
	subscribed int
	cancelled  int
	closed     bool
}

func newFakeCapability() *fakeCapability {
	return &fakeCapability{handlers: make(map[string]func(Event))}
}

func (f *fakeCapability) Available() bool { return true }

func (f *fakeCapability) Subscribe(folder string, fn func(Event)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[folder] = fn
	f.subscribed++
	return &fakeSubscription{capability: f, folder: folder}, nil
}

func (f *fakeCapability) Close(time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeCapability) fire(t *testing.T, folder, name string) {
	t.Helper()
	f.mu.Lock()
	fn := f.handlers[folder]
	f.mu.Unlock()
	require.NotNil(t, fn, "no subscription for %s", folder)
	fn(Event{Path: filepath.Join(folder, name), IsDir: filepath.Ext(name) == ""})
}

type fakeNotifier struct {
	mu      sync.Mutex
	events  []string
	folders []string
	err     error
}

func (n *fakeNotifier) Send(event string, data any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.folders = append(n.folders, data.(FolderChanged).Folder)
	return n.err
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.folders...)
}

func canonicalTempDir(t *testing.T) string {
	t.Helper()
	dir, err := Canonical(t.TempDir())
	require.NoError(t, err)
	return dir
}

// settle waits past the flush delay so any scheduled flush has happened.
const settle = 900 * time.Millisecond

func TestWatchRefcount(t *testing.T) {
	dir := canonicalTempDir(t)
	capability := newFakeCapability()
	m := New(capability, &fakeNotifier{}, DefaultOptions())

	assert.True(t, m.Watch(dir))
	assert.True(t, m.Watch(dir))
	assert.Equal(t, 1, capability.subscribed)
	assert.True(t, m.IsWatching(dir))

	assert.True(t, m.Unwatch(dir), "one reference left")
	assert.True(t, m.IsWatching(dir))
	assert.False(t, m.Unwatch(dir))
	assert.False(t, m.IsWatching(dir))
	assert.Equal(t, 1, capability.cancelled)
}

func TestUnwatchMoreThanWatched(t *testing.T) {
	dir := canonicalTempDir(t)
	capability := newFakeCapability()
	m := New(capability, &fakeNotifier{}, DefaultOptions())

	assert.True(t, m.Watch(dir))
	assert.False(t, m.Unwatch(dir))
	assert.False(t, m.Unwatch(dir))
	assert.False(t, m.IsWatching(dir))
	assert.Equal(t, 1, capability.cancelled)

	// The count did not go negative: one watch is enough to be watched again.
	assert.True(t, m.Watch(dir))
	assert.True(t, m.IsWatching(dir))
	assert.False(t, m.Unwatch(dir))
}

func TestWatchRejectsNonDirectories(t *testing.T) {
	dir := canonicalTempDir(t)
	file := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	m := New(newFakeCapability(), &fakeNotifier{}, DefaultOptions())
	assert.False(t, m.Watch(file))
	assert.False(t, m.Watch(filepath.Join(dir, "missing")))
	assert.False(t, m.Watch(""))
	assert.Empty(t, m.Watched())
}

func TestWatchUnavailable(t *testing.T) {
	m := New(Noop{}, &fakeNotifier{}, DefaultOptions())
	assert.False(t, m.Available())
	assert.False(t, m.Watch(t.TempDir()))
	assert.Empty(t, m.Watched())
}

func TestWatchCanonicalizesPaths(t *testing.T) {
	dir := canonicalTempDir(t)
	sub := filepath.Join(dir, "photos")
	require.NoError(t, os.Mkdir(sub, 0755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(sub, link))

	capability := newFakeCapability()
	m := New(capability, &fakeNotifier{}, DefaultOptions())

	assert.True(t, m.Watch(sub))
	assert.True(t, m.Watch(filepath.Join(dir, "photos", "..", "photos")))
	assert.True(t, m.Watch(link))
	assert.Equal(t, 1, capability.subscribed)
	assert.Equal(t, []string{sub}, m.Watched())
	assert.True(t, m.IsWatching(link))
}

func TestCanonicalMissingPath(t *testing.T) {
	dir := canonicalTempDir(t)
	got, err := Canonical(filepath.Join(dir, "a", "..", "gone"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gone"), got)
}

func TestEventsAreDebounced(t *testing.T) {
	dir := canonicalTempDir(t)
	capability := newFakeCapability()
	notifier := &fakeNotifier{}
	m := New(capability, notifier, DefaultOptions())
	require.True(t, m.Watch(dir))

	capability.fire(t, dir, "a.png")
	time.Sleep(50 * time.Millisecond)
	capability.fire(t, dir, "b.png")

	assert.Eventually(t, func() bool { return len(notifier.sent()) > 0 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(settle)
	assert.Equal(t, []string{dir}, notifier.sent())

	notifier.mu.Lock()
	assert.Equal(t, []string{FolderChangedEvent}, notifier.events)
	notifier.mu.Unlock()
}

func TestEventsBatchAcrossFolders(t *testing.T) {
	root := canonicalTempDir(t)
	a := filepath.Join(root, "a")
	b := filepath.Join(root, "b")
	require.NoError(t, os.Mkdir(a, 0755))
	require.NoError(t, os.Mkdir(b, 0755))

	capability := newFakeCapability()
	notifier := &fakeNotifier{}
	m := New(capability, notifier, DefaultOptions())
	require.True(t, m.Watch(a))
	require.True(t, m.Watch(b))

	capability.fire(t, b, "x.jpg")
	capability.fire(t, a, "y.webp")

	assert.Eventually(t, func() bool { return len(notifier.sent()) == 2 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(settle)
	assert.Equal(t, []string{a, b}, notifier.sent())
}

func TestNonImageEventsIgnored(t *testing.T) {
	dir := canonicalTempDir(t)
	capability := newFakeCapability()
	notifier := &fakeNotifier{}
	m := New(capability, notifier, DefaultOptions())
	require.True(t, m.Watch(dir))

	capability.fire(t, dir, "notes.txt")
	capability.fire(t, dir, "model.safetensors")
	time.Sleep(settle)
	assert.Empty(t, notifier.sent())

	capability.fire(t, dir, "subfolder")
	assert.Eventually(t, func() bool { return len(notifier.sent()) == 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestPausedEventsAreDropped(t *testing.T) {
	dir := canonicalTempDir(t)
	capability := newFakeCapability()
	notifier := &fakeNotifier{}
	m := New(capability, notifier, DefaultOptions())
	require.True(t, m.Watch(dir))

	m.Pause()
	assert.True(t, m.Paused())
	capability.fire(t, dir, "a.png")
	time.Sleep(settle)
	assert.Empty(t, notifier.sent())

	m.Resume()
	assert.False(t, m.Paused())
	assert.Empty(t, notifier.sent(), "changes made while paused are not replayed")

	capability.fire(t, dir, "b.png")
	assert.Eventually(t, func() bool { return len(notifier.sent()) == 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestPauseDuringPendingFlush(t *testing.T) {
	dir := canonicalTempDir(t)
	capability := newFakeCapability()
	notifier := &fakeNotifier{}
	m := New(capability, notifier, DefaultOptions())
	require.True(t, m.Watch(dir))

	capability.fire(t, dir, "a.png")
	m.Pause()
	time.Sleep(settle)
	assert.Empty(t, notifier.sent())
}

func TestNotifierErrorsDoNotStopDelivery(t *testing.T) {
	dir := canonicalTempDir(t)
	capability := newFakeCapability()
	notifier := &fakeNotifier{err: errors.New("no clients")}
	m := New(capability, notifier, DefaultOptions())
	require.True(t, m.Watch(dir))

	capability.fire(t, dir, "a.png")
	assert.Eventually(t, func() bool { return len(notifier.sent()) == 1 }, 2*time.Second, 20*time.Millisecond)

	time.Sleep(400 * time.Millisecond)
	capability.fire(t, dir, "b.png")
	assert.Eventually(t, func() bool { return len(notifier.sent()) == 2 }, 2*time.Second, 20*time.Millisecond)
}

func TestShutdownDiscardsPending(t *testing.T) {
	dir := canonicalTempDir(t)
	capability := newFakeCapability()
	notifier := &fakeNotifier{}
	m := New(capability, notifier, DefaultOptions())
	require.True(t, m.Watch(dir))

	capability.fire(t, dir, "a.png")
	m.Shutdown()
	m.Shutdown()
	time.Sleep(settle)

	assert.Empty(t, notifier.sent())
	assert.True(t, capability.closed)
	assert.Empty(t, m.Watched())
	assert.False(t, m.Watch(dir))
}

func TestFsnotifyCapability(t *testing.T) {
	capability := NewCapability()
	if !capability.Available() {
		t.Skip("filesystem notifications unavailable")
	}

	dir := canonicalTempDir(t)
	notifier := &fakeNotifier{}
	m := New(capability, notifier, DefaultOptions())
	defer m.Shutdown()
	require.True(t, m.Watch(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	time.Sleep(settle)
	assert.Empty(t, notifier.sent())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.png"), []byte("x"), 0644))
	assert.Eventually(t, func() bool { return len(notifier.sent()) >= 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, dir, notifier.sent()[0])

	assert.False(t, m.Unwatch(dir))
}
