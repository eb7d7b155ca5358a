package watch

import (
	"sync"
	"time"

	"image-folder-picker/scan"
)

// folderHandler filters and debounces the raw events of one folder.
type folderHandler struct {
	folder  string
	manager *Manager

	mu        sync.Mutex
	lastEvent time.Time
}

// handle accepts directory events and image file events. An accepted event
// arriving within the debounce window of the previous one is dropped.
func (h *folderHandler) handle(event Event) {
	if !event.IsDir && !scan.IsImage(event.Path) {
		watcherEvents.WithLabelValues("ignored").Inc()
		return
	}

	h.mu.Lock()
	now := h.manager.now()
	if !h.lastEvent.IsZero() && now.Sub(h.lastEvent) < h.manager.opts.EventDebounce {
		h.mu.Unlock()
		watcherEvents.WithLabelValues("debounced").Inc()
		return
	}
	h.lastEvent = now
	h.mu.Unlock()

	h.manager.schedule(h.folder)
}
