package realtime

import "sync"

// Hub fans event-store updates out to live dashboard subscribers. Tracking
// handlers publish after every accepted event; the websocket handler
// subscribes per experiment. Slow subscribers drop updates instead of
// blocking ingestion.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan []byte]struct{})}
}

var defaultHub = NewHub()

// Default returns the process-wide hub.
func Default() *Hub {
	return defaultHub
}

// Subscribe registers interest in one experiment's updates. The returned
// cancel function must be called when the subscriber goes away.
func (h *Hub) Subscribe(experimentID string) (<-chan []byte, func()) {
	ch := make(chan []byte, 8)

	h.mu.Lock()
	if h.subs[experimentID] == nil {
		h.subs[experimentID] = make(map[chan []byte]struct{})
	}
	h.subs[experimentID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[experimentID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, experimentID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers a payload to every subscriber of an experiment.
// Non-blocking: subscribers with full buffers miss this update.
func (h *Hub) Publish(experimentID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[experimentID] {
		select {
		case ch <- payload:
		default:
		}
	}
}

// SubscriberCount reports how many live connections watch an experiment.
func (h *Hub) SubscriberCount(experimentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[experimentID])
}
