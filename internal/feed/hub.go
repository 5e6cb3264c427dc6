// Package feed fans out project snapshots to in-process subscribers.
package feed

import (
	"sync"

	"treso/internal/ports"
)

// Any subscribes to every project. Caches keyed on the project id use it.
const Any = "*"

// Hub implements ports.SnapshotSubscriber. Publish delivers synchronously,
// in subscription order, on the publisher's goroutine.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string][]subscription
}

type subscription struct {
	id uint64
	fn func(ports.Snapshot)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string][]subscription)}
}

// Subscribe registers onSnapshot for projectID. Calling the returned
// function more than once is a no-op.
func (h *Hub) Subscribe(projectID string, onSnapshot func(ports.Snapshot)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[projectID] = append(h.subs[projectID], subscription{id: id, fn: onSnapshot})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(projectID, id) })
	}
}

// Publish hands snap to every subscriber of snap.ProjectID, then to the
// Any subscribers. Subscribers added or removed during delivery take effect
// from the next Publish.
func (h *Hub) Publish(snap ports.Snapshot) {
	h.mu.Lock()
	subs := append([]subscription(nil), h.subs[snap.ProjectID]...)
	if snap.ProjectID != Any {
		subs = append(subs, h.subs[Any]...)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.fn(snap)
	}
}

// Subscribers returns the number of live subscriptions for projectID.
func (h *Hub) Subscribers(projectID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[projectID])
}

func (h *Hub) remove(projectID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[projectID]
	for i, s := range list {
		if s.id == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.subs, projectID)
		return
	}
	h.subs[projectID] = list
}
