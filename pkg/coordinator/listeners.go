package coordinator

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/skycoin/vpn-coordinator/pkg/connstatus"
)

// Listener receives deduplicated status transitions, in the order the
// platform reported them.
type Listener func(status connstatus.Status)

type listenerEntry struct {
	id     uint64
	fn     Listener
	active atomic.Bool
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	entry *listenerEntry
	reg   *listenerRegistry
	once  sync.Once
}

// Unsubscribe stops deliveries to the listener. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.entry.active.Store(false)
		s.reg.remove(s.entry.id)
	})
}

type listenerRegistry struct {
	mx      sync.Mutex
	nextID  uint64
	entries map[uint64]*listenerEntry
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{entries: make(map[uint64]*listenerEntry)}
}

func (r *listenerRegistry) add(fn Listener) *Subscription {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.nextID++
	e := &listenerEntry{id: r.nextID, fn: fn}
	e.active.Store(true)
	r.entries[e.id] = e

	return &Subscription{entry: e, reg: r}
}

func (r *listenerRegistry) remove(id uint64) {
	r.mx.Lock()
	delete(r.entries, id)
	r.mx.Unlock()
}

// snapshot returns the registered listeners in subscription order.
func (r *listenerRegistry) snapshot() []*listenerEntry {
	r.mx.Lock()
	out := make([]*listenerEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mx.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *listenerRegistry) count() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.entries)
}
