// Package chat coordinates peer registration, message broadcast, and
// departure cleanup for the shared room via the Room type.
package chat

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultQueueCapacity bounds how many undelivered messages a slow peer can
// accumulate before broadcasters start blocking on it.
const DefaultQueueCapacity = 128

// Room is the process-wide registry of connected peers keyed by network
// address. It is the single source of truth for room membership; all access
// goes through Join, Leave, and Broadcast, which are safe for concurrent use.
type Room struct {
	mu       sync.RWMutex
	peers    map[string]*Peer
	capacity int
	log      zerolog.Logger
}

// NewRoom creates an empty room whose peers get inboxes of the given
// capacity. A non-positive capacity falls back to DefaultQueueCapacity.
func NewRoom(capacity int, log zerolog.Logger) *Room {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Room{
		peers:    make(map[string]*Peer),
		capacity: capacity,
		log:      log,
	}
}

// Join registers a new peer under addr, announces it to every other peer,
// and returns the peer record holding the inbox receiver. The joining peer
// does not receive its own join event.
func (r *Room) Join(addr, name string) *Peer {
	p := &Peer{
		addr:  addr,
		name:  name,
		inbox: make(chan *Message, r.capacity),
		done:  make(chan struct{}),
	}

	r.mu.Lock()
	r.peers[addr] = p
	total := len(r.peers)
	r.mu.Unlock()

	r.log.Info().Str("peer", name).Str("addr", addr).Int("total", total).
		Msg("peer joined the chat room")

	r.Broadcast(addr, NewJoin(name))
	return p
}

// Leave removes addr from the registry, signals the peer's loops to stop,
// and announces the departure to the remaining peers. Leaving an address
// that is not registered is a silent no-op, so either connection loop may
// call Leave without coordinating with the other.
func (r *Room) Leave(addr, name string) {
	r.mu.Lock()
	p, ok := r.peers[addr]
	if ok {
		delete(r.peers, addr)
	}
	total := len(r.peers)
	r.mu.Unlock()

	if !ok {
		return
	}

	p.depart()
	r.log.Info().Str("peer", name).Str("addr", addr).Int("total", total).
		Msg("peer left the chat room")

	r.Broadcast(addr, NewLeave(name))
}

// Broadcast delivers msg to every registered peer except the one at from.
// Fan-out order across peers is unspecified. A delivery that cannot complete
// because the recipient already departed is logged and skipped; it never
// aborts delivery to the remaining peers.
func (r *Room) Broadcast(from string, msg *Message) {
	for _, p := range r.snapshot() {
		if p.addr == from {
			continue
		}
		if !p.deliver(msg) {
			r.log.Warn().Str("peer", p.name).Str("addr", p.addr).
				Msg("skipping delivery to departed peer")
		}
	}
}

// Len reports how many peers are currently registered.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// snapshot copies the current peer set so delivery happens without holding
// the registry lock across channel sends.
func (r *Room) snapshot() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}
