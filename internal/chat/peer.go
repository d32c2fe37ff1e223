// Package chat tracks per-connection peer state, including the bounded
// inbox that decouples a peer's writer from the speed of broadcasters.
package chat

import "sync"

// Peer is the server-side record of one connected client: its network
// address (the registry key), the display name chosen at connect time, and
// the receiving end of its bounded inbox.
//
// A Peer is created by Room.Join and torn down by Room.Leave. The done
// channel is closed exactly once at leave; both connection loops and any
// broadcaster blocked on a full inbox observe it.
type Peer struct {
	addr  string
	name  string
	inbox chan *Message
	done  chan struct{}
	leave sync.Once
}

// Addr returns the peer's network address, unique among connected peers.
func (p *Peer) Addr() string {
	return p.addr
}

// Name returns the display name chosen during negotiation. Names are not
// validated for emptiness or uniqueness; two peers may share one.
func (p *Peer) Name() string {
	return p.name
}

// Inbox returns the receiving end of the peer's bounded FIFO message queue.
func (p *Peer) Inbox() <-chan *Message {
	return p.inbox
}

// Done returns a channel closed when the peer has left the room.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// deliver places msg on the peer's inbox. It blocks while the inbox is full
// (backpressure on the broadcaster) but never blocks on a departed peer:
// closing done aborts the send. It reports whether the message was enqueued.
func (p *Peer) deliver(msg *Message) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.inbox <- msg:
		return true
	case <-p.done:
		return false
	}
}

// depart closes the done channel. Safe to call more than once.
func (p *Peer) depart() {
	p.leave.Do(func() {
		close(p.done)
	})
}
