// Package chat defines the room event model: a closed set of message
// variants with a canonical wire rendering.
package chat

import "fmt"

// Kind discriminates the event variants a room can broadcast.
type Kind int

// The full set of room events. The variant set is fixed; rendering is
// exhaustive over it.
const (
	KindJoin Kind = iota
	KindLeave
	KindChat
)

// Message is a single room event. A Message is immutable once constructed
// and one *Message value is shared by every recipient of a broadcast.
type Message struct {
	kind    Kind
	name    string // joining/leaving peer for Join/Leave, sender for Chat
	content string // chat text, empty for Join/Leave
}

// NewJoin creates the event announcing that name entered the room.
func NewJoin(name string) *Message {
	return &Message{kind: KindJoin, name: name}
}

// NewLeave creates the event announcing that name left the room.
func NewLeave(name string) *Message {
	return &Message{kind: KindLeave, name: name}
}

// NewChat creates a chat event carrying one line of text from the named sender.
func NewChat(from, content string) *Message {
	return &Message{kind: KindChat, name: from, content: content}
}

// Kind reports which variant this message is.
func (m *Message) Kind() Kind {
	return m.kind
}

// String renders the message in its canonical single-line wire format.
func (m *Message) String() string {
	switch m.kind {
	case KindJoin:
		return fmt.Sprintf("%s joined the chat room", m.name)
	case KindLeave:
		return fmt.Sprintf("%s left the chat room", m.name)
	default:
		return fmt.Sprintf("%s: %s", m.name, m.content)
	}
}
