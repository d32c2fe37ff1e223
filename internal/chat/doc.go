// Package chat implements the in-memory chat room core: the room event
// model, the peer registry, and the sender-excluded broadcast protocol
// shared by every transport.
//
// The implementation is organized into message, peer, and room files so the
// value types stay independent of the registry's synchronization concerns.
package chat
