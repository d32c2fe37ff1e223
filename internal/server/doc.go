// Package server implements the network surface of the chat service: the
// line-oriented TCP listener, the per-connection protocol handlers, and the
// optional HTTP listener carrying the health check and WebSocket bridge.
//
// The implementation is organized into specialized files for configuration,
// the listener, connection handling, origin checks, and the WebSocket
// transport to keep the codebase maintainable and testable as it grows.
package server
