// Package chat implements the connection and broadcast coordinator of the
// relay: the session registry that maps connections to display names, the
// per-connection lifecycle state machine, and the payloads fanned out to
// connected clients.
//
// The package has no transport knowledge. Outbound delivery goes through the
// Broadcaster interface, which the WebSocket hub implements. A Handler and its
// Registry are not safe for concurrent use; they are meant to be driven from a
// single event loop.
package chat
