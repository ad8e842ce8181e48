// Package client implements the client side of the lock service: a session
// with automatic reconnection, request/response correlation on top of the
// framed transport, and the lock API with background auto-extension.
//
// The package is layered:
//
//   - Conn: One transport connection. Assigns correlation ids, matches
//     responses to pending calls and fails everything in flight with
//     ConnectionLost when the socket dies. Calls are never retried here;
//     retrying a lock call could acquire twice.
//
//   - Session: Owns the current-connection handle. A connect loop dials,
//     backs off exponentially after failures and disconnects, and wakes
//     parked callers whenever a connection is live. Lifecycle events surface
//     through a listener registry (HandleConnect, HandleDisconnect,
//     HandleLog).
//
//   - Lock API: Lock/WithLock/ExtendLock/ReleaseLock. WithLock runs a
//     handler inside the critical section, keeps the lock alive through a
//     cooperatively cancelled background extender, and releases on the way
//     out, swallowing release failures into the log stream.
//
// Locks are bound to the connection they were acquired on. After a
// reconnect, previously held lock ids are gone (the server reclaims a
// disconnected client's locks), so extends and releases for them fail with
// ConnectionLost or UnknownLock rather than silently targeting a lock the
// client no longer holds.
package client
