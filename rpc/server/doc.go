// Package server implements the RPC dispatch layer of the lock service. It
// is a thin adapter between the transport and the lock manager: it decodes
// requests, routes them by method name, and writes responses.
//
// Key Components:
//
//   - RPCServer: Binds a transport, a serializer and a locker.Manager
//     together. Implements the transport's handler interface.
//
// Dispatch is asynchronous where the semantics require it: a lock request
// whose resources are busy is answered only when the lock manager grants it,
// times it out, or cancels it. In-flight requests of one connection may
// therefore complete out of order; the request id correlates them. Each
// connection is bound to one lock owner, and the transport's disconnect
// notification releases all of the owner's locks before the connection state
// is dropped.
package server
