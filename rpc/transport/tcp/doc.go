// Package tcp implements a transport layer for the lock service's RPC system
// using TCP sockets. It is the default transport and the one remote clients
// use; the default port is 3292.
//
// This package extends the base transport layer with TCP-specific connectors
// while inheriting the framing, read loops and worker handling from the base
// package.
//
// Key Components:
//
//   - clientTransport: Dials TCP connections and applies NoDelay
//
//   - serverConnector: Creates TCP listeners and applies socket tuning
//     (NoDelay, buffer sizes, keep-alive, linger) from the server config
package tcp
