// Package unix implements a transport layer for the lock service's RPC
// system using Unix domain sockets. It provides optimized communication for
// processes running on the same machine.
//
// This package extends the base transport layer with Unix socket-specific
// connectors while inheriting the framing, read loops and worker handling
// from the base package.
package unix
