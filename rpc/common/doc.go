// Package common provides core data structures and utilities shared across
// the ordered lock service. It defines fundamental types, configuration
// structures, and protocol elements used by other packages.
//
// The package focuses on:
//   - The request/response message protocol between client and server
//   - Configuration structures for client and server components
//   - Custom logging implementation with consistent formatting
//
// Key Components:
//
//   - Request/Response: The two message shapes of the RPC protocol. A request
//     carries an id, a method name and a positional parameter array; a
//     response echoes the id and carries either a result or an error.
//
//   - Method: Enumeration of the supported operations (lock, extend-lock,
//     release-lock), plus the positional parameter codecs for each of them.
//
//   - Error: The wire representation of a failed call, carrying a stable
//     error name (LockingTimeout, UnknownLock, NotOwner, InvalidRequest,
//     ConnectionLost) alongside a human-readable message. Matches sentinels
//     via errors.Is by name.
//
//   - Seconds: Durations as (possibly fractional) seconds, the unit used for
//     every duration crossing the wire.
//
//   - ServerConfig/ClientConfig: Configuration for both peers, including
//     socket tuning, the reconnect backoff schedule and lock defaults.
package common
