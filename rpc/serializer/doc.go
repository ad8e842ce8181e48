// Package serializer provides message serialization for the lock service RPC
// system. It defines a common interface and two implementations for encoding
// the request and response messages exchanged between client and server.
//
// The package focuses on:
//   - Providing a consistent interface for different serialization formats
//   - Keeping the wire format pluggable without touching transport or dispatch
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: Implementation using JSON encoding. This is the
//     protocol's canonical wire format and the default; it interoperates with
//     non-Go peers.
//
//   - gobSerializerImpl: Implementation using Go's built-in gob encoding, an
//     option for Go-to-Go deployments.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
package serializer
