// Package rpc provides the communication layer of the ordered lock service.
// It connects the client API with the server's lock manager across a network
// boundary.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the request/response protocol, wire errors, configuration
//     structures, and logging.
//
//   - transport: Network communication abstractions with pluggable
//     implementations (TCP, Unix sockets) and the length-prefixed framing.
//
//   - serializer: Message serialization with multiple format options (JSON,
//     GOB) for converting between messages and byte arrays.
//
//   - client: The client session with reconnection, request correlation and
//     the lock API with background auto-extension.
//
//   - server: The dispatcher routing decoded requests into the lock manager
//     and tracking per-connection lock ownership.
package rpc
