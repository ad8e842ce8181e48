// Package transport defines the interfaces and abstractions for RPC
// communication in the lock service. It provides a common contract that all
// transport implementations must fulfill, enabling protocol-agnostic
// communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Decoupling framing and socket handling from request dispatch
//   - Enabling multiple transport implementations (TCP, Unix sockets)
//
// Key Components:
//
//   - IRPCServerTransport: Interface for server-side transport implementations
//     that accept connections and hand received frames to a handler.
//
//   - IServerHandler/IServerConn: The contract between the transport and the
//     dispatch layer. Replies go through the connection handle and may happen
//     after the handler invocation returned, which is what allows a queued
//     lock request to be answered when it is finally granted.
//
//   - IRPCClientTransport/IClientConn: Client-side dialing and the framed
//     full-duplex stream the session builds its correlation layer on.
package transport
