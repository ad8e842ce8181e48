// Package base provides a foundation for transport layers of the lock
// service, implementing core functionality for RPC communication independent
// of the specific network protocol (TCP, Unix sockets). It serves as a base
// layer that is extended with protocol-specific connectors.
//
// The package focuses on:
//   - Protocol-agnostic client and server transport implementations
//   - A length-prefixed frame codec carrying one serialized message per frame
//   - Buffer reuse through a sync.Pool on the server's read path
//   - Write serialization so asynchronous replies can interleave safely
//
// Key Components:
//
//   - IServerConnector: Interface for protocol-specific listener creation and
//     socket upgrades, allowing the base transport to be extended with
//     different network protocols.
//
//   - serverTransport: Core server implementation that accepts connections,
//     reads frames in a per-connection loop and hands them to the registered
//     handler through a bounded worker pool. The handler replies through the
//     connection handle, immediately or later; the disconnect notification
//     fires once all in-flight workers have drained.
//
//   - clientConn: Framed full-duplex stream used by the client session. One
//     goroutine reads, any goroutine may send.
//
// The frame format is a 4 byte big-endian payload length followed by the
// payload. Request/response correlation lives inside the payload, not in the
// frame header.
package base
