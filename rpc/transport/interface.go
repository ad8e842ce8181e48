package transport

import (
	"github.com/makeflow/ordered-lock/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// IServerConn represents one accepted client connection as seen by the
// request handler.
type IServerConn interface {
	// Reply writes one framed message to the peer. Safe for concurrent use
	// from any goroutine, which allows handlers to respond long after the
	// handler invocation returned (e.g. when a queued lock is granted).
	Reply(data []byte) error

	// RemoteAddr returns the peer address for logging
	RemoteAddr() string
}

// IServerHandler receives decoded frames and connection lifecycle events.
// This interface is implemented by the RPC dispatch layer.
type IServerHandler interface {
	// HandleMessage is called for every received frame. Implementations may
	// reply immediately or keep the conn and reply later; they must not
	// retain data after returning.
	HandleMessage(conn IServerConn, data []byte)

	// HandleDisconnect is called exactly once per connection, after its read
	// loop has terminated and all in-flight HandleMessage calls returned.
	HandleDisconnect(conn IServerConn)
}

// IRPCServerTransport is the interface for the server side transport layer.
type IRPCServerTransport interface {
	// RegisterHandler registers the handler for the transport layer.
	// Must be called before Listen.
	RegisterHandler(handler IServerHandler)

	// Listen starts the transport layer and serves incoming connections
	// until Shutdown is called.
	Listen(config common.ServerConfig) error

	// Shutdown stops the listener and closes all open connections.
	Shutdown() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IClientConn is a framed, full-duplex message stream to the server.
type IClientConn interface {
	// Send writes one framed message. Safe for concurrent use.
	Send(data []byte) error

	// Receive reads the next framed message. Must be called from a single
	// goroutine; it blocks until a frame arrives or the connection dies.
	Receive() ([]byte, error)

	// Close closes the underlying connection. Safe to call more than once.
	Close() error
}

// IRPCClientTransport is the interface for the client side transport layer.
// It dials individual connections; connection lifecycle (reconnects, request
// correlation) is owned by the client session on top of it.
type IRPCClientTransport interface {
	// Dial establishes a single connection to the configured endpoint
	Dial(config common.ClientConfig) (IClientConn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}
