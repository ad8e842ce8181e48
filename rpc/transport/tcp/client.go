package tcp

import (
	"net"

	"github.com/makeflow/ordered-lock/rpc/common"
	"github.com/makeflow/ordered-lock/rpc/transport"
	"github.com/makeflow/ordered-lock/rpc/transport/base"
)

// clientTransport implements the IRPCClientTransport interface for TCP sockets
type clientTransport struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) GetName() string {
	return "tcp"
}

func (t *clientTransport) Dial(config common.ClientConfig) (transport.IClientConn, error) {
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = common.DefaultEndpoint("", 0)
	}

	conn, err := net.Dial("tcp", endpoint)
	if err != nil {
		return nil, err
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(config.TCPNoDelay); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return base.NewClientConn(conn, defaultBufferSize), nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a new TCP client transport
func NewTCPClientTransport() transport.IRPCClientTransport {
	return &clientTransport{}
}
