package unix

import (
	"net"

	"github.com/makeflow/ordered-lock/rpc/common"
	"github.com/makeflow/ordered-lock/rpc/transport"
	"github.com/makeflow/ordered-lock/rpc/transport/base"
)

// clientTransport implements the IRPCClientTransport interface for Unix sockets
type clientTransport struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) GetName() string {
	return "unix"
}

func (t *clientTransport) Dial(config common.ClientConfig) (transport.IClientConn, error) {
	conn, err := net.Dial("unix", config.Endpoint)
	if err != nil {
		return nil, err
	}
	return base.NewClientConn(conn, defaultBufferSize), nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixClientTransport creates a new Unix client transport
func NewUnixClientTransport() transport.IRPCClientTransport {
	return &clientTransport{}
}
