package base

import (
	"net"
	"sync"

	"github.com/makeflow/ordered-lock/rpc/transport"
)

// clientConn wraps an established network connection into a framed,
// full-duplex message stream.
type clientConn struct {
	conn    net.Conn
	writeMu sync.Mutex
	readBuf []byte
}

// NewClientConn wraps the given connection. The bufferSize is the initial
// read buffer; larger frames allocate on demand.
func NewClientConn(conn net.Conn, bufferSize int) transport.IClientConn {
	return &clientConn{
		conn:    conn,
		readBuf: make([]byte, bufferSize),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConn)
// --------------------------------------------------------------------------

func (c *clientConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.conn, data)
}

// Receive reads the next frame. The returned slice is only valid until the
// next Receive call; it aliases the connection's read buffer.
func (c *clientConn) Receive() ([]byte, error) {
	data, err := readFrame(c.conn, c.readBuf)
	if err != nil {
		return nil, err
	}
	// Keep a grown buffer for subsequent frames
	if cap(data) > len(c.readBuf) {
		c.readBuf = data[:cap(data)]
	}
	return data, nil
}

func (c *clientConn) Close() error {
	return c.conn.Close()
}
