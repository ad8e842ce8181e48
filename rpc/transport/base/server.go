package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/makeflow/ordered-lock/rpc/common"
	"github.com/makeflow/ordered-lock/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

const defaultMaxWorkersPerConn = 64

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverConn wraps one accepted connection. Writes are serialized by a
// mutex so that deferred replies (lock grants) and worker responses can
// interleave safely.
type serverConn struct {
	conn         net.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

// Reply implements transport.IServerConn
func (c *serverConn) Reply(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return writeFrame(c.conn, data)
}

// RemoteAddr implements transport.IServerConn
func (c *serverConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// serverTransport implements the core server transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type serverTransport struct {
	connector  IServerConnector
	handler    transport.IServerHandler
	config     common.ServerConfig
	listener   net.Listener
	bufferPool *sync.Pool
	bufferSize int
	conns      *xsync.MapOf[*serverConn, struct{}]
	stopping   atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with the specified connector
func NewBaseServerTransport(connector IServerConnector, bufferSize int) transport.IRPCServerTransport {
	return &serverTransport{
		connector:  connector,
		bufferSize: bufferSize,
		conns:      xsync.NewMapOf[*serverConn, struct{}](),
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, bufferSize)
			},
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.IServerHandler) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	t.listener = listener

	Logger.Infof("Starting %s server on %s", t.connector.GetName(), config.Transport.Endpoint)

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.stopping.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		// Handle the connection in a goroutine
		go t.handleConnection(conn)
	}
}

func (t *serverTransport) Shutdown() error {
	t.stopping.Store(true)

	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}

	// Closing the sockets terminates the per-connection read loops, which in
	// turn fire the handler's disconnect path.
	t.conns.Range(func(sc *serverConn, _ struct{}) bool {
		sc.conn.Close()
		return true
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection handles incoming requests for one connection
func (t *serverTransport) handleConnection(conn net.Conn) {
	defer conn.Close()

	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		Logger.Errorf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		return
	}

	sc := &serverConn{
		conn:         conn,
		writeTimeout: time.Duration(t.config.WriteTimeoutSecond) * time.Second,
	}
	t.conns.Store(sc, struct{}{})
	defer t.conns.Delete(sc)

	Logger.Infof("Connection from %s", sc.RemoteAddr())

	maxWorkers := t.config.Transport.MaxWorkersPerConn
	if maxWorkers < 1 {
		maxWorkers = defaultMaxWorkersPerConn
	}

	// Counting semaphore limiting concurrent workers for this connection
	workerSemaphore := make(chan struct{}, maxWorkers)

	// Waits for all workers before the disconnect is reported
	var wg sync.WaitGroup

	// handleRequest reads one frame and processes it in a worker goroutine
	handleRequest := func() error {
		// Get a buffer from the pool
		buf := t.bufferPool.Get().([]byte)

		// Read the frame
		data, err := readFrame(conn, buf)
		if err != nil {
			t.bufferPool.Put(buf)
			return err
		}

		// Acquire a slot in the semaphore (blocks if maxWorkers is reached)
		workerSemaphore <- struct{}{}
		wg.Add(1)

		// Process in a goroutine. The handler must be done with the data
		// when it returns; the buffer goes back into the pool afterwards.
		go func() {
			defer func() {
				t.bufferPool.Put(buf)
				<-workerSemaphore
				wg.Done()
			}()

			start := time.Now()
			t.handler.HandleMessage(sc, data)
			Logger.Debugf("Processed request from %s in %s", sc.RemoteAddr(), time.Since(start))
		}()

		return nil
	}

	// Handle requests in a loop
	for {
		err := handleRequest()

		// Case EOF: Connection closed by client
		if err == io.EOF {
			Logger.Infof("Connection closed by %s", sc.RemoteAddr())
			break
		}

		// Case error: log and close connection
		if err != nil {
			if !t.stopping.Load() {
				Logger.Errorf("Error handling request from %s: %v", sc.RemoteAddr(), err)
			}
			break
		}
	}

	// Wait for all workers to finish, then report the disconnect so the
	// dispatcher observes a quiescent connection.
	wg.Wait()
	t.handler.HandleDisconnect(sc)
}
