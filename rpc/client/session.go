package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/makeflow/ordered-lock/rpc/common"
	"github.com/makeflow/ordered-lock/rpc/serializer"
	"github.com/makeflow/ordered-lock/rpc/transport"
)

// ErrSessionClosed indicates an operation on a session after Close.
var ErrSessionClosed = errors.New("client: session closed")

// Session maintains one logical connection to the lock server. It dials on
// creation, reconnects with exponential backoff after failures and
// disconnects, and parks callers until a connection is live. Lock state does
// not survive a reconnect: locks acquired on a lost connection are reclaimed
// by the server, and only calls issued after the reconnect succeed.
type Session struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer

	mu                sync.Mutex
	current           *Conn
	ready             chan struct{} // closed while current != nil
	reconnectInterval time.Duration

	closeOnce sync.Once
	closed    chan struct{}

	listeners listenerRegistry
}

// NewSession creates a session and starts its connect loop.
//
// Usage:
//
//	sess := client.NewSession(
//		config,
//		tcp.NewTCPClientTransport(),
//		serializer.NewJSONSerializer(),
//	)
//	defer sess.Close()
//
//	err := sess.WithLock1(ctx, "invoice:42", func(ctx context.Context, extend client.ExtendFunc) error {
//		// critical section
//		return nil
//	}, nil)
func NewSession(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) *Session {
	s := &Session{
		config:     config,
		transport:  transport,
		serializer: serializer,
		ready:      make(chan struct{}),
		closed:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Close stops the connect loop and tears down the current connection.
// Pending calls fail with ConnectionLost.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})

	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		cur.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Connection handling
// --------------------------------------------------------------------------

// conn returns the live connection, waiting through reconnects. Callers
// waiting here receive whichever connection is established next.
func (s *Session) conn(ctx context.Context) (*Conn, error) {
	for {
		s.mu.Lock()
		cur, ready := s.current, s.ready
		s.mu.Unlock()

		if cur != nil {
			return cur, nil
		}

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.closed:
			return nil, ErrSessionClosed
		}
	}
}

// currentConn returns the live connection without waiting, nil if there is
// none.
func (s *Session) currentConn() *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// run is the session's connect loop. The first attempt starts immediately;
// every later attempt is preceded by a backoff delay.
func (s *Session) run() {
	first := true
	for {
		select {
		case <-s.closed:
			return
		default:
		}

		if !first {
			delay := s.nextDelay()
			s.emitLog(LogEntry{Type: LogConnectDelay, Delay: delay, Endpoint: s.config.Endpoint})
			select {
			case <-time.After(delay):
			case <-s.closed:
				return
			}
		}
		first = false

		raw, err := s.transport.Dial(s.config)
		if err != nil {
			s.emitLog(LogEntry{Type: LogConnectError, Err: err, Endpoint: s.config.Endpoint})
			continue
		}

		conn := newConn(raw, s.serializer)

		s.mu.Lock()
		s.reconnectInterval = 0
		s.current = conn
		close(s.ready)
		s.mu.Unlock()

		Logger.Infof("Connected to %s via %s", s.config.Endpoint, s.transport.GetName())
		s.emitLog(LogEntry{Type: LogConnected, Endpoint: s.config.Endpoint})
		s.emitConnect()

		select {
		case <-conn.Done():
		case <-s.closed:
			conn.Close()
		}

		s.mu.Lock()
		s.current = nil
		s.ready = make(chan struct{})
		s.mu.Unlock()

		if err := conn.Err(); err != nil {
			s.emitLog(LogEntry{Type: LogConnectionError, Err: err, Endpoint: s.config.Endpoint})
		}
		Logger.Infof("Disconnected from %s", s.config.Endpoint)
		s.emitLog(LogEntry{Type: LogDisconnected, Endpoint: s.config.Endpoint})
		s.emitDisconnect()
	}
}

// nextDelay returns the delay before the next connect attempt and advances
// the backoff schedule. An interval of zero (fresh session, or just after a
// successful connect) starts over at the initial interval; a configured
// initial interval of zero behaves like the default.
func (s *Session) nextDelay() time.Duration {
	initial := s.config.Reconnect.InitialInterval
	if initial <= 0 {
		initial = common.DefaultInitialInterval
	}
	max := s.config.Reconnect.MaxInterval
	if max <= 0 {
		max = common.DefaultMaxInterval
	}
	multiplier := s.config.Reconnect.IntervalMultiplier
	if multiplier <= 0 {
		multiplier = common.DefaultIntervalMultiplier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.reconnectInterval
	if delay <= 0 {
		delay = initial.Duration()
	}

	next := time.Duration(float64(delay) * multiplier)
	if next > max.Duration() {
		next = max.Duration()
	}
	s.reconnectInterval = next

	return delay
}
