package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/makeflow/ordered-lock/lib/locker"
	"github.com/makeflow/ordered-lock/rpc/common"
	"github.com/makeflow/ordered-lock/rpc/serializer"
	"github.com/makeflow/ordered-lock/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// RPCServer dispatches lock calls from client connections to the lock
// manager. It implements transport.IServerHandler: requests may complete
// asynchronously (a queued lock is answered when it is granted), and a
// disconnect releases everything the connection owns.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	manager    *locker.Manager
	owners     *xsync.MapOf[transport.IServerConn, *locker.Owner]
}

// NewRPCServer creates a new lock server.
// It takes a config, transport and serializer as parameters.
//
// Usage:
//
//	s := server.NewRPCServer(
//		config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	serverTransport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	Logger.Infof("Created lock server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:     config,
		transport:  serverTransport,
		serializer: serializer,
		manager:    locker.NewManager(),
		owners:     xsync.NewMapOf[transport.IServerConn, *locker.Owner](),
	}
}

// Serve starts the lock server and blocks until Shutdown is called.
func (s *RPCServer) Serve() error {
	logLevel := s.config.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	common.InitLoggers(logLevel)

	if s.config.MetricsEndpoint != "" {
		go s.serveMetrics()
	}

	s.transport.RegisterHandler(s)
	return s.transport.Listen(s.config)
}

// Shutdown stops the transport. Connection teardown releases all locks.
func (s *RPCServer) Shutdown() error {
	return s.transport.Shutdown()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerHandler)
// --------------------------------------------------------------------------

func (s *RPCServer) HandleMessage(conn transport.IServerConn, data []byte) {
	var req common.Request
	if err := s.serializer.Deserialize(data, &req); err != nil {
		Logger.Errorf("Failed to deserialize request from %s: %v", conn.RemoteAddr(), err)
		metricsInvalid.Inc()
		s.reply(conn, common.NewErrorResponse(nil,
			common.NewError(common.ErrNameInvalidRequest, "malformed request: %v", err)))
		return
	}

	// The frame buffer is reused once this handler returns; everything that
	// may be referenced later (deferred lock replies) has to be copied out.
	id := append(json.RawMessage(nil), req.ID...)

	switch req.Method {
	case common.MethodLock:
		metricsLockCalls.Inc()
		s.handleLock(conn, id, req.Params)
	case common.MethodExtendLock:
		metricsExtendCalls.Inc()
		s.handleExtendLock(conn, id, req.Params)
	case common.MethodReleaseLock:
		metricsReleaseCalls.Inc()
		s.handleReleaseLock(conn, id, req.Params)
	default:
		metricsInvalid.Inc()
		s.reply(conn, common.NewErrorResponse(id,
			common.NewError(common.ErrNameInvalidRequest, "unknown method: %q", req.Method)))
	}
}

func (s *RPCServer) HandleDisconnect(conn transport.IServerConn) {
	if owner, ok := s.owners.LoadAndDelete(conn); ok {
		s.manager.ReleaseOwner(owner)
	}
}

// --------------------------------------------------------------------------
// Method handlers
// --------------------------------------------------------------------------

// handleLock enqueues the acquisition; the reply is sent whenever it is
// granted, times out, or fails validation. A cancelled acquisition (the
// connection closed while waiting) gets no reply.
func (s *RPCServer) handleLock(conn transport.IServerConn, id json.RawMessage, rawParams json.RawMessage) {
	var params common.LockParams
	if err := json.Unmarshal(rawParams, &params); err != nil {
		s.reply(conn, common.NewErrorResponse(id,
			common.NewError(common.ErrNameInvalidRequest, "%v", err)))
		return
	}

	owner := s.owner(conn)
	s.manager.Acquire(
		owner,
		params.Resources,
		params.Options.TTL.Duration(),
		params.Options.LockingTimeout.Duration(),
		func(lockID string, err error) {
			if errors.Is(err, locker.ErrCancelled) {
				return
			}
			if err != nil {
				s.reply(conn, common.NewErrorResponse(id, wireError(err)))
				return
			}
			resp, err := common.NewResultResponse(id, lockID)
			if err != nil {
				Logger.Errorf("Failed to build lock response: %v", err)
				return
			}
			s.reply(conn, resp)
		},
	)
}

func (s *RPCServer) handleExtendLock(conn transport.IServerConn, id json.RawMessage, rawParams json.RawMessage) {
	var params common.ExtendLockParams
	if err := json.Unmarshal(rawParams, &params); err != nil {
		s.reply(conn, common.NewErrorResponse(id,
			common.NewError(common.ErrNameInvalidRequest, "%v", err)))
		return
	}

	if err := s.manager.Extend(s.owner(conn), params.LockID, params.TTL.Duration()); err != nil {
		s.reply(conn, common.NewErrorResponse(id, wireError(err)))
		return
	}
	s.replyNull(conn, id)
}

func (s *RPCServer) handleReleaseLock(conn transport.IServerConn, id json.RawMessage, rawParams json.RawMessage) {
	var params common.ReleaseLockParams
	if err := json.Unmarshal(rawParams, &params); err != nil {
		s.reply(conn, common.NewErrorResponse(id,
			common.NewError(common.ErrNameInvalidRequest, "%v", err)))
		return
	}

	if err := s.manager.Release(s.owner(conn), params.LockID); err != nil {
		s.reply(conn, common.NewErrorResponse(id, wireError(err)))
		return
	}
	s.replyNull(conn, id)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// owner returns the lock owner bound to the connection, creating it on the
// connection's first lock-related request.
func (s *RPCServer) owner(conn transport.IServerConn) *locker.Owner {
	owner, _ := s.owners.LoadOrCompute(conn, func() *locker.Owner {
		return s.manager.NewOwner(conn.RemoteAddr())
	})
	return owner
}

// reply serializes and writes a response. Write failures are logged only:
// the connection is gone and its teardown path reclaims the locks.
func (s *RPCServer) reply(conn transport.IServerConn, resp *common.Response) {
	data, err := s.serializer.Serialize(resp)
	if err != nil {
		Logger.Errorf("Failed to serialize response: %v", err)
		return
	}
	if err := conn.Reply(data); err != nil {
		Logger.Debugf("Failed to write response to %s: %v", conn.RemoteAddr(), err)
	}
}

// replyNull sends the protocol's null result response
func (s *RPCServer) replyNull(conn transport.IServerConn, id json.RawMessage) {
	resp, err := common.NewResultResponse(id, nil)
	if err != nil {
		Logger.Errorf("Failed to build response: %v", err)
		return
	}
	s.reply(conn, resp)
}

// wireError maps lock manager errors to their wire representation
func wireError(err error) *common.Error {
	switch {
	case errors.Is(err, locker.ErrLockingTimeout):
		return common.NewError(common.ErrNameLockingTimeout, "locking timeout elapsed")
	case errors.Is(err, locker.ErrUnknownLock):
		return common.NewError(common.ErrNameUnknownLock, "unknown lock")
	case errors.Is(err, locker.ErrNotOwner):
		return common.NewError(common.ErrNameNotOwner, "lock is owned by another connection")
	case errors.Is(err, locker.ErrInvalidResources):
		return common.NewError(common.ErrNameInvalidRequest, "resource set is empty")
	case errors.Is(err, locker.ErrInvalidTTL):
		return common.NewError(common.ErrNameInvalidRequest, "ttl must be positive")
	default:
		return common.NewError(common.ErrNameInvalidRequest, "%v", err)
	}
}

// serveMetrics exposes the process metrics in Prometheus text format
func (s *RPCServer) serveMetrics() {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
	if err := http.ListenAndServe(s.config.MetricsEndpoint, mux); err != nil {
		Logger.Errorf("Metrics endpoint failed: %v", err)
	}
}
