package client

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/makeflow/ordered-lock/rpc/common"
	"github.com/makeflow/ordered-lock/rpc/serializer"
	"github.com/makeflow/ordered-lock/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("client")

// callResult contains the outcome of a single call
type callResult struct {
	result json.RawMessage
	err    error
}

// Conn correlates requests and responses on one transport connection. Calls
// may be issued concurrently; responses are matched by id and delivered at
// most once. When the socket dies, every pending call fails with
// ConnectionLost; calls are never retried at this layer because a retried
// lock call could acquire twice.
type Conn struct {
	raw        transport.IClientConn
	serializer serializer.IRPCSerializer

	nextID  atomic.Uint64
	pending *xsync.MapOf[string, chan callResult]

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// newConn wraps a freshly dialed transport connection and starts its
// response reader.
func newConn(raw transport.IClientConn, s serializer.IRPCSerializer) *Conn {
	c := &Conn{
		raw:        raw,
		serializer: s,
		pending:    xsync.NewMapOf[string, chan callResult](),
		closed:     make(chan struct{}),
	}
	go c.readResponses()
	return c
}

// Call issues one RPC and blocks until the response arrives, the context is
// done, or the connection dies.
func (c *Conn) Call(ctx context.Context, method common.Method, params any) (json.RawMessage, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	id := common.NumericID(c.nextID.Add(1))
	req := &common.Request{ID: id, Method: method, Params: rawParams}

	data, err := c.serializer.Serialize(req)
	if err != nil {
		return nil, err
	}

	// Register the pending completion before sending so a fast response
	// cannot miss it
	key := string(id)
	respCh := make(chan callResult, 1)
	c.pending.Store(key, respCh)
	defer c.pending.Delete(key)

	if err := c.raw.Send(data); err != nil {
		return nil, common.NewError(common.ErrNameConnectionLost, "send failed: %v", err)
	}

	select {
	case r := <-respCh:
		return r.result, r.err
	case <-c.closed:
		return nil, common.NewError(common.ErrNameConnectionLost, "connection closed before the response arrived")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns a channel that is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Err returns the error that closed the connection, nil for a local Close.
// Only meaningful after Done is closed.
func (c *Conn) Err() error {
	return c.closeErr
}

// Close tears the connection down. Pending calls fail with ConnectionLost.
func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// readResponses reads responses in a loop and resolves the matching pending
// calls until the connection dies.
func (c *Conn) readResponses() {
	for {
		data, err := c.raw.Receive()
		if err != nil {
			c.shutdown(err)
			return
		}

		var resp common.Response
		if err := c.serializer.Deserialize(data, &resp); err != nil {
			Logger.Errorf("Failed to deserialize response: %v", err)
			continue
		}

		// LoadAndDelete gives at-most-once delivery per id
		respCh, ok := c.pending.LoadAndDelete(string(resp.ID))
		if !ok {
			Logger.Warningf("Received response for unknown request id %s", string(resp.ID))
			continue
		}

		if resp.Error != nil {
			respCh <- callResult{err: resp.Error}
			continue
		}

		// The frame buffer is reused by the next Receive; copy the result out
		respCh <- callResult{result: append(json.RawMessage(nil), resp.Result...)}
	}
}

// shutdown closes the connection once and fails every pending call
func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.closeErr = cause
		c.raw.Close()
		close(c.closed)

		c.pending.Range(func(key string, _ chan callResult) bool {
			if respCh, ok := c.pending.LoadAndDelete(key); ok {
				respCh <- callResult{err: common.NewError(common.ErrNameConnectionLost, "connection closed before the response arrived")}
			}
			return true
		})
	})
}
