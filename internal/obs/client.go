// Package obs implements a client for the obs-websocket v5 control
// protocol: the identify handshake, correlated request/response over a
// single connection, and event dispatch to subscribed handlers.
package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"reel/internal/logging"
	"reel/internal/obs/protocol"
	"reel/internal/obs/transport"
)

var (
	// ErrHandshakeTimeout indicates the server did not complete the
	// identify exchange within the handshake timeout.
	ErrHandshakeTimeout = errors.New("obs: handshake timed out")

	// ErrHandshakeViolation indicates the server sent a frame the
	// protocol does not allow at that point in the handshake.
	ErrHandshakeViolation = errors.New("obs: handshake protocol violation")

	// ErrCallTimeout indicates a request's deadline passed before the
	// correlated response arrived. The request id is deregistered;
	// retries use a fresh id.
	ErrCallTimeout = errors.New("obs: call timed out")

	// ErrClientClosed is returned by Call after Close, or after the
	// connection has been lost.
	ErrClientClosed = errors.New("obs: client closed")
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultRequestTimeout   = 10 * time.Second
	defaultEventQueueSize   = 64
)

// RequestError is a request the server received and rejected. It is
// distinct from transport failures: the connection stays usable.
type RequestError struct {
	RequestType string
	Code        int
	Comment     string
}

func (e *RequestError) Error() string {
	if e.Comment != "" {
		return fmt.Sprintf("obs: %s failed with code %d: %s", e.RequestType, e.Code, e.Comment)
	}
	return fmt.Sprintf("obs: %s failed with code %d", e.RequestType, e.Code)
}

// IsAlreadyExists reports whether the server rejected a create because
// the resource is already present (code 601). Provisioning treats this
// as success.
func (e *RequestError) IsAlreadyExists() bool {
	return e.Code == 601
}

// EventHandler receives the raw eventData payload for one event.
type EventHandler func(eventData json.RawMessage)

// Options configures Connect.
type Options struct {
	// URL is the websocket endpoint, normally ws://host:4455.
	URL string

	// Password enables authentication when the server issues a
	// challenge. Ignored when the server has auth disabled.
	Password string

	// HandshakeTimeout bounds each step of the identify exchange.
	HandshakeTimeout time.Duration

	// RequestTimeout is the default per-call deadline when the
	// caller's context carries none.
	RequestTimeout time.Duration

	// EventQueueSize bounds the dispatch queue between the read loop
	// and event handlers.
	EventQueueSize int

	Logger *slog.Logger
}

func (o *Options) normalize() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	if o.EventQueueSize <= 0 {
		o.EventQueueSize = defaultEventQueueSize
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
}

// Client is a connected, identified obs-websocket session. Obtain one
// via Connect; a Client that exists has always completed the handshake.
type Client struct {
	session *transport.Session
	logger  *slog.Logger

	requestTimeout time.Duration

	pendingMu sync.Mutex
	pending   map[string]chan *protocol.RequestResponse

	handlersMu sync.RWMutex
	handlers   map[string][]EventHandler

	events chan *protocol.Event

	done      chan struct{}
	closeOnce sync.Once
}

// Connect dials url and drives the identify handshake to completion.
// The returned Client is ready for Call immediately.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	opts.normalize()

	session, err := transport.Dial(ctx, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("obs: connect: %w", err)
	}

	if err := identify(session, opts); err != nil {
		session.Close()
		return nil, err
	}

	client := &Client{
		session:        session,
		logger:         opts.Logger,
		requestTimeout: opts.RequestTimeout,
		pending:        make(map[string]chan *protocol.RequestResponse),
		handlers:       make(map[string][]EventHandler),
		events:         make(chan *protocol.Event, opts.EventQueueSize),
		done:           make(chan struct{}),
	}
	go client.readLoop()
	go client.dispatchLoop()
	return client, nil
}

// identify runs Hello -> Identify -> Identified on a fresh session.
func identify(session *transport.Session, opts Options) error {
	hello, err := readHandshakeFrame(session, opts.HandshakeTimeout)
	if err != nil {
		return err
	}
	if hello.Op != protocol.OpHello {
		return fmt.Errorf("%w: expected hello, got opcode %d", ErrHandshakeViolation, hello.Op)
	}
	if hello.Hello.RPCVersion < protocol.RPCVersion {
		return fmt.Errorf("%w: server rpc version %d is older than %d",
			ErrHandshakeViolation, hello.Hello.RPCVersion, protocol.RPCVersion)
	}

	ident := protocol.Identify{RPCVersion: protocol.RPCVersion}
	if auth := hello.Hello.Authentication; auth != nil {
		ident.Authentication = protocol.AuthToken(opts.Password, auth.Salt, auth.Challenge)
	}
	frame, err := protocol.Encode(protocol.OpIdentify, ident)
	if err != nil {
		return fmt.Errorf("obs: encode identify: %w", err)
	}
	if err := session.WriteText(frame); err != nil {
		return fmt.Errorf("obs: send identify: %w", err)
	}

	reply, err := readHandshakeFrame(session, opts.HandshakeTimeout)
	if err != nil {
		return err
	}
	if reply.Op != protocol.OpIdentified {
		return fmt.Errorf("%w: expected identified, got opcode %d", ErrHandshakeViolation, reply.Op)
	}
	return nil
}

func readHandshakeFrame(session *transport.Session, timeout time.Duration) (*protocol.Message, error) {
	if err := session.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("obs: set handshake deadline: %w", err)
	}
	defer session.SetReadDeadline(time.Time{})

	data, err := session.ReadText()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrHandshakeTimeout
		}
		return nil, fmt.Errorf("obs: handshake read: %w", err)
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeViolation, err)
	}
	return msg, nil
}

// Call issues one request and blocks until the correlated response
// arrives or the deadline passes. A rejected request is returned as a
// *RequestError with the connection still usable; transport failures
// surface as ErrClientClosed.
func (c *Client) Call(ctx context.Context, requestType string, requestData any) (json.RawMessage, error) {
	select {
	case <-c.done:
		return nil, ErrClientClosed
	default:
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	requestID := uuid.NewString()
	req := protocol.Request{RequestType: requestType, RequestID: requestID}
	if requestData != nil {
		data, err := json.Marshal(requestData)
		if err != nil {
			return nil, fmt.Errorf("obs: marshal %s request: %w", requestType, err)
		}
		req.RequestData = data
	}
	frame, err := protocol.Encode(protocol.OpRequest, req)
	if err != nil {
		return nil, err
	}

	reply := make(chan *protocol.RequestResponse, 1)
	c.pendingMu.Lock()
	c.pending[requestID] = reply
	c.pendingMu.Unlock()

	if err := c.session.WriteText(frame); err != nil {
		c.deregister(requestID)
		return nil, fmt.Errorf("obs: send %s: %w", requestType, err)
	}

	select {
	case resp := <-reply:
		if resp == nil {
			return nil, ErrClientClosed
		}
		if !resp.RequestStatus.Result {
			return nil, &RequestError{
				RequestType: requestType,
				Code:        resp.RequestStatus.Code,
				Comment:     resp.RequestStatus.Comment,
			}
		}
		return resp.ResponseData, nil
	case <-ctx.Done():
		c.deregister(requestID)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", requestType, errors.Join(ErrCallTimeout, ctx.Err()))
		}
		return nil, fmt.Errorf("obs: %s: %w", requestType, ctx.Err())
	case <-c.done:
		return nil, ErrClientClosed
	}
}

// Subscribe registers a handler for an event type. Handlers run on the
// dispatch goroutine; a handler must not call back into Close.
func (c *Client) Subscribe(eventType string, handler EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[eventType] = append(c.handlers[eventType], handler)
}

// Close tears down the connection. Pending calls fail with
// ErrClientClosed. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.session.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer c.failPending()
	defer close(c.events)
	for {
		data, err := c.session.ReadText()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("connection lost", logging.Error(err))
				c.Close()
			}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", logging.Error(err))
			continue
		}
		switch msg.Op {
		case protocol.OpRequestResponse:
			c.resolve(msg.Response)
		case protocol.OpEvent:
			select {
			case c.events <- msg.Event:
			default:
				c.logger.Warn("event queue full, dropping event",
					logging.String("event_type", msg.Event.EventType))
			}
		default:
			c.logger.Debug("ignoring frame", logging.Int("opcode", msg.Op))
		}
	}
}

func (c *Client) dispatchLoop() {
	for event := range c.events {
		c.handlersMu.RLock()
		handlers := c.handlers[event.EventType]
		c.handlersMu.RUnlock()
		for _, handler := range handlers {
			handler(event.EventData)
		}
	}
}

// resolve delivers a response to its pending call exactly once. Late
// or duplicate responses have no waiter and are dropped.
func (c *Client) resolve(resp *protocol.RequestResponse) {
	c.pendingMu.Lock()
	reply, ok := c.pending[resp.RequestID]
	if ok {
		delete(c.pending, resp.RequestID)
	}
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Debug("dropping unmatched response",
			logging.String("request_id", resp.RequestID),
			logging.String("request_type", resp.RequestType))
		return
	}
	reply <- resp
}

func (c *Client) deregister(requestID string) {
	c.pendingMu.Lock()
	delete(c.pending, requestID)
	c.pendingMu.Unlock()
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	for id, reply := range c.pending {
		delete(c.pending, id)
		reply <- nil
	}
	c.pendingMu.Unlock()
}
