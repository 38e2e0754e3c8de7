// Package obstest runs an in-process obs-websocket v5 server for
// tests: scripted request handlers, optional authentication, and
// event injection.
package obstest

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"reel/internal/obs/protocol"
)

// Handler scripts the response for one request type. Return Fail to
// reject the request; any other error closes the connection.
type Handler func(requestData json.RawMessage) (responseData any, err error)

type requestFailure struct {
	code    int
	comment string
}

func (f *requestFailure) Error() string { return f.comment }

// Fail builds an error that a Handler returns to produce a rejected
// requestStatus with the given code and comment.
func Fail(code int, comment string) error {
	return &requestFailure{code: code, comment: comment}
}

// Option configures New.
type Option func(*Server)

// WithPassword enables authentication. Clients must present the
// correct digest during the handshake.
func WithPassword(password string) Option {
	return func(s *Server) { s.password = password }
}

// WithHandler registers a scripted handler before the server starts.
func WithHandler(requestType string, handler Handler) Option {
	return func(s *Server) { s.handlers[requestType] = handler }
}

// Server is a fake obs-websocket endpoint.
type Server struct {
	t        *testing.T
	server   *httptest.Server
	password string

	mu       sync.Mutex
	handlers map[string]Handler
	requests map[string][]json.RawMessage
	conns    map[*conn]struct{}
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) writeJSON(op int, payload any) error {
	frame, err := protocol.Encode(op, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// New starts a server and registers cleanup with t.
func New(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		t:        t,
		handlers: make(map[string]Handler),
		requests: make(map[string][]json.RawMessage),
		conns:    make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	upgrader := websocket.Upgrader{Subprotocols: []string{"obswebsocket.json"}}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.serve(&conn{ws: ws})
	}))
	t.Cleanup(s.server.Close)
	return s
}

// URL is the websocket endpoint clients dial.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

// Handle registers or replaces a scripted handler.
func (s *Server) Handle(requestType string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[requestType] = handler
}

// Requests returns the raw requestData payloads received for one
// request type, in arrival order.
func (s *Server) Requests(requestType string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.requests[requestType]...)
}

// SendEvent pushes an op=5 frame to every identified client.
func (s *Server) SendEvent(eventType string, eventData any) {
	data, err := json.Marshal(eventData)
	if err != nil {
		s.t.Fatalf("obstest: marshal event %s: %v", eventType, err)
	}
	event := protocol.Event{EventType: eventType, EventData: data}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if err := c.writeJSON(protocol.OpEvent, event); err != nil {
			s.t.Logf("obstest: event write failed: %v", err)
		}
	}
}

func (s *Server) serve(c *conn) {
	defer c.ws.Close()

	challenge := randomToken()
	salt := randomToken()
	hello := protocol.Hello{OBSWebSocketVersion: "5.5.2", RPCVersion: protocol.RPCVersion}
	if s.password != "" {
		hello.Authentication = &protocol.Authentication{Challenge: challenge, Salt: salt}
	}
	if err := c.writeJSON(protocol.OpHello, hello); err != nil {
		return
	}

	var env protocol.Envelope
	if err := c.ws.ReadJSON(&env); err != nil {
		return
	}
	if env.Op != protocol.OpIdentify {
		return
	}
	var ident protocol.Identify
	if err := json.Unmarshal(env.Data, &ident); err != nil {
		return
	}
	if s.password != "" {
		want := protocol.AuthToken(s.password, salt, challenge)
		if ident.Authentication != want {
			msg := websocket.FormatCloseMessage(4009, "authentication failed")
			c.ws.WriteMessage(websocket.CloseMessage, msg)
			return
		}
	}
	if err := c.writeJSON(protocol.OpIdentified, protocol.Identified{NegotiatedRPCVersion: protocol.RPCVersion}); err != nil {
		return
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	for {
		if err := c.ws.ReadJSON(&env); err != nil {
			return
		}
		if env.Op != protocol.OpRequest {
			continue
		}
		var req protocol.Request
		if err := json.Unmarshal(env.Data, &req); err != nil {
			continue
		}
		if err := s.respond(c, req); err != nil {
			return
		}
	}
}

func (s *Server) respond(c *conn, req protocol.Request) error {
	s.mu.Lock()
	s.requests[req.RequestType] = append(s.requests[req.RequestType], req.RequestData)
	handler, ok := s.handlers[req.RequestType]
	s.mu.Unlock()

	resp := protocol.RequestResponse{
		RequestType: req.RequestType,
		RequestID:   req.RequestID,
	}
	if !ok {
		resp.RequestStatus = protocol.RequestStatus{Code: 204, Comment: "no handler for " + req.RequestType}
		return c.writeJSON(protocol.OpRequestResponse, resp)
	}

	responseData, err := handler(req.RequestData)
	if err != nil {
		var failure *requestFailure
		if errors.As(err, &failure) {
			resp.RequestStatus = protocol.RequestStatus{Code: failure.code, Comment: failure.comment}
			return c.writeJSON(protocol.OpRequestResponse, resp)
		}
		s.t.Errorf("obstest: handler for %s: %v", req.RequestType, err)
		return err
	}
	resp.RequestStatus = protocol.RequestStatus{Result: true, Code: 100}
	if responseData != nil {
		data, err := json.Marshal(responseData)
		if err != nil {
			s.t.Errorf("obstest: marshal %s response: %v", req.RequestType, err)
			return err
		}
		resp.ResponseData = data
	}
	return c.writeJSON(protocol.OpRequestResponse, resp)
}

func randomToken() string {
	buf := make([]byte, 16)
	rand.Read(buf)
	return base64.StdEncoding.EncodeToString(buf)
}
