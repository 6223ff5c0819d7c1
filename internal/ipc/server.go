package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// Handler dispatches a decoded request or notification to application code.
// HandleRequest returns the result to marshal into a response, or an
// *errors.IPCError (checked via errors.As by the caller) to marshal into an
// error response.
type Handler interface {
	HandleRequest(method string, params json.RawMessage) (result any, err error)
	HandleNotification(method string, params json.RawMessage)
}

// Server listens on a filesystem socket and serves the framed protocol
// described in message.go. One Server instance owns the listener and every
// connected client.
type Server struct {
	socketPath string
	handler    Handler
	log        *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	clients  map[*client]struct{}
	closed   bool
}

// NewServer creates a server bound to socketPath. Call Serve to start
// accepting connections.
func NewServer(socketPath string, handler Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		log:        log,
		clients:    make(map[*client]struct{}),
	}
}

type client struct {
	conn   net.Conn
	server *Server
	mu     sync.Mutex // serializes writes (broadcast + handler replies)
	closed bool
}

// Serve binds the socket and blocks, accepting and serving connections until
// Close is called. On AddressInUse it probes the existing socket: a live
// peer fails the listen attempt with a clear error, a stale one is removed
// and the listen is retried exactly once.
func (s *Server) Serve() error {
	listener, err := s.bind()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("ipc server listening", slog.String("socket", s.socketPath))

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			s.log.Error("ipc accept error", slog.String("error", err.Error()))
			continue
		}
		c := &client{conn: conn, server: s}
		s.mu.Lock()
		s.clients[c] = struct{}{}
		s.mu.Unlock()
		go s.serveClient(c)
	}
}

func (s *Server) bind() (net.Listener, error) {
	listener, err := net.Listen("unix", s.socketPath)
	if err == nil {
		return listener, nil
	}
	if !errors.Is(err, os.ErrExist) && !isAddrInUse(err) {
		return nil, fmt.Errorf("ipc: listen on %s: %w", s.socketPath, err)
	}

	// AddressInUse: probe for a live peer before assuming the socket is stale.
	if probeConn, dialErr := net.Dial("unix", s.socketPath); dialErr == nil {
		_ = probeConn.Close()
		return nil, fmt.Errorf("ipc: socket %s already served by a live process", s.socketPath)
	}

	if rmErr := os.Remove(s.socketPath); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, fmt.Errorf("ipc: remove stale socket %s: %w", s.socketPath, rmErr)
	}
	listener, err = net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen on %s after stale cleanup: %w", s.socketPath, err)
	}
	return listener, nil
}

func isAddrInUse(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// serveClient decodes frames one at a time off the connection, dispatching
// requests and notifications to the handler and writing responses inline.
func (s *Server) serveClient(c *client) {
	defer s.detach(c)

	var buf []byte
	readBuf := make([]byte, 64*1024)
	for {
		n, err := c.conn.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
			if len(buf) > MaxClientBufferBytes {
				s.log.Warn("ipc client exceeded read buffer cap, disconnecting",
					slog.Int("bytes", len(buf)))
				return
			}
			for {
				env, consumed, decodeErr := Decode(buf)
				if decodeErr != nil {
					s.log.Warn("ipc decode error, disconnecting client", slog.String("error", decodeErr.Error()))
					return
				}
				if consumed == 0 {
					break
				}
				buf = buf[consumed:]
				s.dispatch(c, env)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) dispatch(c *client, env Envelope) {
	switch env.Type {
	case KindRequest:
		result, err := s.handler.HandleRequest(env.Method, env.Params)
		var resp Envelope
		if err != nil {
			resp = errorEnvelope(env.ID, err)
		} else {
			var encErr error
			resp, encErr = NewResponse(env.ID, result)
			if encErr != nil {
				resp = errorEnvelope(env.ID, encErr)
			}
		}
		c.write(resp)
	case KindNotification:
		s.handler.HandleNotification(env.Method, env.Params)
	default:
		// Servers only ever receive requests and notifications; anything
		// else is a protocol violation from a misbehaving client.
	}
}

func errorEnvelope(id uint64, err error) Envelope {
	var v wireError
	if errors.As(err, &v) {
		return NewError(id, v.NumericCode(), v.CodeString(), v.Error())
	}
	return NewError(id, 40005, "INTERNAL_ERROR", err.Error())
}

// wireError is the narrow interface errors.IPCError satisfies, letting
// internal/ipc translate application errors into the wire {code,
// codeString, message} shape without importing internal/errors.
type wireError interface {
	error
	NumericCode() int
	CodeString() string
}

func (c *client) write(env Envelope) {
	frame, err := Encode(env)
	if err != nil {
		c.server.log.Error("ipc encode response failed", slog.String("error", err.Error()))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	_, _ = c.conn.Write(frame)
}

// detach removes the client from bookkeeping before closing its connection
// (two-phase close), so a concurrent Broadcast never writes to a socket
// that's mid-teardown. Idempotent.
func (s *Server) detach(c *client) {
	s.mu.Lock()
	_, present := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if !present {
		return
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	_ = c.conn.Close()
}

// Broadcast serializes a notification once and writes it to every currently
// connected client.
func (s *Server) Broadcast(method string, params any) {
	env, err := NewNotification(method, params)
	if err != nil {
		s.log.Error("ipc broadcast encode failed", slog.String("error", err.Error()))
		return
	}
	frame, err := Encode(env)
	if err != nil {
		s.log.Error("ipc broadcast encode failed", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		c.mu.Lock()
		if !c.closed {
			_, _ = c.conn.Write(frame)
		}
		c.mu.Unlock()
	}
}

// Close stops accepting new connections and disconnects every client.
// Idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	for _, c := range clients {
		s.detach(c)
	}
	_ = os.Remove(s.socketPath)
	return nil
}

