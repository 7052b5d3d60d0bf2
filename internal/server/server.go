// Package server accepts terminal connections over TCP or TLS, frames the
// byte stream into messages and hands each one to a MessageHandler.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ErrTimedOut is logged when a terminal stays silent past the read timeout.
var ErrTimedOut = errors.New("connection read timed out")

// ErrServerClosed is returned by Serve after the context is cancelled.
var ErrServerClosed = errors.New("server closed")

// MessageHandler turns one terminal message into its reply.
type MessageHandler interface {
	Handle(ctx context.Context, payload []byte) ([]byte, error)
}

// ConnectionMetrics is the slice of observability.Metrics the server needs.
type ConnectionMetrics interface {
	ConnectionOpened(transport string)
	ConnectionClosed(transport string)
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened(string) {}
func (nopMetrics) ConnectionClosed(string) {}

// Server is a terminal listener. One goroutine serves each connection and
// messages on a connection are handled in order.
type Server struct {
	handler      MessageHandler
	framing      Framing
	readTimeout  time.Duration
	drainTimeout time.Duration
	maxConns     int
	tlsConfig    *tls.Config
	logger       *slog.Logger
	metrics      ConnectionMetrics

	sem   chan struct{}
	wg    sync.WaitGroup
	mu    sync.Mutex
	conns map[Connection]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithFraming sets the message framing. Defaults to FramingRead.
func WithFraming(f Framing) Option {
	return func(s *Server) {
		s.framing = f
	}
}

// WithReadTimeout closes a connection that sends nothing for d.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = d
	}
}

// WithDrainTimeout bounds how long Serve waits for open connections after
// shutdown before closing them.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.drainTimeout = d
	}
}

// WithMaxConnections caps concurrently served connections. Further accepted
// connections wait for a free slot.
func WithMaxConnections(n int) Option {
	return func(s *Server) {
		s.maxConns = n
	}
}

// WithTLS serves TLS instead of plain TCP.
func WithTLS(cfg *tls.Config) Option {
	return func(s *Server) {
		s.tlsConfig = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMetrics(m ConnectionMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New returns a server that passes every framed message to handler.
func New(handler MessageHandler, opts ...Option) *Server {
	s := &Server{
		handler:      handler,
		framing:      FramingRead,
		readTimeout:  30 * time.Second,
		drainTimeout: 30 * time.Second,
		maxConns:     1000,
		logger:       slog.Default(),
		metrics:      nopMetrics{},
		conns:        make(map[Connection]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxConns > 0 {
		s.sem = make(chan struct{}, s.maxConns)
	}
	return s
}

func (s *Server) transport() string {
	if s.tlsConfig != nil {
		return "tls"
	}
	return "tcp"
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then stops
// accepting and waits for open connections to finish. In-flight messages
// are not cancelled. Serve always returns a non-nil error; after a clean
// shutdown it is ErrServerClosed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("terminal listener started",
		slog.String("addr", ln.Addr().String()),
		slog.String("transport", s.transport()),
		slog.String("framing", string(s.framing)),
	)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	// Handlers run detached from shutdown so a message already read is
	// always answered.
	hctx := context.WithoutCancel(ctx)

	var acceptErr error
	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				acceptErr = fmt.Errorf("accept: %w", err)
			}
			break
		}
		if !s.acquire(ctx) {
			raw.Close()
			break
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			s.serveConn(hctx, raw)
		}()
	}

	s.drain()
	if acceptErr != nil {
		return acceptErr
	}
	return ErrServerClosed
}

func (s *Server) acquire(ctx context.Context) bool {
	if s.sem == nil {
		return true
	}
	select {
	case s.sem <- struct{}{}:
		return true
	default:
	}
	s.logger.Warn("connection limit reached, waiting for a free slot", slog.Int("max_connections", s.maxConns))
	select {
	case s.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) release() {
	if s.sem != nil {
		<-s.sem
	}
}

func (s *Server) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return
	case <-timer.C:
	}

	s.mu.Lock()
	s.logger.Warn("drain timeout, closing open connections", slog.Int("open", len(s.conns)))
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	<-done
}

func (s *Server) track(c Connection, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if open {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

func (s *Server) serveConn(ctx context.Context, raw net.Conn) {
	peer := raw.RemoteAddr().String()
	conn, err := accept(ctx, raw, s.tlsConfig, s.readTimeout)
	if err != nil {
		s.logger.Warn("rejected connection", slog.String("remote_addr", peer), slog.Any("error", err))
		raw.Close()
		return
	}

	s.track(conn, true)
	s.metrics.ConnectionOpened(conn.Transport())
	s.logger.Info("terminal connected", slog.String("remote_addr", peer), slog.String("transport", conn.Transport()))
	defer func() {
		conn.Close()
		s.track(conn, false)
		s.metrics.ConnectionClosed(conn.Transport())
		s.logger.Info("terminal disconnected", slog.String("remote_addr", peer))
	}()

	fr := newFramer(s.framing, conn)
	for {
		if s.readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
				return
			}
		}
		payload, err := fr.ReadMessage()
		if err != nil {
			s.logReadError(peer, err)
			return
		}

		reply, err := s.handler.Handle(ctx, payload)
		if err != nil {
			s.logger.Error("handler failed", slog.String("remote_addr", peer), slog.Any("error", err))
			return
		}
		if err := fr.WriteMessage(reply); err != nil {
			s.logger.Warn("failed to write reply", slog.String("remote_addr", peer), slog.Any("error", err))
			return
		}
	}
}

func (s *Server) logReadError(peer string, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF):
	case errors.As(err, &ne) && ne.Timeout():
		s.logger.Info("closing idle connection", slog.String("remote_addr", peer), slog.Any("error", ErrTimedOut))
	case errors.Is(err, net.ErrClosed):
	default:
		s.logger.Warn("read failed", slog.String("remote_addr", peer), slog.Any("error", err))
	}
}
