package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// Connection is an accepted terminal connection. The read loop only relies
// on this interface, so plain and TLS sockets are handled alike.
type Connection interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadDeadline(t time.Time) error
	RemoteAddr() net.Addr
	// Transport is "tcp" or "tls".
	Transport() string
}

type plainConn struct {
	net.Conn
}

func (plainConn) Transport() string { return "tcp" }

type tlsConn struct {
	*tls.Conn
}

func (tlsConn) Transport() string { return "tls" }

// accept wraps raw for the server's transport. TLS connections complete
// their handshake within timeout.
func accept(ctx context.Context, raw net.Conn, cfg *tls.Config, timeout time.Duration) (Connection, error) {
	if cfg == nil {
		return plainConn{raw}, nil
	}
	conn := tls.Server(raw, cfg)
	hctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := conn.HandshakeContext(hctx); err != nil {
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn{conn}, nil
}
