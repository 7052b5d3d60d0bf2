package server

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkadit/payswitch/iso8583"
)

type upperHandler struct{}

func (upperHandler) Handle(_ context.Context, payload []byte) ([]byte, error) {
	return bytes.ToUpper(bytes.TrimSpace(payload)), nil
}

type handlerFunc func(context.Context, []byte) ([]byte, error)

func (f handlerFunc) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

type countingMetrics struct {
	mu     sync.Mutex
	opened map[string]int
	closed map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{opened: map[string]int{}, closed: map[string]int{}}
}

func (m *countingMetrics) ConnectionOpened(transport string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened[transport]++
}

func (m *countingMetrics) ConnectionClosed(transport string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed[transport]++
}

func (m *countingMetrics) counts(transport string) (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened[transport], m.closed[transport]
}

func startServer(t *testing.T, h MessageHandler, opts ...Option) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithDrainTimeout(time.Second),
	}, opts...)
	srv := New(h, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrServerClosed)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ln.Addr().String()
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestServer_ReadFraming(t *testing.T) {
	addr := startServer(t, upperHandler{})
	conn := dial(t, addr)

	for _, msg := range []string{"hello", "again"} {
		_, err := conn.Write([]byte(msg))
		require.NoError(t, err)

		buf := make([]byte, 64)
		n, err := conn.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, bytes.ToUpper([]byte(msg)), buf[:n])
	}
}

func TestServer_NewlineFraming(t *testing.T) {
	addr := startServer(t, upperHandler{}, WithFraming(FramingNewline))
	conn := dial(t, addr)

	_, err := conn.Write([]byte("first\n\nsecond\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "FIRST\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "SECOND\n", line)
}

func TestServer_LengthPrefixedFraming(t *testing.T) {
	tests := []struct {
		framing Framing
		cfg     iso8583.LengthIndicatorConfig
	}{
		{FramingLength, iso8583.LengthIndicatorConfig{Type: iso8583.LengthIndicatorBinary, Length: 2}},
		{FramingLength4, iso8583.LengthIndicatorConfig{Type: iso8583.LengthIndicatorBinary, Length: 4}},
		{FramingASCII4, iso8583.LengthIndicatorConfig{Type: iso8583.LengthIndicatorASCII, Length: 4}},
		{FramingHex4, iso8583.LengthIndicatorConfig{Type: iso8583.LengthIndicatorHex, Length: 4}},
	}
	for _, tt := range tests {
		t.Run(string(tt.framing), func(t *testing.T) {
			addr := startServer(t, upperHandler{}, WithFraming(tt.framing))
			conn := dial(t, addr)

			require.NoError(t, iso8583.WriteFrame(conn, []byte(`{"msgType":"sale"}`), tt.cfg))
			reply, err := iso8583.ReadFrame(conn, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, `{"MSGTYPE":"SALE"}`, string(reply))
		})
	}
}

func TestServer_TLS(t *testing.T) {
	cfg, pool, err := SelfSignedTLSConfig([]string{"127.0.0.1"})
	require.NoError(t, err)

	metrics := newCountingMetrics()
	addr := startServer(t, upperHandler{}, WithTLS(cfg), WithMetrics(metrics))

	conn, err := tls.Dial("tcp", addr, &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("secure"))
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "SECURE", string(buf[:n]))

	opened, _ := metrics.counts("tls")
	assert.Equal(t, 1, opened)
}

func TestServer_ReadTimeoutClosesConnection(t *testing.T) {
	metrics := newCountingMetrics()
	addr := startServer(t, upperHandler{}, WithReadTimeout(50*time.Millisecond), WithMetrics(metrics))
	conn := dial(t, addr)

	_, err := conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool {
		opened, closed := metrics.counts("tcp")
		return opened == 1 && closed == 1
	}, time.Second, 10*time.Millisecond)
}

func TestServer_HandlerErrorClosesConnection(t *testing.T) {
	h := handlerFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("boom")
	})
	addr := startServer(t, h)
	conn := dial(t, addr)

	_, err := conn.Write([]byte("x"))
	require.NoError(t, err)
	_, err = conn.Read(make([]byte, 8))
	assert.ErrorIs(t, err, io.EOF)
}

func TestServer_MaxConnectionsQueuesExtraConnections(t *testing.T) {
	addr := startServer(t, upperHandler{}, WithMaxConnections(1))

	first := dial(t, addr)
	_, err := first.Write([]byte("one"))
	require.NoError(t, err)
	_, err = first.Read(make([]byte, 8))
	require.NoError(t, err)

	second := dial(t, addr)
	_, err = second.Write([]byte("two"))
	require.NoError(t, err)

	require.NoError(t, second.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err = second.Read(make([]byte, 8))
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout(), "second connection should wait for a free slot")

	first.Close()
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 8)
	n, err := second.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "TWO", string(buf[:n]))
}

func TestServer_InFlightMessageAnsweredDuringShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	h := handlerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		close(started)
		time.Sleep(100 * time.Millisecond)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []byte("done"), nil
	})
	srv := New(h, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithDrainTimeout(2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	conn := dial(t, ln.Addr().String())
	_, err = conn.Write([]byte("go"))
	require.NoError(t, err)

	<-started
	cancel()

	buf := make([]byte, 8)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "done", string(buf[:n]))

	conn.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestParseFraming(t *testing.T) {
	for _, name := range []string{"read", "newline", "length", "length4", "ascii4", "hex4"} {
		f, err := ParseFraming(name)
		require.NoError(t, err)
		assert.Equal(t, Framing(name), f)
	}

	f, err := ParseFraming("")
	require.NoError(t, err)
	assert.Equal(t, FramingRead, f)

	_, err = ParseFraming("xml")
	assert.Error(t, err)
}
