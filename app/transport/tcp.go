package transport

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Timeouts matching the device's behavior: writes complete quickly, reads
// may idle for a long time between pushes.
const (
	tcpDialTimeout  = 5 * time.Second
	tcpWriteTimeout = 5 * time.Second
	tcpReadTimeout  = 30 * time.Second
)

// TCPTransport frames the protocol over a TCP connection to a node exposing
// the companion protocol on a socket (e.g. a WiFi or bridged device).
type TCPTransport struct {
	mu     sync.Mutex
	conn   net.Conn
	closed bool
	log    zerolog.Logger
}

// DialTCP connects to host:port and returns a framed transport.
func DialTCP(host string, port int, log zerolog.Logger) (*TCPTransport, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = 5000
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := net.DialTimeout("tcp", addr, tcpDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("tcp connect failed: %w", err)
	}
	log.Debug().Str("addr", addr).Msg("tcp transport connected")
	return &TCPTransport{conn: conn, log: log}, nil
}

// Addr returns the remote address.
func (t *TCPTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ""
	}
	return t.conn.RemoteAddr().String()
}

// WriteFrame sends one protocol frame.
func (t *TCPTransport) WriteFrame(payload []byte) error {
	t.mu.Lock()
	conn, closed := t.conn, t.closed
	t.mu.Unlock()
	if closed || conn == nil {
		return ErrClosed
	}

	_ = conn.SetWriteDeadline(time.Now().Add(tcpWriteTimeout))
	if err := writeFrame(conn, payload); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	t.log.Trace().Int("len", len(payload)).Hex("data", payload).Msg("sent frame")
	return nil
}

// ReadFrame blocks for the next inbound frame. A read deadline bounds each
// attempt so the caller can treat timeouts as idle periods.
func (t *TCPTransport) ReadFrame() ([]byte, error) {
	t.mu.Lock()
	conn, closed := t.conn, t.closed
	t.mu.Unlock()
	if closed || conn == nil {
		return nil, ErrClosed
	}

	_ = conn.SetReadDeadline(time.Now().Add(tcpReadTimeout))
	frame, err := readFrame(conn)
	if err != nil {
		return nil, err
	}
	t.log.Trace().Int("len", len(frame)).Hex("data", frame).Msg("recv frame")
	return frame, nil
}

// Close shuts the connection down.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
