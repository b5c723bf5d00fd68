package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const maxUDPPayload = 65507

// ErrSocketClosed is returned by Send/Recv once Close has been called.
var ErrSocketClosed = errors.New("unp transport: socket is closed")

// UDPSocket is a thin net.UDPConn wrapper implementing Socket. It is the
// default transport: a UNP frame is already self-describing (pkg/protocol's
// 15-byte preamble), so UDPSocket itself adds no framing of its own — it
// only owns the connection, deadline plumbing, and context cancellation.
type UDPSocket struct {
	mu     sync.Mutex
	conn   *net.UDPConn
	closed bool
}

// NewUDPSocket creates an unbound socket suitable for client use: it can
// Send to any peer address immediately, and receives replies once Bind (or
// an implicit bind to port 0) has given it a local address.
func NewUDPSocket() *UDPSocket {
	return &UDPSocket{}
}

// Bind listens on port, switching the socket into server mode. Port 0 binds
// an OS-assigned ephemeral port.
func (s *UDPSocket) Bind(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSocketClosed
	}
	if s.conn != nil {
		return fmt.Errorf("unp transport: socket is already bound")
	}
	laddr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("unp transport: bind port %d: %w", port, err)
	}
	s.conn = conn
	return nil
}

// Send transmits b to addr, binding an ephemeral client socket lazily on
// first use if Bind was never called.
func (s *UDPSocket) Send(ctx context.Context, b []byte, addr net.Addr) error {
	if len(b) > maxUDPPayload {
		return fmt.Errorf("unp transport: datagram is %d bytes, exceeds max UDP payload %d", len(b), maxUDPPayload)
	}
	conn, err := s.ensureConn()
	if err != nil {
		return err
	}
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", addr.String())
		if err != nil {
			return fmt.Errorf("unp transport: resolve %s: %w", addr, err)
		}
		udpAddr = resolved
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	_, err = conn.WriteToUDP(b, udpAddr)
	return err
}

// Recv blocks until one datagram arrives. The context may carry a deadline;
// cancellation is implemented by racing an expired read deadline against the
// blocking read, since net.UDPConn has no native context support.
func (s *UDPSocket) Recv(ctx context.Context) ([]byte, net.Addr, error) {
	conn, err := s.ensureConn()
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, nil, err
		}
	}

	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-readDone:
		}
	}()

	buf := make([]byte, maxUDPPayload)
	n, sender, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, sender, nil
}

// Close shuts down the underlying connection. Safe to call more than once.
func (s *UDPSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// LocalAddr returns the socket's local address, or nil if unbound.
func (s *UDPSocket) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *UDPSocket) ensureConn() (*net.UDPConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSocketClosed
	}
	if s.conn == nil {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
		if err != nil {
			return nil, fmt.Errorf("unp transport: implicit bind: %w", err)
		}
		s.conn = conn
	}
	return s.conn, nil
}

var _ Socket = (*UDPSocket)(nil)
