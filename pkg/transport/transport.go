// Package transport provides the Socket abstraction UNP sends and receives
// datagrams through, along with a pure-Go UDP implementation.
package transport

import (
	"context"
	"net"
)

// Socket is the abstract datagram transport the engine (pkg/engine) is built
// against. Each Send/Recv call moves one complete UNP frame as already
// produced by pkg/protocol.Encode/Decode — Socket itself is framing-agnostic,
// it just moves bytes to and from a peer.
type Socket interface {
	// Send transmits b to addr. The context may carry a deadline.
	Send(ctx context.Context, b []byte, addr net.Addr) error

	// Bind switches the socket into server mode, listening on port. Port 0
	// picks an OS-assigned ephemeral port, used by client-mode sockets that
	// only send to a fixed peer but still need a local address to receive
	// replies on.
	Bind(port int) error

	// Recv blocks until one datagram arrives, returning its bytes and the
	// sender's address. The context may carry a deadline or be cancelled.
	Recv(ctx context.Context) (b []byte, sender net.Addr, err error)

	// Close releases the underlying connection. Safe to call concurrently
	// with Send/Recv; blocked operations return an error.
	Close() error
}
