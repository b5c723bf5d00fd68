// Package transport provides the Socket abstraction UNP uses for datagram
// I/O.
//
// UDPSocket in udp.go is a pure-Go, zero-CGo implementation built directly
// on net.UDPConn: it implements Send/Recv with context deadline and
// cancellation support, and nothing else — framing is pkg/protocol's job,
// not this package's. This mirrors the teacher's overlay transport's
// cancellation-via-deadline-goroutine pattern, with the bespoke magic/
// version/length header removed (pkg/protocol's own preamble already fills
// that role; stacking two framing layers would double-frame every
// datagram).
package transport
