// Package protocol defines the UNP wire protocol: the message model, flag
// bits, the type alphabet, identity helpers, and the frame codec that turns a
// Message into one or more MTU-bounded datagrams and back.
package protocol

// Type identifies the role of a Message on the wire. It is always exactly
// one ASCII byte.
type Type byte

// The type alphabet. S, F, k, s are reserved for future use (session, frame,
// and two lower-case variants mirroring K and S) and are accepted by Valid
// but have no behavior defined anywhere in this module.
const (
	TypeCommand        Type = 'C' // application-defined verb, no response expected
	TypeQuery          Type = 'Q' // application-defined verb, response expected
	TypeResponse       Type = 'R' // reply to a Query
	TypeEvent          Type = 'E' // fire-and-forget notification
	TypeKeepAlive      Type = 'K' // liveness probe
	TypeHello          Type = 'H' // user-level hello/handshake-adjacent greeting
	TypeDiscoveryHello Type = 'h' // discovery-sweep hello (see cmd/unpctl discover)

	typeReservedSession Type = 'S'
	typeReservedFrame   Type = 'F'
	typeReservedK       Type = 'k'
	typeReservedS       Type = 's'
)

// Valid reports whether t is one of the defined or explicitly reserved type
// bytes (invariant vi, spec.md §3).
func (t Type) Valid() bool {
	switch t {
	case TypeCommand, TypeQuery, TypeResponse, TypeEvent, TypeKeepAlive, TypeHello, TypeDiscoveryHello,
		typeReservedSession, typeReservedFrame, typeReservedK, typeReservedS:
		return true
	}
	return false
}

func (t Type) String() string {
	return string(byte(t))
}

// ResponseType returns the Type a Response to a message of type t should
// carry, and whether t is a request type with a defined response mapping.
// Q maps to R; the reserved lower-case q (not itself a defined request type
// here) would map to r per spec.md §4.7, kept as a documented extension
// point rather than implemented.
func ResponseType(t Type) (Type, bool) {
	if t == TypeQuery {
		return TypeResponse, true
	}
	return 0, false
}

// Flag bits, as laid out in the 2-byte big-endian flags field (spec.md §4.1).
type Flags uint16

const (
	FlagWantAck    Flags = 1 << 0
	FlagIsAck      Flags = 1 << 1
	FlagIsNack     Flags = 1 << 2
	FlagHasData    Flags = 1 << 3
	FlagFragmented Flags = 1 << 4
	FlagCompressed Flags = 1 << 5
	FlagEncrypted  Flags = 1 << 6
	FlagSession    Flags = 1 << 7
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// Wire-format constants (spec.md §6).
const (
	MinHeaderSize         = 15
	SessionSize           = 8
	MinDataFragmentSize   = 16
	FragmentsMax          = 65535
	DefaultSignature      = "UNP"
	IPv4MTU               = 576
	IPv6MTU               = 1280
	ipUDPOverheadBytes    = 68
)

// EffectivePayload returns the usable payload-per-datagram budget for a given
// MTU, after subtracting the modeled IP+UDP header overhead (spec.md §6).
func EffectivePayload(mtu int) int {
	n := mtu - ipUDPOverheadBytes
	if n < 0 {
		return 0
	}
	return n
}
