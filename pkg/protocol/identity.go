package protocol

import (
	"fmt"
	"net"
	"strings"
)

// endpointKey renders a peer address as "[addr]:port" with explicit IPv6
// bracketing, used as the common prefix of every identifier below. It is
// deliberately total: any net.Addr that implements String() is accepted,
// and addresses that already look bracketed (or carry no colon-separated
// port, e.g. a test double) are passed through unchanged.
func endpointKey(addr net.Addr) string {
	if addr == nil {
		return "[?]:0"
	}
	s := addr.String()
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return s
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return host + ":" + port
}

// typeCommandID renders the "TCCCCIIII" segment shared by all three
// identifiers: one type byte, four command bytes, and the 32-bit id as
// zero-padded hex.
func typeCommandID(t Type, command [4]byte, id uint32) string {
	return fmt.Sprintf("%s%s%08x", t.String(), string(command[:]), id)
}

// AckID builds the identifier used to key a pending-ack cache entry. For a
// fragmented message, idx/total is appended so each fragment's ack is
// independently addressable.
func AckID(peer net.Addr, t Type, command [4]byte, id uint32, fragmented bool, fragmentIndex, fragmentsTotal uint16) string {
	base := endpointKey(peer) + ":" + typeCommandID(t, command, id)
	if fragmented {
		return fmt.Sprintf("%s:%d/%d", base, fragmentIndex, fragmentsTotal)
	}
	return base
}

// ReassemblyID builds the identifier used to key a pending-reassembly cache
// entry, shared by every fragment of the same logical message.
func ReassemblyID(peer net.Addr, t Type, command [4]byte, id uint32, fragmentsTotal uint16) string {
	return fmt.Sprintf("%s:%s/%d", endpointKey(peer), typeCommandID(t, command, id), fragmentsTotal)
}

// ResponseID builds the identifier used to key a pending-response cache
// entry. respType is the Type a matching Response message will carry (Q
// maps to R via ResponseType); the id must match the originating Query's id.
func ResponseID(peer net.Addr, respType Type, command [4]byte, id uint32) string {
	return endpointKey(peer) + ":" + typeCommandID(respType, command, id)
}
