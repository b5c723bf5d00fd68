package protocol

import (
	"fmt"
	"net"
)

// Message is the logical unit the application sends or receives (spec.md
// §3). Payload is either a decoded application value (Payload != nil,
// RawPayload == nil) or an opaque buffer left undecoded by the codec
// (RawPayload != nil, Payload == nil) — "decoded/encoded" is a flip-flop
// invariant, never both at once.
type Message struct {
	Signature [3]byte
	Type      Type
	Command   [4]byte
	ID        uint32

	WantAck     bool
	IsAck       bool
	IsNack      bool
	Fragmented  bool
	Reassembled bool
	Compressed  bool
	Encrypted   bool
	HasData     bool

	SessionID      [8]byte
	HasSession     bool
	FragmentIndex  uint16
	FragmentsTotal uint16

	Payload    any
	RawPayload []byte

	// Sender is the peer endpoint: set on receive, nil on send.
	Sender net.Addr
}

// CommandString returns Command as a string for logging and map keys.
func (m *Message) CommandString() string { return string(m.Command[:]) }

// SignatureString returns Signature as a string.
func (m *Message) SignatureString() string { return string(m.Signature[:]) }

// SetCommand validates and sets Command from a string. command must be
// exactly 4 alphanumeric ASCII bytes (invariant vii).
func (m *Message) SetCommand(command string) error {
	if len(command) != 4 {
		return fmt.Errorf("unp: command %q must be exactly 4 bytes", command)
	}
	var c [4]byte
	for i := 0; i < 4; i++ {
		b := command[i]
		if !isAlphaNumeric(b) {
			return fmt.Errorf("unp: command %q: byte %d (%q) is not alphanumeric ASCII", command, i, b)
		}
		c[i] = b
	}
	m.Command = c
	return nil
}

func isAlphaNumeric(b byte) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	}
	return false
}

// Validate checks the structural invariants of spec.md §3 (i)-(v), (vii).
// Fragments_total defaulting and fragment_index < fragments_total (iv) are
// only checked when Fragmented is set, matching invariant (v): an ack/nack
// may be fragmented (addressing a specific fragment of a prior message)
// without carrying a payload of its own.
func (m *Message) Validate() error {
	if m.IsAck && m.WantAck {
		return newError(KindIllegalFlags, "validate", fmt.Errorf("is_ack and want_ack are mutually exclusive"))
	}
	if (m.IsAck || m.IsNack) && m.HasData {
		return newError(KindIllegalFlags, "validate", fmt.Errorf("ack/nack must not carry data"))
	}
	if (m.Compressed || m.Encrypted) && !m.HasData {
		return newError(KindIllegalFlags, "validate", fmt.Errorf("compressed/encrypted requires has_data"))
	}
	if m.Fragmented && m.FragmentIndex >= m.FragmentsTotal {
		return newError(KindIllegalFlags, "validate", fmt.Errorf("fragment_index %d >= fragments_total %d", m.FragmentIndex, m.FragmentsTotal))
	}
	if !m.Type.Valid() {
		return newError(KindUnknownType, "validate", fmt.Errorf("type %q", m.Type))
	}
	for i, b := range m.Command {
		if !isAlphaNumeric(b) {
			return newError(KindMalformed, "validate", fmt.Errorf("command byte %d (%q) is not alphanumeric ASCII", i, b))
		}
	}
	return nil
}
