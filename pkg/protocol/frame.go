package protocol

import (
	"encoding/binary"
	"fmt"
	"net"
)

// DecodeConfig controls how Decode validates an inbound datagram.
type DecodeConfig struct {
	// Signature is the expected 3-byte protocol signature. Packets whose
	// signature differs are rejected outright (spec.md §4.1).
	Signature [3]byte
	// AllowedCommands, when non-empty, is the allow-list of 4-byte commands
	// accepted; any other command is rejected. An empty/nil map allows every
	// command. This is the corrected reading of the open question in
	// spec.md §9: reject when the command is NOT in the allow-list.
	AllowedCommands map[[4]byte]bool
	// EnableSession allows SESSION-flagged packets through; when false
	// (the default) such packets are rejected (spec.md §9).
	EnableSession bool
}

// Decode parses a single inbound datagram into a Message. On success the
// Message's Payload is left nil and RawPayload holds the (possibly still
// compressed) payload bytes — lazy decode, per spec.md §4.1. Decode never
// runs the Serializer; callers decode RawPayload via DecodePayload once the
// message is known to be complete (not awaiting reassembly).
func Decode(datagram []byte, sender net.Addr, cfg DecodeConfig) (*Message, error) {
	if len(datagram) < MinHeaderSize {
		return nil, newError(KindMalformed, "decode", fmt.Errorf("datagram is %d bytes, need at least %d", len(datagram), MinHeaderSize))
	}
	var sig [3]byte
	copy(sig[:], datagram[0:3])
	if sig != cfg.Signature {
		return nil, newError(KindMalformed, "decode", fmt.Errorf("signature %q does not match expected %q", sig, cfg.Signature))
	}
	if datagram[3] != 0x00 {
		return nil, newError(KindMalformed, "decode", fmt.Errorf("separator byte is 0x%02x, want 0x00", datagram[3]))
	}

	flags := Flags(binary.BigEndian.Uint16(datagram[4:6]))
	t := Type(datagram[6])
	if !t.Valid() {
		return nil, newError(KindUnknownType, "decode", fmt.Errorf("type %q", t))
	}
	var command [4]byte
	copy(command[:], datagram[7:11])
	if len(cfg.AllowedCommands) > 0 && !cfg.AllowedCommands[command] {
		return nil, newError(KindUnknownCommand, "decode", fmt.Errorf("command %q not in allow-list", command))
	}
	id := binary.BigEndian.Uint32(datagram[11:15])

	m := &Message{
		Signature: sig,
		Type:      t,
		Command:   command,
		ID:        id,
		WantAck:   flags.has(FlagWantAck),
		IsAck:     flags.has(FlagIsAck),
		IsNack:    flags.has(FlagIsNack),
		HasData:   flags.has(FlagHasData),
		Compressed: flags.has(FlagCompressed),
		Encrypted:  flags.has(FlagEncrypted),
		Sender:     sender,
	}

	if m.WantAck && (m.IsAck || m.IsNack) {
		return nil, newError(KindIllegalFlags, "decode", fmt.Errorf("want_ack set together with is_ack/is_nack"))
	}
	if (m.Compressed || m.Encrypted) && !m.HasData {
		return nil, newError(KindIllegalFlags, "decode", fmt.Errorf("compressed/encrypted set without has_data"))
	}

	off := MinHeaderSize
	if flags.has(FlagSession) {
		if !cfg.EnableSession {
			return nil, newError(KindIllegalFlags, "decode", fmt.Errorf("session flag set but sessions are disabled"))
		}
		if len(datagram) < off+SessionSize {
			return nil, newError(KindMalformed, "decode", fmt.Errorf("truncated session block"))
		}
		m.HasSession = true
		copy(m.SessionID[:], datagram[off:off+SessionSize])
		off += SessionSize
	}

	if flags.has(FlagFragmented) {
		if len(datagram) < off+4 {
			return nil, newError(KindMalformed, "decode", fmt.Errorf("truncated fragment block"))
		}
		m.Fragmented = true
		m.FragmentIndex = binary.BigEndian.Uint16(datagram[off : off+2])
		m.FragmentsTotal = binary.BigEndian.Uint16(datagram[off+2 : off+4])
		off += 4
	} else {
		m.FragmentsTotal = 1
	}

	if m.HasData {
		if off >= len(datagram) {
			return nil, newError(KindMalformed, "decode", fmt.Errorf("has_data set but expected-size %d >= total length %d", off, len(datagram)))
		}
		payload := make([]byte, len(datagram)-off)
		copy(payload, datagram[off:])
		m.RawPayload = payload
	} else if off != len(datagram) {
		return nil, newError(KindMalformed, "decode", fmt.Errorf("no-data message length mismatch: header ends at %d, datagram is %d bytes", off, len(datagram)))
	}

	return m, nil
}

// DecodePayload runs ser over a fully-decoded message's RawPayload,
// reversing compression first if Compressed is set, and stores the result
// in Payload (clearing RawPayload, preserving the flip-flop invariant).
func (m *Message) DecodePayload(ser Serializer, params Params) error {
	if !m.HasData || m.RawPayload == nil {
		return nil
	}
	raw := m.RawPayload
	if m.Compressed {
		var err error
		raw, err = inflate(raw)
		if err != nil {
			return newError(KindMalformed, "decode-payload", err)
		}
	}
	v, err := ser.Unserialize(raw, params)
	if err != nil {
		return newError(KindMalformed, "decode-payload", err)
	}
	m.Payload = v
	m.RawPayload = nil
	return nil
}

// headerSize returns the header length in bytes for a message carrying the
// given session/fragment blocks.
func headerSize(withSession, withFragment bool) int {
	n := MinHeaderSize
	if withSession {
		n += SessionSize
	}
	if withFragment {
		n += 4
	}
	return n
}

// Encode serialises m's payload (if any) via ser, optionally compresses it,
// and splits the result into one or more MTU-bounded datagram buffers. A
// maxPacketSize of 0 disables fragmentation: oversized payloads are emitted
// as a single (over-MTU) datagram. Encode is deterministic: identical inputs
// always produce byte-identical output.
func Encode(m *Message, maxPacketSize int, ser Serializer, params Params) ([][]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var payload []byte
	if m.HasData {
		var err error
		switch {
		case m.RawPayload != nil:
			payload = m.RawPayload
		case m.Payload != nil:
			payload, err = ser.Serialize(m.Payload, params)
			if err != nil {
				return nil, newError(KindMalformed, "encode", err)
			}
		default:
			return nil, newError(KindMalformed, "encode", fmt.Errorf("has_data set but no Payload/RawPayload present"))
		}
		if m.Compressed {
			payload, err = deflate(payload)
			if err != nil {
				return nil, err
			}
		}
	}

	// An ack/nack may itself be marked Fragmented to address one fragment of
	// a prior message (invariant v); such messages never carry data and are
	// never split further here, so the caller's Fragmented/FragmentIndex/
	// FragmentsTotal are honored as given rather than recomputed.
	if !m.HasData {
		base := headerSize(m.HasSession, m.Fragmented)
		buf := make([]byte, base)
		fragTotal := m.FragmentsTotal
		if !m.Fragmented {
			fragTotal = 1
		}
		writeHeader(buf, m, m.flagBits(m.Fragmented), m.FragmentIndex, fragTotal)
		return [][]byte{buf}, nil
	}

	base := headerSize(m.HasSession, false)

	if maxPacketSize <= 0 || base+len(payload) <= maxPacketSize {
		buf := make([]byte, base+len(payload))
		writeHeader(buf, m, m.flagBits(false), 0, 1)
		copy(buf[base:], payload)
		return [][]byte{buf}, nil
	}

	fragHeader := headerSize(m.HasSession, true)
	maxData := maxPacketSize - fragHeader
	if maxData <= MinDataFragmentSize {
		return nil, newError(KindConfig, "encode", fmt.Errorf("max_packet_size %d leaves only %d bytes per fragment, need more than %d", maxPacketSize, maxData, MinDataFragmentSize))
	}

	fragmentsTotal := ceilDiv(len(payload), maxData)
	if fragmentsTotal > FragmentsMax {
		return nil, newError(KindConfig, "encode", fmt.Errorf("payload requires %d fragments, exceeds max %d", fragmentsTotal, FragmentsMax))
	}
	fragmentSize := ceilDiv(len(payload), fragmentsTotal)

	bufs := make([][]byte, 0, fragmentsTotal)
	for i := 0; i < fragmentsTotal; i++ {
		start := i * fragmentSize
		end := start + fragmentSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[start:end]
		buf := make([]byte, fragHeader+len(chunk))
		writeHeader(buf, m, m.flagBits(true), uint16(i), uint16(fragmentsTotal))
		copy(buf[fragHeader:], chunk)
		bufs = append(bufs, buf)
	}
	return bufs, nil
}

// flagBits computes the wire flags for m, forcing HAS_DATA on (every
// encoded datagram with a payload-bearing message has data) and setting
// FRAGMENTED when fragmenting is in effect.
func (m *Message) flagBits(fragmented bool) Flags {
	var f Flags
	if m.WantAck {
		f |= FlagWantAck
	}
	if m.IsAck {
		f |= FlagIsAck
	}
	if m.IsNack {
		f |= FlagIsNack
	}
	if m.HasData {
		f |= FlagHasData
	}
	if fragmented {
		f |= FlagFragmented
	}
	if m.Compressed {
		f |= FlagCompressed
	}
	if m.Encrypted {
		f |= FlagEncrypted
	}
	if m.HasSession {
		f |= FlagSession
	}
	return f
}

func writeHeader(buf []byte, m *Message, flags Flags, fragIdx, fragTotal uint16) {
	copy(buf[0:3], m.Signature[:])
	buf[3] = 0x00
	binary.BigEndian.PutUint16(buf[4:6], uint16(flags))
	buf[6] = byte(m.Type)
	copy(buf[7:11], m.Command[:])
	binary.BigEndian.PutUint32(buf[11:15], m.ID)
	off := MinHeaderSize
	if m.HasSession {
		copy(buf[off:off+SessionSize], m.SessionID[:])
		off += SessionSize
	}
	if flags.has(FlagFragmented) {
		binary.BigEndian.PutUint16(buf[off:off+2], fragIdx)
		binary.BigEndian.PutUint16(buf[off+2:off+4], fragTotal)
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
