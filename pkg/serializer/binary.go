package serializer

import (
	"fmt"

	"github.com/strand-protocol/unp/pkg/protocol"
	"github.com/strand-protocol/unp/pkg/wirebuf"
)

// WireMarshaler is implemented by payload types that want the zero-
// reflection binary fast path instead of JSON. This mirrors exactly how
// the StrandAPI/NexAPI sibling modules hand-encode their own typed messages
// (InferenceRequest, AgentNegotiate, ...) against a wirebuf.Buffer/Reader
// pair, generalized here into a pluggable Serializer rather than one
// bespoke Encode/Decode method per opcode.
type WireMarshaler interface {
	MarshalWire(buf *wirebuf.Buffer)
}

// WireUnmarshaler is implemented by a pointer type that can populate itself
// from a wirebuf.Reader. Binary.Unserialize requires params["new"] to be a
// func() WireUnmarshaler that constructs the destination value, since a
// generic Unserialize has no other way to know which concrete type to
// decode into.
type WireUnmarshaler interface {
	UnmarshalWire(r *wirebuf.Reader) error
}

// Binary serializes WireMarshaler payloads directly into wirebuf's compact
// length-prefixed binary format, skipping JSON's reflection and text
// overhead entirely. Non-WireMarshaler payloads are rejected.
type Binary struct{}

var _ protocol.Serializer = Binary{}

func (Binary) Serialize(v any, _ protocol.Params) ([]byte, error) {
	m, ok := v.(WireMarshaler)
	if !ok {
		return nil, fmt.Errorf("unp/serializer: binary: %T does not implement WireMarshaler", v)
	}
	buf := wirebuf.NewBuffer(64)
	m.MarshalWire(buf)
	return buf.Bytes(), nil
}

func (Binary) Unserialize(b []byte, params protocol.Params) (any, error) {
	newFn, ok := params["new"].(func() WireUnmarshaler)
	if !ok {
		return nil, fmt.Errorf("unp/serializer: binary: params[\"new\"] must be a func() WireUnmarshaler")
	}
	v := newFn()
	r := wirebuf.NewReader(b)
	if err := v.UnmarshalWire(r); err != nil {
		return nil, fmt.Errorf("unp/serializer: binary unmarshal: %w", err)
	}
	return v, nil
}
