package engine

import (
	"time"

	"github.com/strand-protocol/unp/pkg/protocol"
	"github.com/strand-protocol/unp/pkg/serializer"
	"github.com/strand-protocol/unp/pkg/wirebuf"
)

// KeepAliveData is the payload a 'K' ping carries: the sender's send time,
// used by the receiver to estimate one-way latency (spec.md §4.6). A
// keepalive fires far more often than any other message type, so it skips
// the engine's configured Serializer and goes straight through wirebuf's
// binary codec via serializer.Binary instead of paying JSON's reflection
// and punctuation cost on every probe.
type KeepAliveData struct {
	SentUnixNano int64
}

var (
	_ serializer.WireMarshaler   = KeepAliveData{}
	_ serializer.WireUnmarshaler = (*KeepAliveData)(nil)
)

// MarshalWire implements serializer.WireMarshaler.
func (d KeepAliveData) MarshalWire(buf *wirebuf.Buffer) {
	buf.WriteUint64(uint64(d.SentUnixNano))
}

// UnmarshalWire implements serializer.WireUnmarshaler.
func (d *KeepAliveData) UnmarshalWire(r *wirebuf.Reader) error {
	v, err := r.ReadUint64()
	if err != nil {
		return err
	}
	d.SentUnixNano = int64(v)
	return nil
}

// SentAt returns the keepalive's send time.
func (d KeepAliveData) SentAt() time.Time { return time.Unix(0, d.SentUnixNano) }

// keepAliveParams is passed to serializer.Binary's Unserialize so it knows
// how to allocate the concrete WireUnmarshaler for an inbound 'K' ping.
func keepAliveParams() protocol.Params {
	return protocol.Params{
		"new": func() serializer.WireUnmarshaler { return &KeepAliveData{} },
	}
}
