package engine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/strand-protocol/unp/pkg/protocol"
)

// Options enumerates the engine's configuration, matching spec.md §6's
// option table one field at a time.
type Options struct {
	// ProtocolSignature rejects foreign packets; defaults to "UNP".
	ProtocolSignature [3]byte
	// ServerPort, if non-zero, binds the engine as a server on this port.
	// StartClient always passes 0 regardless of this field.
	ServerPort int
	// MaxPacketSize bounds outbound datagram size; payloads larger than the
	// effective per-datagram budget are fragmented. 0 disables fragmentation.
	MaxPacketSize int
	// AckResendTimeout is the delay between retransmissions (default 200ms).
	AckResendTimeout time.Duration
	// AckForgetTimeout is the overall ack deadline (default 2000ms).
	AckForgetTimeout time.Duration
	// ResponseForgetTimeout is the response wait deadline (default 2000ms).
	ResponseForgetTimeout time.Duration
	// ReassemblyForgetTimeout bounds how long an incomplete reassembly is
	// kept (default 2000ms).
	ReassemblyForgetTimeout time.Duration
	// IgnoreWantedAck, if true, never emits an ack even when requested.
	IgnoreWantedAck bool
	// EnableSession, if true, accepts SESSION-flagged inbound packets.
	EnableSession bool
	// SupportedCommands, if non-empty, is the allow-list of accepted
	// 4-character commands; any other command is rejected at decode time.
	SupportedCommands []string
	// Serializer encodes/decodes message payloads; defaults to
	// serializer.JSON if nil.
	Serializer protocol.Serializer
	// SerializerParams is passed through to every Serialize/Unserialize
	// call (spec.md §6 "binary_data_params").
	SerializerParams protocol.Params
	// Logger receives structured diagnostics; defaults to zerolog.Nop().
	Logger *zerolog.Logger
	// Metrics, if true, publishes counters through
	// github.com/VictoriaMetrics/metrics (spec.md §7 ambient stack).
	Metrics bool
}

func (o Options) withDefaults() Options {
	if o.ProtocolSignature == ([3]byte{}) {
		copy(o.ProtocolSignature[:], protocol.DefaultSignature)
	}
	if o.AckResendTimeout <= 0 {
		o.AckResendTimeout = 200 * time.Millisecond
	}
	if o.AckForgetTimeout <= 0 {
		o.AckForgetTimeout = 2000 * time.Millisecond
	}
	if o.ResponseForgetTimeout <= 0 {
		o.ResponseForgetTimeout = 2000 * time.Millisecond
	}
	if o.ReassemblyForgetTimeout <= 0 {
		o.ReassemblyForgetTimeout = 2000 * time.Millisecond
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return o
}

func (o Options) allowedCommands() map[[4]byte]bool {
	if len(o.SupportedCommands) == 0 {
		return nil
	}
	m := make(map[[4]byte]bool, len(o.SupportedCommands))
	for _, c := range o.SupportedCommands {
		if len(c) != 4 {
			continue
		}
		var key [4]byte
		copy(key[:], c)
		m[key] = true
	}
	return m
}

// SendOptions configures one send_* call.
type SendOptions struct {
	// WantAck requests an application-level ack (spec.md §4.5).
	WantAck bool
	// Retries is the number of resends attempted if WantAck is set and no
	// ack arrives within AckResendTimeout.
	Retries int
}
