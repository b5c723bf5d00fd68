// Package dispatch implements the decoded-message classification and
// routing engine (spec.md §4.6): ack resolution and generation, reassembly
// hand-off, response correlation, and emission onto the two event hubs.
package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/strand-protocol/unp/pkg/protocol"
)

// AckEngine resolves inbound acks against the pending-ack cache and
// generates outbound acks for messages that asked for one.
// *reliability.Engine satisfies this.
type AckEngine interface {
	ResolveAck(ackID string) bool
	SendAck(ctx context.Context, m *protocol.Message) error
}

// Reassembler accumulates fragments and reports completion.
// *reassembly.Reassembler satisfies this.
type Reassembler interface {
	Accept(m *protocol.Message) (*protocol.Message, error)
}

// ResponseResolver resolves a pending query's response waiter. It is
// implemented by pkg/engine, which owns the pending-response cache created
// by send_query — dispatch never creates a pending-response entry itself,
// only resolves one.
type ResponseResolver interface {
	ResolveResponse(responseID string, m *protocol.Message) bool
}

// Options configures dispatcher behavior from spec.md §6's option table.
type Options struct {
	// IgnoreWantedAck, if true, never emits an ack even when a message
	// requests one.
	IgnoreWantedAck bool
}

// Dispatcher classifies and routes decoded inbound messages. It owns no
// sockets or timers itself; those belong to the reliability engine and
// reassembler it is built on top of.
type Dispatcher struct {
	acks      AckEngine
	reasm     Reassembler
	responses ResponseResolver
	decode    func(m *protocol.Message) error
	opts      Options
	logger    *zerolog.Logger

	// Messages carries the generic "message" stream (every fully-decoded
	// inbound message, after ack/reassembly handling). Inbox carries the
	// typed type+command stream, keyed by the 5-character concatenation of
	// type and command (spec.md §6).
	Messages *Hub
	Inbox    *Hub
}

// New creates a Dispatcher. A nil logger falls back to zerolog.Nop(). decode
// runs a message's payload through the configured Serializer once it is
// known to be complete (never while still awaiting reassembly); a nil
// decode is a no-op, useful for tests that only care about routing. This is
// where the fragmented-and-just-reassembled case gets its payload decoded —
// protocol.Decode itself leaves Payload lazily undecoded (RawPayload only)
// specifically so that decode can happen here, once, on the final message.
func New(acks AckEngine, reasm Reassembler, responses ResponseResolver, decode func(m *protocol.Message) error, opts Options, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{
		acks:      acks,
		reasm:     reasm,
		responses: responses,
		decode:    decode,
		opts:      opts,
		logger:    logger,
		Messages:  NewHub(),
		Inbox:     NewHub(),
	}
}

// Dispatch classifies and routes one decoded inbound message, per spec.md
// §4.6's classification order.
func (d *Dispatcher) Dispatch(ctx context.Context, m *protocol.Message) {
	if m.IsAck {
		ackID := protocol.AckID(m.Sender, m.Type, m.Command, m.ID, m.Fragmented, m.FragmentIndex, m.FragmentsTotal)
		if !d.acks.ResolveAck(ackID) {
			d.logger.Warn().Str("ack_id", ackID).Str("peer", fmt.Sprintf("%v", m.Sender)).Msg("unp: stray ack")
		}
		return
	}

	if m.WantAck && !d.opts.IgnoreWantedAck {
		if err := d.acks.SendAck(ctx, m); err != nil {
			d.logger.Warn().Err(err).Str("peer", fmt.Sprintf("%v", m.Sender)).Msg("unp: failed to send ack")
		}
	}

	if !m.Fragmented {
		d.handleComplete(m)
		return
	}

	complete, err := d.reasm.Accept(m)
	if err != nil {
		d.logger.Warn().Err(err).Str("peer", fmt.Sprintf("%v", m.Sender)).Msg("unp: reassembly rejected fragment")
		return
	}
	if complete == nil {
		return // still awaiting more fragments
	}
	d.handleComplete(complete)
}

// handleComplete implements spec.md §4.6's "full-message handling" step for
// a message that is either never fragmented or has just finished
// reassembling.
func (d *Dispatcher) handleComplete(m *protocol.Message) {
	if d.decode != nil {
		if err := d.decode(m); err != nil {
			d.logger.Warn().Err(err).Str("peer", fmt.Sprintf("%v", m.Sender)).Msg("unp: payload decode failed, dropping message")
			return
		}
	}
	if m.Type == protocol.TypeResponse {
		responseID := protocol.ResponseID(m.Sender, m.Type, m.Command, m.ID)
		if !d.responses.ResolveResponse(responseID, m) {
			d.logger.Warn().Str("response_id", responseID).Msg("unp: stray response")
		}
	}
	d.Messages.Emit("message", m)
	d.Inbox.Emit(m.Type.String()+m.CommandString(), m)
}
