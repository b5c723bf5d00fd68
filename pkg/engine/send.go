package engine

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/strand-protocol/unp/pkg/protocol"
	"github.com/strand-protocol/unp/pkg/serializer"
)

// buildMessage assembles the common shape of every outbound message.
func (e *Engine) buildMessage(typ protocol.Type, command string, payload any, wantAck bool) (*protocol.Message, error) {
	id, err := randomID()
	if err != nil {
		return nil, err
	}
	m := &protocol.Message{
		Signature: e.opts.ProtocolSignature,
		Type:      typ,
		ID:        id,
		WantAck:   wantAck,
	}
	if err := m.SetCommand(command); err != nil {
		return nil, err
	}
	if payload != nil {
		m.HasData = true
		m.Payload = payload
	}
	return m, nil
}

func (e *Engine) send(ctx context.Context, peer net.Addr, m *protocol.Message, retries int) error {
	bufs, err := protocol.Encode(m, e.opts.MaxPacketSize, e.ser, e.opts.SerializerParams)
	if err != nil {
		return fmt.Errorf("unp/engine: encode: %w", err)
	}
	e.countSent()
	return e.rel.SendMessage(ctx, peer, m, bufs, retries)
}

// SendCommand sends a fire-and-forget application verb (spec.md §4.7,
// type 'C'). Retries is only meaningful when opts.WantAck is set.
func (e *Engine) SendCommand(ctx context.Context, peer net.Addr, command string, payload any, opts SendOptions) error {
	m, err := e.buildMessage(protocol.TypeCommand, command, payload, opts.WantAck)
	if err != nil {
		return err
	}
	return e.send(ctx, peer, m, opts.Retries)
}

// SendEvent sends a fire-and-forget notification (type 'E').
func (e *Engine) SendEvent(ctx context.Context, peer net.Addr, command string, payload any, opts SendOptions) error {
	m, err := e.buildMessage(protocol.TypeEvent, command, payload, opts.WantAck)
	if err != nil {
		return err
	}
	return e.send(ctx, peer, m, opts.Retries)
}

// SendHello sends a user-level greeting (type 'H').
func (e *Engine) SendHello(ctx context.Context, peer net.Addr, payload any, opts SendOptions) error {
	m, err := e.buildMessage(protocol.TypeHello, "hllo", payload, opts.WantAck)
	if err != nil {
		return err
	}
	return e.send(ctx, peer, m, opts.Retries)
}

// SendKeepAlive sends a liveness probe (type 'K'), carrying the send time
// as a wirebuf-encoded KeepAliveData payload (see pkg/engine/keepalive.go)
// instead of going through the engine's configured Serializer.
func (e *Engine) SendKeepAlive(ctx context.Context, peer net.Addr, opts SendOptions) error {
	m, err := e.buildMessage(protocol.TypeKeepAlive, "ping", nil, opts.WantAck)
	if err != nil {
		return err
	}
	raw, err := (serializer.Binary{}).Serialize(KeepAliveData{SentUnixNano: time.Now().UnixNano()}, nil)
	if err != nil {
		return fmt.Errorf("unp/engine: encode keepalive payload: %w", err)
	}
	m.HasData = true
	m.RawPayload = raw
	return e.send(ctx, peer, m, opts.Retries)
}

// SendDiscoveryHello sends a discovery-sweep probe (type 'h'). It carries no
// payload and is meant to be sent with opts.WantAck set: a peer that acks it
// is reachable and speaks UNP, regardless of whether it recognizes the
// "helo" command — every engine acks a want_ack message before dispatch-time
// command handling, so discovery needs no responder logic on the far side
// (cmd/unpctl discover).
func (e *Engine) SendDiscoveryHello(ctx context.Context, peer net.Addr, opts SendOptions) error {
	m, err := e.buildMessage(protocol.TypeDiscoveryHello, "helo", nil, opts.WantAck)
	if err != nil {
		return err
	}
	return e.send(ctx, peer, m, opts.Retries)
}

// SendQuery sends a request (type 'Q') and returns a ResponseWaiter that
// resolves with the matching Response, or a KindTimeout protocol.Error once
// ResponseForgetTimeout elapses without one arriving (spec.md §4.7 step 3).
func (e *Engine) SendQuery(ctx context.Context, peer net.Addr, command string, payload any, opts SendOptions) (*ResponseWaiter, error) {
	m, err := e.buildMessage(protocol.TypeQuery, command, payload, opts.WantAck)
	if err != nil {
		return nil, err
	}

	responseID := protocol.ResponseID(peer, protocol.TypeResponse, m.Command, m.ID)
	w := newResponseWaiter()
	e.responses.Set(responseID, w)
	e.armResponseForget(w, responseID)

	if err := e.send(ctx, peer, m, opts.Retries); err != nil {
		w.finish(e, responseID, nil, err)
		return w, err
	}
	return w, nil
}

func (e *Engine) armResponseForget(w *ResponseWaiter, responseID string) {
	timer := time.AfterFunc(e.opts.ResponseForgetTimeout, func() {
		w.finish(e, responseID, nil, protocol.NewError(protocol.KindTimeout, "query",
			fmt.Errorf("response %s timed out after %s", responseID, e.opts.ResponseForgetTimeout)))
	})
	w.mu.Lock()
	w.forgetTimer = timer
	w.mu.Unlock()
}

// SendResponseFor replies to an inbound Query, echoing its id and targeting
// its sender (spec.md §4.7 step 4). query.Type must be TypeQuery.
func (e *Engine) SendResponseFor(ctx context.Context, query *protocol.Message, payload any, opts SendOptions) error {
	respType, ok := protocol.ResponseType(query.Type)
	if !ok {
		return fmt.Errorf("unp/engine: message type %q has no defined response type", query.Type)
	}
	m := &protocol.Message{
		Signature: e.opts.ProtocolSignature,
		Type:      respType,
		Command:   query.Command,
		ID:        query.ID,
		WantAck:   opts.WantAck,
	}
	if payload != nil {
		m.HasData = true
		m.Payload = payload
	}
	return e.send(ctx, query.Sender, m, opts.Retries)
}
