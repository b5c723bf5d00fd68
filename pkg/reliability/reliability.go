// Package reliability implements the application-level acknowledgement and
// retransmission engine (spec.md §4.5): per-datagram send with optional
// ack-tracking, resend on a timer, an overall ack deadline, and ack
// generation for inbound messages that asked for one.
package reliability

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/strand-protocol/unp/pkg/cache"
	"github.com/strand-protocol/unp/pkg/protocol"
	"github.com/strand-protocol/unp/pkg/transport"
)

// Options configures the timers the engine arms per spec.md §6.
type Options struct {
	// AckResendTimeout is the delay between retransmissions (default 200ms).
	AckResendTimeout time.Duration
	// AckForgetTimeout is the overall ack deadline (default 2000ms).
	AckForgetTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.AckResendTimeout <= 0 {
		o.AckResendTimeout = 200 * time.Millisecond
	}
	if o.AckForgetTimeout <= 0 {
		o.AckForgetTimeout = 2000 * time.Millisecond
	}
	return o
}

// pendingAck is the completion slot for one outstanding ack (spec.md §3).
// done guards against a resend/forget timer firing after resolution, and
// against a duplicate ack resolving twice; resultCh carries the single
// outcome to the waiting sender.
type pendingAck struct {
	mu          sync.Mutex
	done        bool
	resultCh    chan error
	resendTimer *time.Timer
	forgetTimer *time.Timer
}

func newPendingAck() *pendingAck {
	return &pendingAck{resultCh: make(chan error, 1)}
}

func (pa *pendingAck) finish(e *Engine, ackID string, err error) {
	pa.mu.Lock()
	if pa.done {
		pa.mu.Unlock()
		return
	}
	pa.done = true
	resend, forget := pa.resendTimer, pa.forgetTimer
	pa.mu.Unlock()

	if resend != nil {
		resend.Stop()
	}
	if forget != nil {
		forget.Stop()
	}
	e.pending.Delete(ackID)
	pa.resultCh <- err
}

func (pa *pendingAck) isDone() bool {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	return pa.done
}

// Engine owns the pending-ack cache and the socket used to (re)send
// datagrams and generate acks. It does not decode frames itself; callers
// (pkg/dispatch, pkg/engine) hand it already-encoded buffers and already-
// decoded inbound messages.
type Engine struct {
	socket  transport.Socket
	logger  *zerolog.Logger
	opts    Options
	pending *cache.Sectored[*pendingAck]
}

// New creates a reliability Engine. A nil logger falls back to zerolog.Nop().
func New(socket transport.Socket, opts Options, logger *zerolog.Logger) *Engine {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	opts = opts.withDefaults()
	return &Engine{
		socket:  socket,
		logger:  logger,
		opts:    opts,
		pending: cache.New[*pendingAck](opts.AckForgetTimeout),
	}
}

// Close releases the pending-ack cache's rotation goroutine.
func (e *Engine) Close() { e.pending.Close() }

// SendMessage transmits every datagram in bufs (the output of
// protocol.Encode for m) to peer. If m.WantAck is false, every datagram is
// handed to the socket and the call returns immediately (spec.md §4.5 steps
// 1-2): socket-send errors are logged, not surfaced, per §7's
// "UDP sends are best-effort" policy.
//
// If m.WantAck is true, all datagrams are sent first, then the engine awaits
// every per-fragment ack in parallel (spec.md §4.5, §5 ordering guarantee:
// "all fragments are sent before any ack completion is observed"). The
// overall call succeeds iff every per-fragment ack resolves before its
// ack_forget_timeout.
func (e *Engine) SendMessage(ctx context.Context, peer net.Addr, m *protocol.Message, bufs [][]byte, retries int) error {
	fragmented := m.Fragmented || len(bufs) > 1

	type waiter struct {
		ackID string
		pa    *pendingAck
	}
	waiters := make([]waiter, 0, len(bufs))

	for i, buf := range bufs {
		if err := e.socket.Send(ctx, buf, peer); err != nil {
			e.logger.Warn().Err(err).Str("peer", peer.String()).Int("fragment_index", i).Msg("unp: socket send failed, continuing (best-effort)")
		}
		if !m.WantAck {
			continue
		}

		var ackID string
		if fragmented {
			ackID = protocol.AckID(peer, m.Type, m.Command, m.ID, true, uint16(i), uint16(len(bufs)))
		} else {
			ackID = protocol.AckID(peer, m.Type, m.Command, m.ID, false, 0, 1)
		}

		pa := newPendingAck()
		e.pending.Set(ackID, pa)
		if retries > 0 {
			e.armResend(ctx, pa, peer, buf, ackID, retries)
		}
		e.armForget(pa, ackID)
		waiters = append(waiters, waiter{ackID, pa})
	}

	if !m.WantAck {
		return nil
	}

	var firstErr error
	for _, w := range waiters {
		select {
		case err := <-w.pa.resultCh:
			if err != nil && firstErr == nil {
				firstErr = err
			}
		case <-ctx.Done():
			w.pa.finish(e, w.ackID, ctx.Err())
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		}
	}
	return firstErr
}

// armResend schedules a retransmission after AckResendTimeout; each fire
// decrements retriesLeft and reschedules while it remains positive. A resend
// never fires once pa is done (spec.md §4.5 step 4).
func (e *Engine) armResend(ctx context.Context, pa *pendingAck, peer net.Addr, buf []byte, ackID string, retriesLeft int) {
	timer := time.AfterFunc(e.opts.AckResendTimeout, func() {
		if pa.isDone() {
			return
		}
		if err := e.socket.Send(ctx, buf, peer); err != nil {
			e.logger.Warn().Err(err).Str("ack_id", ackID).Msg("unp: resend failed, continuing (best-effort)")
		}
		if retriesLeft-1 > 0 {
			e.armResend(ctx, pa, peer, buf, ackID, retriesLeft-1)
		}
	})
	pa.mu.Lock()
	pa.resendTimer = timer
	pa.mu.Unlock()
}

// armForget schedules the overall ack deadline (spec.md §4.5 step 5): if pa
// is still outstanding when it fires, it is rejected with a KindTimeout
// protocol.Error.
func (e *Engine) armForget(pa *pendingAck, ackID string) {
	timer := time.AfterFunc(e.opts.AckForgetTimeout, func() {
		pa.finish(e, ackID, protocol.NewError(protocol.KindTimeout, "ack",
			fmt.Errorf("ack %s timed out after %s", ackID, e.opts.AckForgetTimeout)))
	})
	pa.mu.Lock()
	pa.forgetTimer = timer
	pa.mu.Unlock()
}

// ResolveAck resolves the pending-ack entry matching ackID, if any, and
// reports whether one was found. A false return means the inbound ack is
// stray (spec.md §4.6 step 1): the caller is expected to log it.
func (e *Engine) ResolveAck(ackID string) bool {
	pa, ok := e.pending.Get(ackID)
	if !ok {
		return false
	}
	pa.finish(e, ackID, nil)
	return true
}

// SendAck builds and transmits an ack for a received message m: same
// signature/type/command/id, IS_ACK set, no payload, echoing m's
// fragment_index/fragments_total when m was itself fragmented (spec.md
// §4.5 "ack generation").
func (e *Engine) SendAck(ctx context.Context, m *protocol.Message) error {
	ack := &protocol.Message{
		Signature: m.Signature,
		Type:      m.Type,
		Command:   m.Command,
		ID:        m.ID,
		IsAck:     true,
	}
	if m.Fragmented {
		ack.Fragmented = true
		ack.FragmentIndex = m.FragmentIndex
		ack.FragmentsTotal = m.FragmentsTotal
	}
	bufs, err := protocol.Encode(ack, 0, nil, nil)
	if err != nil {
		return err
	}
	return e.socket.Send(ctx, bufs[0], m.Sender)
}
