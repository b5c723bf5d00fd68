// Package engine implements the high-level send API (spec.md §4.7) and owns
// the single receive loop that ties the frame codec, reassembler,
// reliability engine, and dispatcher together into one running instance.
package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/rs/zerolog"

	"github.com/strand-protocol/unp/pkg/cache"
	"github.com/strand-protocol/unp/pkg/dispatch"
	"github.com/strand-protocol/unp/pkg/protocol"
	"github.com/strand-protocol/unp/pkg/reassembly"
	"github.com/strand-protocol/unp/pkg/reliability"
	"github.com/strand-protocol/unp/pkg/serializer"
	"github.com/strand-protocol/unp/pkg/transport"
)

// Engine is a running UNP instance: one goroutine (run) owns the receive
// loop and every decode/dispatch step, so cache and hub mutation triggered
// by an inbound datagram is never interleaved (spec.md §5). Methods called
// from other goroutines (the send_* API, ResolveResponse called back from
// the owning goroutine itself) only ever touch mutex-guarded collaborators
// (pkg/cache, pkg/reliability), so no separate command channel is needed to
// keep that guarantee.
type Engine struct {
	socket transport.Socket
	logger *zerolog.Logger
	opts   Options
	ser    protocol.Serializer

	rel   *reliability.Engine
	reasm *reassembly.Reassembler
	disp  *dispatch.Dispatcher

	responses *cache.Sectored[*ResponseWaiter]

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	metricsSent      *metrics.Counter
	metricsDropped   *metrics.Counter
	metricsReasmDone *metrics.Counter
}

func newEngine(opts Options) *Engine {
	opts = opts.withDefaults()
	ser := opts.Serializer
	if ser == nil {
		ser = serializer.JSON{}
	}

	sock := transport.NewUDPSocket()
	e := &Engine{
		socket:    sock,
		logger:    opts.Logger,
		opts:      opts,
		ser:       ser,
		rel:       reliability.New(sock, reliability.Options{AckResendTimeout: opts.AckResendTimeout, AckForgetTimeout: opts.AckForgetTimeout}, opts.Logger),
		reasm:     reassembly.New(opts.ReassemblyForgetTimeout),
		responses: cache.New[*ResponseWaiter](opts.ResponseForgetTimeout),
		stopCh:    make(chan struct{}),
	}
	if opts.Metrics {
		e.metricsSent = metrics.GetOrCreateCounter("unp_frames_sent_total")
		e.metricsDropped = metrics.GetOrCreateCounter("unp_frames_dropped_total")
		e.metricsReasmDone = metrics.GetOrCreateCounter("unp_reassemblies_completed_total")
	}
	e.disp = dispatch.New(e.rel, e.reasm, e, e.decodePayload, dispatch.Options{IgnoreWantedAck: opts.IgnoreWantedAck}, opts.Logger)
	return e
}

// StartServer binds the engine to opts.ServerPort and begins serving.
func StartServer(opts Options) (*Engine, error) {
	e := newEngine(opts)
	if err := e.socket.Bind(opts.ServerPort); err != nil {
		return nil, fmt.Errorf("unp/engine: start server: %w", err)
	}
	e.spawn()
	return e, nil
}

// StartClient binds the engine to an ephemeral port so it can receive
// replies, regardless of opts.ServerPort.
func StartClient(opts Options) (*Engine, error) {
	e := newEngine(opts)
	if err := e.socket.Bind(0); err != nil {
		return nil, fmt.Errorf("unp/engine: start client: %w", err)
	}
	e.spawn()
	return e, nil
}

func (e *Engine) spawn() {
	e.wg.Add(1)
	go e.run()
}

// run is the engine's single owning goroutine: it blocks on Recv, decodes
// the datagram, and hands it to the dispatcher, sequentially, for as long as
// the engine is open.
func (e *Engine) run() {
	defer e.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-e.stopCh
		cancel()
	}()

	cfg := protocol.DecodeConfig{
		Signature:       e.opts.ProtocolSignature,
		AllowedCommands: e.opts.allowedCommands(),
		EnableSession:   e.opts.EnableSession,
	}

	for {
		b, sender, err := e.socket.Recv(ctx)
		if err != nil {
			select {
			case <-e.stopCh:
				return
			default:
				e.logger.Warn().Err(err).Msg("unp/engine: recv error")
				continue
			}
		}

		m, err := protocol.Decode(b, sender, cfg)
		if err != nil {
			e.countDropped()
			e.logger.Warn().Err(err).Str("peer", fmt.Sprintf("%v", sender)).Msg("unp/engine: dropping malformed datagram")
			continue
		}
		if err := m.Validate(); err != nil {
			e.countDropped()
			e.logger.Warn().Err(err).Str("peer", fmt.Sprintf("%v", sender)).Msg("unp/engine: dropping invalid message")
			continue
		}

		e.disp.Dispatch(ctx, m)
	}
}

// decodePayload runs the engine's Serializer over m's RawPayload. It is
// called by the dispatcher once a message is known to be complete, whether
// it never fragmented or just finished reassembling (spec.md §4.1's "lazy
// decode" design point).
func (e *Engine) decodePayload(m *protocol.Message) error {
	if m.Reassembled {
		e.countReassembled()
	}
	if m.Type == protocol.TypeKeepAlive && m.CommandString() == "ping" {
		return m.DecodePayload(serializer.Binary{}, keepAliveParams())
	}
	return m.DecodePayload(e.ser, e.opts.SerializerParams)
}

// LocalAddr returns the address the engine's socket is bound to, useful for
// a client started with ServerPort 0 to learn its ephemeral port.
func (e *Engine) LocalAddr() net.Addr {
	if s, ok := e.socket.(interface{ LocalAddr() net.Addr }); ok {
		return s.LocalAddr()
	}
	return nil
}

// ResolveResponse implements dispatch.ResponseResolver.
func (e *Engine) ResolveResponse(responseID string, m *protocol.Message) bool {
	w, ok := e.responses.Get(responseID)
	if !ok {
		return false
	}
	w.finish(e, responseID, m, nil)
	return true
}

// Close stops the receive loop and releases every owned resource. Safe to
// call more than once.
func (e *Engine) Close() error {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
	e.rel.Close()
	e.reasm.Close()
	e.responses.Close()
	return e.socket.Close()
}

func (e *Engine) countDropped() {
	if e.metricsDropped != nil {
		e.metricsDropped.Inc()
	}
}

func (e *Engine) countSent() {
	if e.metricsSent != nil {
		e.metricsSent.Inc()
	}
}

func (e *Engine) countReassembled() {
	if e.metricsReasmDone != nil {
		e.metricsReasmDone.Inc()
	}
}

// randomID mints a pseudo-random 32-bit message id (spec.md §4.7).
func randomID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("unp/engine: generate id: %w", err)
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}
