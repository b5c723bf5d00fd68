package engine

import (
	"context"

	"github.com/strand-protocol/unp/pkg/protocol"
)

// On registers handler for every complete inbound message of the given
// type+command, the receive-side counterpart of the Send* API. Handlers run
// synchronously on the engine's single owning goroutine (spec.md §5); a
// handler that blocks delays every other inbound message, so long-running
// work (such as a reply sent with WantAck) should be started in its own
// goroutine.
func (e *Engine) On(typ protocol.Type, command string, handler func(ctx context.Context, m *protocol.Message)) {
	var key [4]byte
	copy(key[:], command)
	e.disp.Inbox.On(typ.String()+string(key[:]), func(args ...any) {
		handler(context.Background(), args[0].(*protocol.Message))
	})
}

// OnCommand registers handler for inbound Command messages (type 'C').
func (e *Engine) OnCommand(command string, handler func(ctx context.Context, m *protocol.Message)) {
	e.On(protocol.TypeCommand, command, handler)
}

// OnQuery registers handler for inbound Query messages (type 'Q').
func (e *Engine) OnQuery(command string, handler func(ctx context.Context, m *protocol.Message)) {
	e.On(protocol.TypeQuery, command, handler)
}

// OnEvent registers handler for inbound Event messages (type 'E').
func (e *Engine) OnEvent(command string, handler func(ctx context.Context, m *protocol.Message)) {
	e.On(protocol.TypeEvent, command, handler)
}
