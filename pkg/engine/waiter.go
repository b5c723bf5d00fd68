package engine

import (
	"context"
	"sync"
	"time"

	"github.com/strand-protocol/unp/pkg/protocol"
)

type responseResult struct {
	msg *protocol.Message
	err error
}

// ResponseWaiter is the completion handle send_query returns: a one-shot
// slot that resolves with the matching response message or rejects with a
// timeout (spec.md §4.7 step 3).
type ResponseWaiter struct {
	mu          sync.Mutex
	done        bool
	resultCh    chan responseResult
	forgetTimer *time.Timer
}

func newResponseWaiter() *ResponseWaiter {
	return &ResponseWaiter{resultCh: make(chan responseResult, 1)}
}

// Wait blocks until the response arrives or ctx is cancelled. It does not
// itself apply the response_forget_timeout — that deadline is armed by
// SendQuery and delivered through the same result channel as a
// protocol.Error{Kind: KindTimeout}.
func (w *ResponseWaiter) Wait(ctx context.Context) (*protocol.Message, error) {
	select {
	case r := <-w.resultCh:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *ResponseWaiter) finish(e *Engine, responseID string, msg *protocol.Message, err error) {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return
	}
	w.done = true
	timer := w.forgetTimer
	w.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	e.responses.Delete(responseID)
	w.resultCh <- responseResult{msg, err}
}
