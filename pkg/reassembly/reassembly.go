// Package reassembly implements the fragment-reassembly engine (spec.md
// §4.4): accumulating fragments for a message, detecting completion, and
// emitting the reconstructed message.
package reassembly

import (
	"fmt"
	"time"

	"github.com/strand-protocol/unp/pkg/cache"
	"github.com/strand-protocol/unp/pkg/protocol"
)

// entry holds one in-progress reassembly: a fixed-size vector of fragment
// slots, one per expected index, initially empty. Accept is only ever
// driven from the engine's single owning goroutine (spec.md §5), so entry
// needs no internal locking of its own.
type entry struct {
	slots [][]byte
	filled int
	first  *protocol.Message // header fields to inherit on completion
}

// Reassembler accumulates fragments across messages, keyed by
// protocol.ReassemblyID, and emits the reconstructed Message once every
// slot is filled.
type Reassembler struct {
	pending *cache.Sectored[*entry]
}

// New creates a Reassembler whose entries are purged after forgetTimeout if
// never completed (spec.md §4.3, §4.4 lifecycle).
func New(forgetTimeout time.Duration) *Reassembler {
	return &Reassembler{pending: cache.New[*entry](forgetTimeout)}
}

// Close releases the underlying cache's rotation goroutine.
func (r *Reassembler) Close() { r.pending.Close() }

// Accept stores one fragment of m. It returns the reconstructed Message
// once every fragment has arrived, or nil while reassembly is still in
// progress. Duplicate fragments overwrite silently (spec.md §4.4): the
// underlying bytes of a retransmitted fragment are expected to be
// identical.
func (r *Reassembler) Accept(m *protocol.Message) (*protocol.Message, error) {
	if !m.Fragmented {
		return nil, fmt.Errorf("unp/reassembly: Accept called with a non-fragmented message")
	}
	id := protocol.ReassemblyID(m.Sender, m.Type, m.Command, m.ID, m.FragmentsTotal)

	e, ok := r.pending.Get(id)
	if !ok {
		e = &entry{
			slots: make([][]byte, m.FragmentsTotal),
			first: m,
		}
		r.pending.Set(id, e)
	}

	if int(m.FragmentIndex) >= len(e.slots) {
		return nil, fmt.Errorf("unp/reassembly: fragment_index %d >= fragments_total %d for %s", m.FragmentIndex, len(e.slots), id)
	}
	if e.slots[m.FragmentIndex] == nil {
		e.filled++
	}
	e.slots[m.FragmentIndex] = m.RawPayload

	if e.filled < len(e.slots) {
		return nil, nil
	}

	var combined []byte
	for _, s := range e.slots {
		combined = append(combined, s...)
	}
	r.pending.Delete(id)

	reassembled := *e.first
	reassembled.RawPayload = combined
	reassembled.HasData = true
	reassembled.Reassembled = true
	reassembled.Fragmented = false
	reassembled.FragmentIndex = 0
	reassembled.FragmentsTotal = 0
	return &reassembled, nil
}
