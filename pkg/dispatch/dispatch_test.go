package dispatch

import (
	"context"
	"net"
	"testing"

	"github.com/strand-protocol/unp/pkg/protocol"
)

type fakeAcks struct {
	resolved  []string
	resolveOK bool
	sentAcks  int
}

func (f *fakeAcks) ResolveAck(ackID string) bool {
	f.resolved = append(f.resolved, ackID)
	return f.resolveOK
}
func (f *fakeAcks) SendAck(context.Context, *protocol.Message) error {
	f.sentAcks++
	return nil
}

type fakeReasm struct {
	result *protocol.Message
	err    error
	calls  int
}

func (f *fakeReasm) Accept(*protocol.Message) (*protocol.Message, error) {
	f.calls++
	return f.result, f.err
}

type fakeResponses struct {
	resolveOK bool
	resolved  string
}

func (f *fakeResponses) ResolveResponse(responseID string, m *protocol.Message) bool {
	f.resolved = responseID
	return f.resolveOK
}

func testMsg(t *testing.T, typ protocol.Type, command string) *protocol.Message {
	t.Helper()
	m := &protocol.Message{Signature: [3]byte{'U', 'N', 'P'}, Type: typ, ID: 5}
	if err := m.SetCommand(command); err != nil {
		t.Fatalf("SetCommand: %v", err)
	}
	m.Sender = &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}
	return m
}

func TestDispatchResolvesAck(t *testing.T) {
	acks := &fakeAcks{resolveOK: true}
	d := New(acks, &fakeReasm{}, &fakeResponses{}, nil, Options{}, nil)

	m := testMsg(t, protocol.TypeCommand, "ping")
	m.IsAck = true
	d.Dispatch(context.Background(), m)

	if len(acks.resolved) != 1 {
		t.Fatalf("expected ResolveAck called once, got %d", len(acks.resolved))
	}
}

func TestDispatchLogsStrayAckWithoutEmitting(t *testing.T) {
	acks := &fakeAcks{resolveOK: false}
	d := New(acks, &fakeReasm{}, &fakeResponses{}, nil, Options{}, nil)

	var emitted bool
	d.Messages.On("message", func(args ...any) { emitted = true })

	m := testMsg(t, protocol.TypeCommand, "ping")
	m.IsAck = true
	d.Dispatch(context.Background(), m)

	if emitted {
		t.Fatal("a stray ack must not emit a message event")
	}
}

func TestDispatchEmitsAckWhenWanted(t *testing.T) {
	acks := &fakeAcks{resolveOK: true}
	d := New(acks, &fakeReasm{}, &fakeResponses{}, nil, Options{}, nil)

	m := testMsg(t, protocol.TypeCommand, "ping")
	m.WantAck = true
	d.Dispatch(context.Background(), m)

	if acks.sentAcks != 1 {
		t.Fatalf("expected one ack sent, got %d", acks.sentAcks)
	}
}

func TestDispatchSuppressesAckWhenIgnored(t *testing.T) {
	acks := &fakeAcks{resolveOK: true}
	d := New(acks, &fakeReasm{}, &fakeResponses{}, nil, Options{IgnoreWantedAck: true}, nil)

	m := testMsg(t, protocol.TypeCommand, "ping")
	m.WantAck = true
	d.Dispatch(context.Background(), m)

	if acks.sentAcks != 0 {
		t.Fatalf("expected no ack sent when ignore_wanted_ack is set, got %d", acks.sentAcks)
	}
}

func TestDispatchFragmentedWaitsForReassemblyCompletion(t *testing.T) {
	acks := &fakeAcks{resolveOK: true}
	reasm := &fakeReasm{result: nil} // not yet complete
	d := New(acks, reasm, &fakeResponses{}, nil, Options{}, nil)

	var emitted int
	d.Messages.On("message", func(args ...any) { emitted++ })

	m := testMsg(t, protocol.TypeCommand, "send")
	m.Fragmented = true
	d.Dispatch(context.Background(), m)

	if reasm.calls != 1 {
		t.Fatalf("expected reassembler Accept called once, got %d", reasm.calls)
	}
	if emitted != 0 {
		t.Fatal("expected no message event while reassembly is incomplete")
	}
}

func TestDispatchFragmentedEmitsOnCompletion(t *testing.T) {
	acks := &fakeAcks{resolveOK: true}
	complete := testMsg(t, protocol.TypeCommand, "send")
	complete.Reassembled = true
	reasm := &fakeReasm{result: complete}
	d := New(acks, reasm, &fakeResponses{}, nil, Options{}, nil)

	var got *protocol.Message
	d.Messages.On("message", func(args ...any) { got = args[0].(*protocol.Message) })

	m := testMsg(t, protocol.TypeCommand, "send")
	m.Fragmented = true
	d.Dispatch(context.Background(), m)

	if got != complete {
		t.Fatal("expected the message event to carry the reassembled message")
	}
}

func TestDispatchResolvesResponseCorrelation(t *testing.T) {
	responses := &fakeResponses{resolveOK: true}
	d := New(&fakeAcks{resolveOK: true}, &fakeReasm{}, responses, nil, Options{}, nil)

	m := testMsg(t, protocol.TypeResponse, "send")
	d.Dispatch(context.Background(), m)

	if responses.resolved == "" {
		t.Fatal("expected ResolveResponse to be called for a response-type message")
	}
}

func TestDispatchEmitsTypedInboxEvent(t *testing.T) {
	d := New(&fakeAcks{resolveOK: true}, &fakeReasm{}, &fakeResponses{resolveOK: true}, nil, Options{}, nil)

	var got *protocol.Message
	d.Inbox.On("Cping", func(args ...any) { got = args[0].(*protocol.Message) })

	m := testMsg(t, protocol.TypeCommand, "ping")
	d.Dispatch(context.Background(), m)

	if got == nil {
		t.Fatal("expected the typed inbox event Cping to fire")
	}
}
