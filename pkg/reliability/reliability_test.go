package reliability

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/strand-protocol/unp/pkg/protocol"
)

type sentFrame struct {
	buf  []byte
	addr net.Addr
}

// fakeSocket records every Send call and never produces inbound datagrams of
// its own; tests drive acks directly through Engine.ResolveAck instead of a
// real loopback, matching how the dispatcher would call it.
type fakeSocket struct {
	mu    sync.Mutex
	sends []sentFrame
}

func (f *fakeSocket) Send(_ context.Context, b []byte, addr net.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	f.sends = append(f.sends, sentFrame{cp, addr})
	return nil
}
func (f *fakeSocket) Bind(int) error { return nil }
func (f *fakeSocket) Recv(ctx context.Context) ([]byte, net.Addr, error) {
	<-ctx.Done()
	return nil, nil, ctx.Err()
}
func (f *fakeSocket) Close() error { return nil }

func (f *fakeSocket) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func testPeer() net.Addr {
	return &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000}
}

func testMessage(t *testing.T, wantAck bool) *protocol.Message {
	t.Helper()
	m := &protocol.Message{Signature: [3]byte{'U', 'N', 'P'}, Type: protocol.TypeCommand, ID: 1}
	if err := m.SetCommand("ping"); err != nil {
		t.Fatalf("SetCommand: %v", err)
	}
	m.WantAck = wantAck
	return m
}

// S2: want_ack=true, retries=1. Engine sends once, arms a 40ms resend and an
// 800ms overall timeout; the ack resolves shortly after the resend fires.
// Total sends must be exactly 2.
func TestSendMessageResendsOnceThenAcks(t *testing.T) {
	sock := &fakeSocket{}
	e := New(sock, Options{AckResendTimeout: 40 * time.Millisecond, AckForgetTimeout: 800 * time.Millisecond}, nil)
	defer e.Close()

	m := testMessage(t, true)
	ackID := protocol.AckID(testPeer(), m.Type, m.Command, m.ID, false, 0, 1)

	done := make(chan error, 1)
	go func() {
		done <- e.SendMessage(context.Background(), testPeer(), m, [][]byte{[]byte("frame")}, 1)
	}()

	time.Sleep(70 * time.Millisecond) // past the resend, before the overall timeout
	if got := sock.count(); got != 2 {
		t.Fatalf("sends after resend window = %d, want 2", got)
	}
	if !e.ResolveAck(ackID) {
		t.Fatal("expected ResolveAck to find the pending entry")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendMessage returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SendMessage did not complete after ack resolved")
	}
	if got := sock.count(); got != 2 {
		t.Fatalf("sends after completion = %d, want 2 (no further resends)", got)
	}
}

// Property 4: given retries=N and no ack, exactly N+1 send attempts occur,
// and the overall send fails with a timeout error.
func TestSendMessageBoundedRetriesTimesOut(t *testing.T) {
	sock := &fakeSocket{}
	e := New(sock, Options{AckResendTimeout: 20 * time.Millisecond, AckForgetTimeout: 120 * time.Millisecond}, nil)
	defer e.Close()

	m := testMessage(t, true)
	err := e.SendMessage(context.Background(), testPeer(), m, [][]byte{[]byte("frame")}, 2)
	if err == nil {
		t.Fatal("expected a timeout error, got nil")
	}
	if !protocol.IsTimeout(err) {
		t.Fatalf("expected a timeout error, got %v", err)
	}
	if got := sock.count(); got != 3 {
		t.Fatalf("sends = %d, want 3 (1 initial + 2 retries)", got)
	}
}

func TestSendMessageWithoutAckCompletesImmediately(t *testing.T) {
	sock := &fakeSocket{}
	e := New(sock, Options{}, nil)
	defer e.Close()

	m := testMessage(t, false)
	if err := e.SendMessage(context.Background(), testPeer(), m, [][]byte{[]byte("frame")}, 0); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got := sock.count(); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
}

func TestResolveAckReportsStray(t *testing.T) {
	sock := &fakeSocket{}
	e := New(sock, Options{}, nil)
	defer e.Close()

	if e.ResolveAck("no-such-id") {
		t.Fatal("expected ResolveAck to report false for an unknown ack_id")
	}
}

// Property 3: ack echo — the ack built for a fragmented message carries the
// same type/command/id, is_ack, no data, and the originating fragment_index.
func TestSendAckEchoesFragmentIndex(t *testing.T) {
	sock := &fakeSocket{}
	e := New(sock, Options{}, nil)
	defer e.Close()

	m := &protocol.Message{Signature: [3]byte{'U', 'N', 'P'}, Type: protocol.TypeQuery, ID: 7, Sender: testPeer()}
	if err := m.SetCommand("send"); err != nil {
		t.Fatalf("SetCommand: %v", err)
	}
	m.WantAck = true
	m.Fragmented = true
	m.FragmentIndex = 2
	m.FragmentsTotal = 4

	if err := e.SendAck(context.Background(), m); err != nil {
		t.Fatalf("SendAck: %v", err)
	}
	if sock.count() != 1 {
		t.Fatalf("expected exactly one ack datagram sent, got %d", sock.count())
	}

	decoded, err := protocol.Decode(sock.sends[0].buf, testPeer(), protocol.DecodeConfig{Signature: [3]byte{'U', 'N', 'P'}})
	if err != nil {
		t.Fatalf("Decode ack: %v", err)
	}
	if !decoded.IsAck || decoded.HasData || decoded.Type != m.Type || decoded.Command != m.Command || decoded.ID != m.ID {
		t.Fatalf("ack header mismatch: %+v", decoded)
	}
	if !decoded.Fragmented || decoded.FragmentIndex != 2 || decoded.FragmentsTotal != 4 {
		t.Fatalf("ack did not echo fragment index/total: %+v", decoded)
	}
}

func TestSendMessageFragmentedAwaitsAllFragmentsInParallel(t *testing.T) {
	sock := &fakeSocket{}
	e := New(sock, Options{AckForgetTimeout: time.Second}, nil)
	defer e.Close()

	m := testMessage(t, true)
	m.Fragmented = true
	bufs := [][]byte{[]byte("f0"), []byte("f1"), []byte("f2")}

	done := make(chan error, 1)
	go func() {
		done <- e.SendMessage(context.Background(), testPeer(), m, bufs, 0)
	}()

	time.Sleep(20 * time.Millisecond)
	if got := sock.count(); got != len(bufs) {
		t.Fatalf("sends = %d, want %d (all fragments sent before any ack)", got, len(bufs))
	}

	for i := range bufs {
		id := protocol.AckID(testPeer(), m.Type, m.Command, m.ID, true, uint16(i), uint16(len(bufs)))
		if !e.ResolveAck(id) {
			t.Fatalf("expected pending ack for fragment %d", i)
		}
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendMessage returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SendMessage did not complete after all fragment acks resolved")
	}
}

func TestSentFramesAreIndependentCopies(t *testing.T) {
	sock := &fakeSocket{}
	e := New(sock, Options{}, nil)
	defer e.Close()

	m := testMessage(t, false)
	buf := []byte("frame")
	if err := e.SendMessage(context.Background(), testPeer(), m, [][]byte{buf}, 0); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	buf[0] = 'X'
	if bytes.Equal(sock.sends[0].buf, buf) {
		t.Fatal("fakeSocket.Send must copy, not alias, the caller's buffer")
	}
}
