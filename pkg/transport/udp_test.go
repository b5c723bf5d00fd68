package transport

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestUDPSocketLoopback(t *testing.T) {
	listener := NewUDPSocket()
	if err := listener.Bind(0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer listener.Close()

	sender := NewUDPSocket()
	defer sender.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload := []byte("hello unp transport")
	if err := sender.Send(ctx, payload, listener.LocalAddr()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, _, err := listener.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}
}

func TestUDPSocketMultipleDatagrams(t *testing.T) {
	listener := NewUDPSocket()
	if err := listener.Bind(0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer listener.Close()

	sender := NewUDPSocket()
	defer sender.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msgs := [][]byte{[]byte("first"), []byte("second"), {}, []byte("fourth with more data")}
	for i, m := range msgs {
		if err := sender.Send(ctx, m, listener.LocalAddr()); err != nil {
			t.Fatalf("Send[%d]: %v", i, err)
		}
	}
	for i, want := range msgs {
		got, _, err := listener.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv[%d]: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("datagram[%d] = %q, want %q", i, got, want)
		}
	}
}

func TestUDPSocketClose(t *testing.T) {
	s := NewUDPSocket()
	if err := s.Bind(0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := s.Send(context.Background(), []byte("x"), s.LocalAddr()); err != ErrSocketClosed {
		t.Errorf("Send after close: got %v, want ErrSocketClosed", err)
	}
}

func TestUDPSocketContextCancellation(t *testing.T) {
	s := NewUDPSocket()
	if err := s.Bind(0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := s.Recv(ctx); err == nil {
		t.Error("expected error from cancelled context, got nil")
	}
}

func TestUDPSocketBindTwiceErrors(t *testing.T) {
	s := NewUDPSocket()
	if err := s.Bind(0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer s.Close()
	if err := s.Bind(0); err == nil {
		t.Error("expected error binding an already-bound socket")
	}
}

func TestUDPSocketLargeDatagram(t *testing.T) {
	listener := NewUDPSocket()
	if err := listener.Bind(0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer listener.Close()
	sender := NewUDPSocket()
	defer sender.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload := make([]byte, 8000)
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	if err := sender.Send(ctx, payload, listener.LocalAddr()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, _, err := listener.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("large payload mismatch (got %d bytes, want %d)", len(got), len(payload))
	}
}
