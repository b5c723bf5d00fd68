package protocol

import "testing"

func TestValidateRejectsAckWithWantAck(t *testing.T) {
	m := newTestMessage(t, TypeCommand, "ping", 1)
	m.IsAck = true
	m.WantAck = true
	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error for is_ack+want_ack")
	}
}

func TestValidateRejectsAckWithData(t *testing.T) {
	m := newTestMessage(t, TypeCommand, "ping", 1)
	m.IsAck = true
	m.HasData = true
	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error for ack with data")
	}
}

func TestValidateRejectsCompressedWithoutData(t *testing.T) {
	m := newTestMessage(t, TypeCommand, "ping", 1)
	m.Compressed = true
	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error for compressed without has_data")
	}
}

func TestValidateRejectsBadFragmentIndex(t *testing.T) {
	m := newTestMessage(t, TypeCommand, "ping", 1)
	m.Fragmented = true
	m.FragmentIndex = 3
	m.FragmentsTotal = 3
	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error for fragment_index >= fragments_total")
	}
}

func TestValidateAcceptsWellFormedMessage(t *testing.T) {
	m := newTestMessage(t, TypeCommand, "ping", 1)
	if err := m.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestSetCommandRejectsNonAlphanumeric(t *testing.T) {
	m := &Message{}
	if err := m.SetCommand("pi!g"); err == nil {
		t.Fatal("expected error for non-alphanumeric command byte")
	}
	if err := m.SetCommand("abc"); err == nil {
		t.Fatal("expected error for command with wrong length")
	}
}
