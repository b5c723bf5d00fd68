package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies a protocol-level error so callers can branch on it with
// errors.As instead of string matching (spec.md §7).
type Kind int

const (
	KindMalformed Kind = iota
	KindUnknownType
	KindUnknownCommand
	KindIllegalFlags
	KindStray
	KindTimeout
	KindSocketSend
	KindConfig
)

// KindNames maps a Kind to a human-readable identifier for logging.
var KindNames = map[Kind]string{
	KindMalformed:      "MALFORMED",
	KindUnknownType:    "UNKNOWN_TYPE",
	KindUnknownCommand: "UNKNOWN_COMMAND",
	KindIllegalFlags:   "ILLEGAL_FLAGS",
	KindStray:          "STRAY",
	KindTimeout:        "TIMEOUT",
	KindSocketSend:     "SOCKET_SEND",
	KindConfig:         "CONFIG",
}

func (k Kind) String() string {
	if n, ok := KindNames[k]; ok {
		return n
	}
	return "UNKNOWN_KIND"
}

// Error is the typed error returned by frame decode/encode and surfaced to
// callers on ack/response timeout. Op names the operation that failed
// ("decode", "encode", "ack", "query", ...) so log lines stay greppable.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unp: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("unp: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// newError constructs an *Error wrapping err (which may be nil).
func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewError is the exported form of newError, for use by sibling packages
// that need to raise a typed protocol.Error of their own: reliability for an
// ack timeout, engine for a response timeout.
func NewError(kind Kind, op string, err error) *Error {
	return newError(kind, op, err)
}

// IsTimeout reports whether err is (or wraps) a timeout Error.
func IsTimeout(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindTimeout
	}
	return false
}
