package pcissd

import (
	"errors"
	"fmt"
)

// SimErrorCode is a high-level category for a *Error, mirroring the
// teacher's UblkErrorCode but covering this simulator's error surface
// instead of kernel ublk errno mapping.
type SimErrorCode string

const (
	ErrCodeInvalidParameters SimErrorCode = "invalid parameters"
	ErrCodeOverlap           SimErrorCode = "overlapping sector"
	ErrCodeDMANotRegistered  SimErrorCode = "dma not registered"
	ErrCodeSGInvalid         SimErrorCode = "invalid scatter/gather entry"
	ErrCodeProtocolViolation SimErrorCode = "protocol violation"
)

// Error is a structured simulator error with enough context to log or
// assert on without string-matching. Op names the operation that produced
// it (e.g. "AddTransaction", "RegisterDMA").
type Error struct {
	Op    string
	Code  SimErrorCode
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("pcissd: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("pcissd: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError constructs a structured error.
func NewError(op string, code SimErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapError wraps inner under a new operation name, preserving its code.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if se, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: se.Code, Msg: se.Msg, Inner: se.Inner}
	}
	return &Error{Op: op, Code: ErrCodeInvalidParameters, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code SimErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// protocolViolation panics with a *Error carrying ErrCodeProtocolViolation.
// These conditions can only arise from a collaborator or caller breaking
// the protocol, never from valid external input, so panicking (rather than
// returning an error the caller might ignore) is the correct failure mode.
// Callers that need to observe these in tests can recover and assert with
// IsCode(recovered.(error), ErrCodeProtocolViolation).
func protocolViolation(op, msg string) {
	panic(NewError(op, ErrCodeProtocolViolation, msg))
}
