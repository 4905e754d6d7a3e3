// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure produced by this package.
type ErrorKind int

const (
	// KindIO is a failed read or write on the underlying stream, including
	// an unexpected end of stream.
	KindIO ErrorKind = iota
	// KindFormat is a response frame that is structurally malformed.
	KindFormat
	// KindChecksum is a response whose checksum does not match its payload.
	KindChecksum
	// KindPayload is a valid frame whose payload does not have the shape
	// the command expects.
	KindPayload
	// KindEncoding is a payload field that is not valid text or not a
	// number where one is expected.
	KindEncoding
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindFormat:
		return "format"
	case KindChecksum:
		return "checksum"
	case KindPayload:
		return "payload"
	case KindEncoding:
		return "encoding"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is. Each one matches every *Error of its kind.
var (
	ErrIO       = errors.New("inverter i/o error")
	ErrFormat   = errors.New("invalid response format")
	ErrChecksum = errors.New("response checksum mismatch")
	ErrPayload  = errors.New("invalid response payload")
	ErrEncoding = errors.New("invalid response encoding")
)

// ErrNAK is wrapped by the payload error returned when the device answers NAK.
var ErrNAK = errors.New("command rejected by device (NAK)")

// ErrReleased is wrapped by the I/O error returned after Release.
var ErrReleased = errors.New("inverter stream released")

// Error is the single error type returned by the driver and by commands.
type Error struct {
	Kind ErrorKind
	// Op is the command mnemonic or codec step that failed.
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("pi30 %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("pi30 %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of this error's kind.
func (e *Error) Is(target error) bool {
	return target == kindSentinel(e.Kind)
}

func kindSentinel(k ErrorKind) error {
	switch k {
	case KindIO:
		return ErrIO
	case KindFormat:
		return ErrFormat
	case KindChecksum:
		return ErrChecksum
	case KindPayload:
		return ErrPayload
	case KindEncoding:
		return ErrEncoding
	}
	return nil
}

// KindOf returns the kind of the first *Error in err's chain. Errors that did
// not originate in this package are reported as KindIO.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIO
}

// Resync reports whether err leaves the stream in an unknown position.
// The caller must discard the driver and reopen the stream; retrying on the
// same stream may pair the next request with a stale response.
func Resync(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindPayload, KindEncoding:
		return false
	}
	return true
}

// ChecksumMismatch describes a rejected response checksum.
type ChecksumMismatch struct {
	Expected uint16
	Actual   uint16
}

func (c *ChecksumMismatch) Error() string {
	return fmt.Sprintf("expected 0x%04X, got 0x%04X", c.Expected, c.Actual)
}

// NewPayloadError builds a payload-kind error for command op.
func NewPayloadError(op string, format string, args ...interface{}) error {
	return &Error{Kind: KindPayload, Op: op, Err: fmt.Errorf(format, args...)}
}

// NewEncodingError builds an encoding-kind error for field of command op.
func NewEncodingError(op string, field string, err error) error {
	return &Error{Kind: KindEncoding, Op: op, Err: fmt.Errorf("field %s: %w", field, err)}
}

func ioError(op string, err error) error {
	return &Error{Kind: KindIO, Op: op, Err: err}
}

func formatError(op string, format string, args ...interface{}) error {
	return &Error{Kind: KindFormat, Op: op, Err: fmt.Errorf(format, args...)}
}
