// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"bytes"
	"errors"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("invalid UTF-8")

// Command is one request/response exchange with the device. R is the
// typed result the command parses from a validated response payload.
type Command[R any] interface {
	// Request returns the mnemonic followed by any argument bytes.
	Request() []byte
	// ParseResponse parses a payload that already passed frame and
	// checksum validation. Shape violations must be reported with
	// NewPayloadError, bad field text with NewEncodingError.
	ParseResponse(payload []byte) (R, error)
}

// Named is implemented by commands whose request carries arguments, so logs
// and metrics can label them by mnemonic alone.
type Named interface {
	Name() string
}

// Raw sends an arbitrary mnemonic and returns the response payload as text.
type Raw struct {
	Mnemonic string
	Args     []byte
}

func (r Raw) Name() string {
	return r.Mnemonic
}

func (r Raw) Request() []byte {
	req := make([]byte, 0, len(r.Mnemonic)+len(r.Args))
	req = append(req, r.Mnemonic...)
	return append(req, r.Args...)
}

func (r Raw) ParseResponse(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", NewEncodingError(r.Mnemonic, "payload", errInvalidUTF8)
	}
	return string(payload), nil
}

// ParseAck checks for an ACK payload on behalf of setter command op.
func ParseAck(op string, payload []byte) (bool, error) {
	if !bytes.Equal(payload, ackPayload) {
		return false, NewPayloadError(op, "expected ACK, got %q", payload)
	}
	return true, nil
}
