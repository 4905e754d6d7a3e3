// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package commands is a catalog of PI30 inverter commands. Each command is a
// small value type implementing pi30.Command for its own response type.
package commands

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Thermoquad/mpqtt/pkg/pi30"
)

var errInvalidUTF8 = errors.New("invalid UTF-8")

// fieldReader parses a space separated payload. The first failure is kept
// and every later read is a no-op, so a parse function can read all of its
// fields and check err once.
type fieldReader struct {
	op     string
	fields []string
	err    error
}

func newFieldReader(op string, payload []byte, min int) (*fieldReader, error) {
	if !utf8.Valid(payload) {
		return nil, pi30.NewEncodingError(op, "payload", errInvalidUTF8)
	}
	fields := strings.Fields(string(payload))
	if len(fields) < min {
		return nil, pi30.NewPayloadError(op, "expected at least %d fields, got %d", min, len(fields))
	}
	return &fieldReader{op: op, fields: fields}, nil
}

func (r *fieldReader) has(i int) bool {
	return i < len(r.fields)
}

func (r *fieldReader) str(i int) string {
	return r.fields[i]
}

func (r *fieldReader) float(i int, name string) float64 {
	if r.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(r.fields[i], 64)
	if err != nil {
		r.err = pi30.NewEncodingError(r.op, name, err)
	}
	return v
}

func (r *fieldReader) int(i int, name string) int {
	if r.err != nil {
		return 0
	}
	v, err := strconv.Atoi(r.fields[i])
	if err != nil {
		r.err = pi30.NewEncodingError(r.op, name, err)
	}
	return v
}

// optFloat and optInt read trailing fields that older firmwares omit.
func (r *fieldReader) optFloat(i int, name string) *float64 {
	if !r.has(i) {
		return nil
	}
	v := r.float(i, name)
	return &v
}

func (r *fieldReader) optInt(i int, name string) *int {
	if !r.has(i) {
		return nil
	}
	v := r.int(i, name)
	return &v
}

// bits parses a field of '0'/'1' characters of exactly n digits.
func (r *fieldReader) bits(i int, n int, name string) []bool {
	if r.err != nil {
		return nil
	}
	out, err := parseBits(r.op, r.fields[i], name)
	if err != nil {
		r.err = err
		return nil
	}
	if len(out) != n {
		r.err = pi30.NewPayloadError(r.op, "field %s: expected %d bits, got %d", name, n, len(out))
		return nil
	}
	return out
}

func parseBits(op, s, name string) ([]bool, error) {
	out := make([]bool, len(s))
	for i, c := range s {
		switch c {
		case '0':
		case '1':
			out[i] = true
		default:
			return nil, pi30.NewEncodingError(op, name, strconv.ErrSyntax)
		}
	}
	return out, nil
}

// trimPrefix strips prefix from payload or fails with a payload error.
func trimPrefix(op string, payload []byte, prefix string) ([]byte, error) {
	if !bytes.HasPrefix(payload, []byte(prefix)) {
		return nil, pi30.NewPayloadError(op, "missing %q prefix in %q", prefix, payload)
	}
	return payload[len(prefix):], nil
}
