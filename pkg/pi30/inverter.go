// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the driver's position in the half-duplex exchange.
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}

// Observer is notified once per Execute with its outcome.
type Observer interface {
	ObserveExchange(mnemonic string, d time.Duration, err error)
}

// Inverter is the driver for one device. It owns its stream exclusively and
// runs one exchange at a time; concurrent Execute calls are serialized.
type Inverter struct {
	mu        sync.Mutex
	stream    Stream
	transport *transport
	released  bool

	// state is readable while an exchange holds mu.
	state atomic.Int32

	logger       *zap.Logger
	observer     Observer
	strictMarker bool
}

// Option configures an Inverter.
type Option func(*Inverter)

// WithLogger logs every frame at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(inv *Inverter) {
		if logger != nil {
			inv.logger = logger
		}
	}
}

// WithObserver reports each exchange to o.
func WithObserver(o Observer) Option {
	return func(inv *Inverter) {
		inv.observer = o
	}
}

// WithStrictMarker rejects responses that do not start with '('.
// Off by default: some firmwares have been seen to drop or vary the marker,
// and the checksum already guards the payload.
func WithStrictMarker(strict bool) Option {
	return func(inv *Inverter) {
		inv.strictMarker = strict
	}
}

// New creates a driver that takes ownership of stream.
func New(stream Stream, opts ...Option) *Inverter {
	if stream == nil {
		panic("pi30: stream cannot be nil")
	}

	inv := &Inverter{
		stream:    stream,
		transport: newTransport(stream),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// State returns the current exchange state. It never blocks, even while a
// read is pending.
func (inv *Inverter) State() State {
	return State(inv.state.Load())
}

// Release hands the underlying stream back to the caller. Bytes already
// buffered by the driver are dropped and later calls to Execute fail.
// If an Execute is in flight, Release waits for it to finish.
func (inv *Inverter) Release() Stream {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.released = true
	return inv.stream
}

// Execute sends cmd and returns its parsed response. It performs exactly one
// write and one read, with no retry. Any error other than a payload or
// encoding error may leave the stream out of step; see Resync.
func Execute[R any](inv *Inverter, cmd Command[R]) (R, error) {
	var zero R

	req := cmd.Request()
	op := commandName(cmd, req)
	start := time.Now()

	payload, err := inv.exchange(op, req)
	if err == nil {
		if bytes.Equal(payload, nakPayload) {
			err = &Error{Kind: KindPayload, Op: op, Err: ErrNAK}
		}
	}

	var res R
	if err == nil {
		res, err = cmd.ParseResponse(payload)
	}

	if inv.observer != nil {
		inv.observer.ObserveExchange(op, time.Since(start), err)
	}
	if err != nil {
		inv.logger.Debug("exchange failed", zap.String("cmd", op), zap.Error(err))
		return zero, err
	}
	return res, nil
}

// exchange writes one request frame and reads one response frame.
func (inv *Inverter) exchange(op string, req []byte) ([]byte, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.released {
		return nil, ioError(op, ErrReleased)
	}

	frame := EncodeFrame(req)
	inv.logger.Debug("tx", zap.String("cmd", op), zap.String("frame", FormatFrame(frame)))

	if err := inv.transport.writeAll(frame); err != nil {
		return nil, ioError(op, err)
	}
	if err := inv.transport.flush(); err != nil {
		return nil, ioError(op, err)
	}

	inv.state.Store(int32(StateAwaitingResponse))
	defer inv.state.Store(int32(StateIdle))

	resp, err := inv.transport.readUntil(Terminator)
	if err != nil {
		return nil, ioError(op, err)
	}
	inv.logger.Debug("rx", zap.String("cmd", op), zap.String("frame", FormatFrame(resp)))

	payload, err := DecodeFrame(resp, inv.strictMarker)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			e.Op = op
		}
		return nil, err
	}
	return payload, nil
}

// CommandName returns the label Execute uses for cmd in errors, logs and
// observer callbacks.
func CommandName[R any](cmd Command[R]) string {
	return commandName(cmd, cmd.Request())
}

func commandName(cmd interface{}, req []byte) string {
	if n, ok := cmd.(Named); ok {
		return n.Name()
	}
	return string(req)
}
