// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/mpqtt/internal/config"
	"github.com/Thermoquad/mpqtt/internal/metrics"
	"github.com/Thermoquad/mpqtt/internal/publish"
	"github.com/Thermoquad/mpqtt/pkg/pi30"
	"github.com/Thermoquad/mpqtt/pkg/pi30/commands"
)

var defaultAnswers = map[string]string{
	"QID":   "92932004102443",
	"QPI":   "PI30",
	"QVFW":  "VERFW:00072.70",
	"QMOD":  "L",
	"QPIGS": "230.0 50.0 230.0 50.0 0161 0107 003 380 52.50 000 100 0035 0000 000.0 00.00 00000 00010110 00 00 00000 010",
	"QPIRI": "230.0 21.7 230.0 50.0 21.7 5000 4000 48.0 46.0 42.0 56.4 54.0 0 10 010 1 0 0 6 01 0 0 54.0 0 1",
	"QPIWS": "00000000000000000000000000000000",
	"QPGS0": "0 92932004102442 L 00 230.0 50.00 230.0 50.00 0230 0161 005 52.5 010 100 000.0 010 00460 00322 009 01000010",
	"QPGS1": "1 92932004102443 B 00 000.0 00.00 230.0 49.99 0460 0322 010 52.2 000 075 000.0 000 00460 00322 009 10000010 0 1 060 120 10 00 000",
	"QPGS2": "0 92932004102444 L 00 230.0 50.00 230.0 50.00 0230 0161 005 52.5 010 100 000.0 010 00460 00322 009 01000010",
}

// fakeInverter answers request frames from a table. Mnemonics in hang get
// no answer; mnemonics in corrupt get a bad checksum. Read blocks until
// data is queued or the stream is closed.
type fakeInverter struct {
	mu      sync.Mutex
	cond    *sync.Cond
	answers map[string]string
	hang    map[string]bool
	corrupt map[string]bool
	req     []byte
	out     []byte
	closed  bool
	sent    []string
}

func newFakeInverter(answers map[string]string) *fakeInverter {
	f := &fakeInverter{answers: answers, hang: map[string]bool{}, corrupt: map[string]bool{}}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *fakeInverter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}

	f.req = append(f.req, p...)
	for {
		idx := bytes.IndexByte(f.req, pi30.Terminator)
		if idx < 0 {
			break
		}
		mnemonic := string(f.req[:idx-pi30.ChecksumSize])
		f.req = f.req[idx+1:]
		f.sent = append(f.sent, mnemonic)
		if f.hang[mnemonic] {
			continue
		}
		payload, ok := f.answers[mnemonic]
		if !ok {
			payload = "NAK"
		}
		crc := pi30.Checksum([]byte(payload))
		if f.corrupt[mnemonic] {
			crc ^= 0xFFFF
		}
		f.out = append(f.out, pi30.ResponseMarker)
		f.out = append(f.out, payload...)
		f.out = append(f.out, byte(crc>>8), byte(crc), pi30.Terminator)
	}
	f.cond.Broadcast()
	return len(p), nil
}

func (f *fakeInverter) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.out) == 0 && !f.closed {
		f.cond.Wait()
	}
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	n := copy(p, f.out)
	f.out = f.out[n:]
	return n, nil
}

// requests returns the mnemonics received so far.
func (f *fakeInverter) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeInverter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
	return nil
}

type message struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message{topic, append([]byte(nil), payload...)})
	return nil
}

func (f *fakePublisher) on(topic string) []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []message
	for _, m := range f.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakePublisher) errorReports(t *testing.T) []publish.ErrorReport {
	t.Helper()
	var out []publish.ErrorReport
	for _, m := range f.on("mpqtt/error") {
		if len(m.payload) == 0 {
			continue
		}
		var r publish.ErrorReport
		require.NoError(t, json.Unmarshal(m.payload, &r))
		out = append(out, r)
	}
	return out
}

type harness struct {
	poller *Poller
	pub    *fakePublisher
	dials  atomic.Int32
	cancel context.CancelFunc
	done   chan error
}

// newHarness starts a poller whose dialer hands out a fresh device built by
// newDevice on every dial.
func newHarness(t *testing.T, mode string, m *metrics.Metrics, newDevice func(n int) (io.ReadWriteCloser, error)) *harness {
	t.Helper()
	return startHarness(t, Options{Mode: mode, Metrics: m}, newDevice)
}

// startHarness is newHarness with Mode, Debug and Metrics taken from opts.
func startHarness(t *testing.T, opts Options, newDevice func(n int) (io.ReadWriteCloser, error)) *harness {
	t.Helper()

	enc, err := publish.NewEncoder("json")
	require.NoError(t, err)

	h := &harness{pub: &fakePublisher{}, done: make(chan error, 1)}
	h.poller = New(Options{
		Dial: func(ctx context.Context) (io.ReadWriteCloser, error) {
			return newDevice(int(h.dials.Add(1)))
		},
		Sink:     publish.NewSink(h.pub, enc, "mpqtt"),
		Inverter: config.InverterConfig{CommandTimeout: 200 * time.Millisecond},
		Poll:     config.PollConfig{InnerIterations: 2, OuterDelay: 5 * time.Millisecond},
		Mode:     opts.Mode,
		Debug:    opts.Debug,
		Metrics:  opts.Metrics,
	})
	h.poller.minBackoff = time.Millisecond
	h.poller.maxBackoff = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.poller.Run(ctx) }()

	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
	h.done <- context.Canceled
}

func (h *harness) waitStats(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.pub.on("mpqtt/stats")) >= n
	}, 5*time.Second, 5*time.Millisecond)
}

func fixed(configure func(f *fakeInverter)) func(int) (io.ReadWriteCloser, error) {
	return func(int) (io.ReadWriteCloser, error) {
		f := newFakeInverter(defaultAnswers)
		if configure != nil {
			configure(f)
		}
		return f, nil
	}
}

// ============================================================
// Cycle Tests
// ============================================================

func TestPollerPublishesCycle(t *testing.T) {
	h := newHarness(t, "", nil, fixed(nil))
	h.waitStats(t, 1)

	for _, topic := range []string{"qid", "qpi", "qvfw", "qmod", "qpiri", "qpiws"} {
		assert.NotEmpty(t, h.pub.on("mpqtt/"+topic), topic)
	}
	assert.GreaterOrEqual(t, len(h.pub.on("mpqtt/qpigs")), 2)

	qpi := h.pub.on("mpqtt/qpi")
	assert.Equal(t, "30", string(qpi[0].payload))
	qmod := h.pub.on("mpqtt/qmod")
	assert.Equal(t, `"line"`, string(qmod[0].payload))

	var stats publish.Stats
	require.NoError(t, json.Unmarshal(h.pub.on("mpqtt/stats")[0].payload, &stats))
	assert.GreaterOrEqual(t, stats.OuterUpdateDuration, stats.InnerUpdateDuration)

	require.Eventually(t, h.poller.Ready, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.pub.on("mpqtt/error")) > 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.pub.on("mpqtt/error")[0].payload)
	assert.Empty(t, h.pub.errorReports(t))

	r, ok := h.poller.Store().Get("QPIGS")
	require.True(t, ok)
	status, ok := r.Value.(commands.GeneralStatusResponse)
	require.True(t, ok)
	assert.Equal(t, 52.5, status.BatteryVoltage)
	assert.Equal(t, int32(1), h.dials.Load())
}

func TestPollerPhocosSkipsRating(t *testing.T) {
	var dev *fakeInverter
	h := newHarness(t, config.ModePhocos, nil, fixed(func(f *fakeInverter) { dev = f }))
	h.waitStats(t, 2)

	assert.Empty(t, h.pub.on("mpqtt/qpiri"))
	assert.Empty(t, h.pub.on("mpqtt/qpigs"))
	assert.Empty(t, h.pub.on("mpqtt/qpgs0"))
	assert.GreaterOrEqual(t, len(h.pub.on("mpqtt/qpgs1")), 2)
	assert.GreaterOrEqual(t, len(h.pub.on("mpqtt/qpgs2")), 2)
	assert.NotEmpty(t, h.pub.on("mpqtt/qpiws"))
	assert.Empty(t, h.pub.errorReports(t))

	h.stop()
	sent := dev.requests()
	assert.NotContains(t, sent, "QPIGS")
	assert.NotContains(t, sent, "QPIRI")
	assert.NotContains(t, sent, "QPGS0")
	assert.Contains(t, sent, "QPGS1")
	assert.Contains(t, sent, "QPGS2")

	r, ok := h.poller.Store().Get("QPGS1")
	require.True(t, ok)
	unit, ok := r.Value.(commands.ParallelStatusResponse)
	require.True(t, ok)
	assert.Equal(t, commands.ModeBattery, unit.WorkMode)
	assert.Equal(t, 52.2, unit.BatteryVoltage)
}

func TestPollerPhocosDebugPollsMaster(t *testing.T) {
	h := startHarness(t, Options{Mode: config.ModePhocos, Debug: true}, fixed(nil))
	h.waitStats(t, 1)

	assert.NotEmpty(t, h.pub.on("mpqtt/qpgs0"))
	assert.NotEmpty(t, h.pub.on("mpqtt/qpgs1"))
	assert.Empty(t, h.pub.on("mpqtt/qpigs"))
}

func TestPollerStandardModeSkipsParallel(t *testing.T) {
	var dev *fakeInverter
	h := newHarness(t, "", nil, fixed(func(f *fakeInverter) { dev = f }))
	h.waitStats(t, 1)
	h.stop()

	for _, m := range dev.requests() {
		assert.NotContains(t, m, "QPGS")
	}
}

func TestPollerSerialNumberOptional(t *testing.T) {
	h := newHarness(t, "", nil, fixed(func(f *fakeInverter) {
		f.answers = map[string]string{}
		for k, v := range defaultAnswers {
			if k != "QID" {
				f.answers[k] = v
			}
		}
	}))
	h.waitStats(t, 1)

	assert.Empty(t, h.pub.on("mpqtt/qid"))
	assert.Empty(t, h.pub.errorReports(t))
	assert.Equal(t, int32(1), h.dials.Load())
}

// ============================================================
// Error Handling Tests
// ============================================================

func TestPollerPayloadErrorContinues(t *testing.T) {
	h := newHarness(t, "", nil, fixed(func(f *fakeInverter) {
		f.answers = map[string]string{}
		for k, v := range defaultAnswers {
			f.answers[k] = v
		}
		f.answers["QMOD"] = "X"
	}))
	h.waitStats(t, 2)

	reports := h.pub.errorReports(t)
	require.NotEmpty(t, reports)
	assert.Equal(t, "QMOD", reports[0].Command)
	assert.Equal(t, "payload", reports[0].Kind)

	for _, m := range h.pub.on("mpqtt/error") {
		assert.NotEmpty(t, m.payload, "error topic must not be cleared while QMOD fails")
	}
	assert.NotEmpty(t, h.pub.on("mpqtt/qpiws"))
	assert.Equal(t, int32(1), h.dials.Load())
}

func TestPollerChecksumReconnects(t *testing.T) {
	m := metrics.New(metrics.NewRegistry())
	h := newHarness(t, "", m, func(n int) (io.ReadWriteCloser, error) {
		f := newFakeInverter(defaultAnswers)
		if n == 1 {
			f.corrupt["QPIWS"] = true
		}
		return f, nil
	})
	h.waitStats(t, 1)

	assert.GreaterOrEqual(t, h.dials.Load(), int32(2))
	reports := h.pub.errorReports(t)
	require.NotEmpty(t, reports)
	assert.Equal(t, "QPIWS", reports[0].Command)
	assert.Equal(t, "checksum", reports[0].Kind)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.ReconnectTotal), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.ExchangeTotal.WithLabelValues("QPIWS", "checksum")), 1.0)
}

func TestPollerTimeoutReconnects(t *testing.T) {
	h := newHarness(t, "", nil, func(n int) (io.ReadWriteCloser, error) {
		f := newFakeInverter(defaultAnswers)
		if n == 1 {
			f.hang["QMOD"] = true
		}
		return f, nil
	})
	h.waitStats(t, 1)

	assert.GreaterOrEqual(t, h.dials.Load(), int32(2))
	reports := h.pub.errorReports(t)
	require.NotEmpty(t, reports)
	assert.Equal(t, "QMOD", reports[0].Command)
	assert.Equal(t, "timeout", reports[0].Kind)
}

func TestPollerDialRetry(t *testing.T) {
	h := newHarness(t, "", nil, func(n int) (io.ReadWriteCloser, error) {
		if n < 3 {
			return nil, errors.New("no such device")
		}
		return newFakeInverter(defaultAnswers), nil
	})
	h.waitStats(t, 1)

	assert.Equal(t, int32(3), h.dials.Load())
	reports := h.pub.errorReports(t)
	require.Len(t, reports, 2)
	assert.Equal(t, "connect", reports[0].Command)
}

func TestPollerStopsOnCancel(t *testing.T) {
	h := newHarness(t, "", nil, fixed(nil))
	h.waitStats(t, 1)

	h.cancel()
	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, context.Canceled)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, h.poller.Ready())
}

// ============================================================
// Store Tests
// ============================================================

func TestStoreSnapshotOrdered(t *testing.T) {
	s := NewStore()
	s.Set("QPIWS", 1)
	s.Set("QMOD", 2)
	s.Set("QPIGS", 3)
	s.Set("QMOD", 4)

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "QMOD", snap[0].Command)
	assert.Equal(t, 4, snap[0].Value)
	assert.Equal(t, "QPIGS", snap[1].Command)
	assert.Equal(t, "QPIWS", snap[2].Command)

	_, ok := s.Get("QPIRI")
	assert.False(t, ok)
}
