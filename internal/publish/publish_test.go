// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Thermoquad/mpqtt/internal/config"
	"github.com/Thermoquad/mpqtt/pkg/pi30"
	"github.com/Thermoquad/mpqtt/pkg/pi30/commands"
)

type message struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, message{topic, append([]byte(nil), payload...)})
	return nil
}

func newJSONSink(t *testing.T) (*Sink, *fakePublisher) {
	t.Helper()
	enc, err := NewEncoder("json")
	require.NoError(t, err)
	pub := &fakePublisher{}
	return NewSink(pub, enc, "home/inverter/"), pub
}

func TestSinkReading(t *testing.T) {
	sink, pub := newJSONSink(t)

	require.NoError(t, sink.Reading("QMOD", commands.ModeLine))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "home/inverter/qmod", pub.msgs[0].topic)
	assert.JSONEq(t, `"line"`, string(pub.msgs[0].payload))
}

func TestSinkError(t *testing.T) {
	sink, pub := newJSONSink(t)

	err := pi30.NewPayloadError("QPIGS", "expected at least %d fields, got %d", 17, 3)
	require.NoError(t, sink.Error("QPIGS", err))
	require.NoError(t, sink.Error("QPI", errors.New("stream closed")))
	require.NoError(t, sink.Error("QMOD", fmt.Errorf("QMOD: %w", context.DeadlineExceeded)))
	require.NoError(t, sink.ClearError())

	require.Len(t, pub.msgs, 4)
	assert.Equal(t, "home/inverter/error", pub.msgs[0].topic)

	var report ErrorReport
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &report))
	assert.Equal(t, "QPIGS", report.Command)
	assert.Equal(t, "payload", report.Kind)
	assert.Contains(t, report.Error, "expected at least 17 fields")

	require.NoError(t, json.Unmarshal(pub.msgs[1].payload, &report))
	assert.Equal(t, "internal", report.Kind)

	require.NoError(t, json.Unmarshal(pub.msgs[2].payload, &report))
	assert.Equal(t, "timeout", report.Kind)

	assert.Equal(t, "home/inverter/error", pub.msgs[3].topic)
	assert.Empty(t, pub.msgs[3].payload)
}

func TestSinkStats(t *testing.T) {
	sink, pub := newJSONSink(t)

	require.NoError(t, sink.Stats(Stats{OuterUpdateDuration: 1200, InnerUpdateDuration: 900}))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "home/inverter/stats", pub.msgs[0].topic)
	assert.JSONEq(t, `{"outer_update_duration":1200,"inner_update_duration":900}`, string(pub.msgs[0].payload))
}

func TestSinkPublishError(t *testing.T) {
	sink, pub := newJSONSink(t)
	pub.err = errors.New("not connected")

	err := sink.Stats(Stats{})
	require.Error(t, err)
	assert.ErrorIs(t, err, pub.err)
}

func TestCBOREncoder(t *testing.T) {
	enc, err := NewEncoder("cbor")
	require.NoError(t, err)
	assert.Equal(t, "cbor", enc.Name())

	data, err := enc.Marshal(Stats{OuterUpdateDuration: 5, InnerUpdateDuration: 2})
	require.NoError(t, err)

	var got map[string]int64
	require.NoError(t, cbor.Unmarshal(data, &got))
	assert.Equal(t, int64(5), got["outer_update_duration"])
	assert.Equal(t, int64(2), got["inner_update_duration"])
}

func TestNewEncoderUnknown(t *testing.T) {
	_, err := NewEncoder("xml")
	assert.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Host:     "broker.lan",
		Port:     1883,
		Username: "solar",
		Password: "secret",
		ClientID: "mpqtt-test",
		Topic:    "home/inverter",
		QoS:      1,
	}

	opts := clientOptions(cfg, zap.NewNop())
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://broker.lan:1883", opts.Servers[0].String())
	assert.Equal(t, "mpqtt-test", opts.ClientID)
	assert.Equal(t, "solar", opts.Username)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "home/inverter/status", opts.WillTopic)
	assert.Equal(t, []byte(StatusOffline), opts.WillPayload)
	assert.True(t, opts.WillRetained)
	assert.Equal(t, byte(1), opts.WillQos)
}
