// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("MPQTT_CONFIG", "")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, TransportRaw, cfg.Inverter.Transport)
	assert.Equal(t, "/dev/hidraw0", cfg.Inverter.Path)
	assert.Equal(t, 5*time.Second, cfg.Inverter.CommandTimeout)
	assert.Equal(t, 10, cfg.Poll.InnerIterations)
	assert.Equal(t, "mpqtt", cfg.MQTT.Topic)
	assert.Equal(t, "json", cfg.MQTT.Encoding)
	assert.True(t, strings.HasPrefix(cfg.MQTT.ClientID, "mpqtt-"))
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
debug: true
mode: phocos
inverter:
  path: /dev/ttyUSB0
  transport: serial
  baud: 2400
mqtt:
  host: broker.lan
  clientId: solar
  topic: home/inverter
  encoding: cbor
poll:
  innerIterations: 3
  innerDelay: 250ms
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, ModePhocos, cfg.Mode)
	assert.Equal(t, TransportSerial, cfg.Inverter.Transport)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Inverter.Path)
	assert.Equal(t, "broker.lan", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "solar", cfg.MQTT.ClientID)
	assert.Equal(t, "cbor", cfg.MQTT.Encoding)
	assert.Equal(t, 3, cfg.Poll.InnerIterations)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.InnerDelay)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "mqtt:\n  host: broker.lan\n")
	t.Setenv("MPQTT_MQTT_HOST", "10.0.0.2")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", cfg.MQTT.Host)
}

func TestLoadFlagsOverride(t *testing.T) {
	path := writeConfig(t, "inverter:\n  path: /dev/hidraw1\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("port", "", "")
	flags.Int("baud", 2400, "")
	flags.String("transport", "", "")
	require.NoError(t, flags.Parse([]string{"--port", "/dev/ttyS1", "--transport", "serial"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS1", cfg.Inverter.Path)
	assert.Equal(t, TransportSerial, cfg.Inverter.Transport)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown transport", func(c *Config) { c.Inverter.Transport = "usb" }},
		{"websocket without url", func(c *Config) { c.Inverter.Transport = TransportWebSocket }},
		{"serial without path", func(c *Config) { c.Inverter.Transport = TransportSerial; c.Inverter.Path = "" }},
		{"bad encoding", func(c *Config) { c.MQTT.Encoding = "xml" }},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"zero iterations", func(c *Config) { c.Poll.InnerIterations = 0 }},
		{"zero timeout", func(c *Config) { c.Inverter.CommandTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			require.NoError(t, cfg.Validate())
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRedactedYAML(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.Password = "hunter2"

	out, err := cfg.Redacted().YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.Equal(t, "hunter2", cfg.MQTT.Password)

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Contains(t, back, "inverter")
	assert.Contains(t, back, "mqtt")
}

func validConfig() Config {
	return Config{
		Inverter: InverterConfig{Path: "/dev/hidraw0", Transport: TransportRaw, CommandTimeout: time.Second},
		MQTT:     MQTTConfig{Encoding: "json"},
		Poll:     PollConfig{InnerIterations: 1},
	}
}
