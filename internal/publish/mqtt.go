// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/Thermoquad/mpqtt/internal/config"
)

// Availability payloads on <topic>/status
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// MQTT publishes to a broker with the paho client. The status topic carries
// a retained "online" while connected and a last-will "offline".
type MQTT struct {
	client mqtt.Client
	cfg    config.MQTTConfig
	logger *zap.Logger
}

func statusTopic(cfg config.MQTTConfig) string {
	return strings.TrimSuffix(cfg.Topic, "/") + "/" + TopicStatus
}

func clientOptions(cfg config.MQTTConfig, logger *zap.Logger) *mqtt.ClientOptions {
	status := statusTopic(cfg)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetWill(status, StatusOffline, cfg.QoS, true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)))
		c.Publish(status, cfg.QoS, true, StatusOnline)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})
	return opts
}

// DialMQTT connects to the broker in cfg.
func DialMQTT(cfg config.MQTTConfig, logger *zap.Logger) (*MQTT, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := mqtt.NewClient(clientOptions(cfg, logger))

	tok := client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s:%d: timed out", cfg.Host, cfg.Port)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &MQTT{client: client, cfg: cfg, logger: logger}, nil
}

// Publish sends payload on topic and waits for the broker to accept it.
func (m *MQTT) Publish(topic string, payload []byte) error {
	tok := m.client.Publish(topic, m.cfg.QoS, m.cfg.Retain, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	return tok.Error()
}

// Close marks the device offline and disconnects.
func (m *MQTT) Close() {
	tok := m.client.Publish(statusTopic(m.cfg), m.cfg.QoS, true, StatusOffline)
	tok.WaitTimeout(publishTimeout)
	m.client.Disconnect(250)
}
