// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Thermoquad/mpqtt/pkg/pi30"
)

// Subtopics below the configured base topic
const (
	TopicError  = "error"
	TopicStats  = "stats"
	TopicStatus = "status"
)

// Publisher delivers one message to a broker.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// ErrorReport is published on <topic>/error.
type ErrorReport struct {
	Command string `json:"command"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}

// Stats is published on <topic>/stats after every cycle. Durations are in
// milliseconds.
type Stats struct {
	OuterUpdateDuration int64 `json:"outer_update_duration"`
	InnerUpdateDuration int64 `json:"inner_update_duration"`
}

// Sink maps readings, errors and stats onto topics below a base topic.
type Sink struct {
	pub  Publisher
	enc  Encoder
	base string
}

// NewSink returns a sink publishing below base.
func NewSink(pub Publisher, enc Encoder, base string) *Sink {
	return &Sink{pub: pub, enc: enc, base: strings.TrimSuffix(base, "/")}
}

// Topic returns the full topic for sub.
func (s *Sink) Topic(sub string) string {
	return s.base + "/" + sub
}

// Reading publishes the decoded result of command on <topic>/<command>.
func (s *Sink) Reading(command string, v any) error {
	return s.publish(strings.ToLower(command), v)
}

// Error publishes a failed command on <topic>/error.
func (s *Sink) Error(command string, err error) error {
	report := ErrorReport{Command: command, Error: err.Error()}
	var pe *pi30.Error
	switch {
	case errors.As(err, &pe):
		report.Kind = pe.Kind.String()
	case errors.Is(err, context.DeadlineExceeded):
		report.Kind = "timeout"
	default:
		report.Kind = "internal"
	}
	return s.publish(TopicError, report)
}

// ClearError publishes an empty payload on <topic>/error.
func (s *Sink) ClearError() error {
	return s.pub.Publish(s.Topic(TopicError), []byte{})
}

// Stats publishes cycle durations on <topic>/stats.
func (s *Sink) Stats(st Stats) error {
	return s.publish(TopicStats, st)
}

func (s *Sink) publish(sub string, v any) error {
	payload, err := s.enc.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", sub, err)
	}
	if err := s.pub.Publish(s.Topic(sub), payload); err != nil {
		return fmt.Errorf("publish %s: %w", sub, err)
	}
	return nil
}
