// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package commands

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Thermoquad/mpqtt/pkg/pi30"
)

// ProtocolID queries the device protocol id (QPI).
type ProtocolID struct{}

func (ProtocolID) Name() string    { return "QPI" }
func (ProtocolID) Request() []byte { return []byte("QPI") }

// ParseResponse parses "PI<n>".
func (ProtocolID) ParseResponse(payload []byte) (int, error) {
	rest, err := trimPrefix("QPI", payload, "PI")
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(string(rest))
	if err != nil {
		return 0, pi30.NewEncodingError("QPI", "protocol_id", err)
	}
	return id, nil
}

// SerialNumber queries the device serial number (QID).
type SerialNumber struct{}

func (SerialNumber) Name() string    { return "QID" }
func (SerialNumber) Request() []byte { return []byte("QID") }

func (SerialNumber) ParseResponse(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", pi30.NewEncodingError("QID", "serial_number", errInvalidUTF8)
	}
	sn := strings.TrimSpace(string(payload))
	if sn == "" {
		return "", pi30.NewPayloadError("QID", "empty serial number")
	}
	return sn, nil
}

// FirmwareVersion queries the main CPU firmware version (QVFW), or the
// secondary CPU version (QVFW2) when Secondary is set.
type FirmwareVersion struct {
	Secondary bool
}

func (f FirmwareVersion) Name() string {
	if f.Secondary {
		return "QVFW2"
	}
	return "QVFW"
}

func (f FirmwareVersion) Request() []byte {
	return []byte(f.Name())
}

// ParseResponse parses "VERFW:<version>" or "VERFW2:<version>".
func (f FirmwareVersion) ParseResponse(payload []byte) (string, error) {
	prefix := "VERFW:"
	if f.Secondary {
		prefix = "VERFW2:"
	}
	rest, err := trimPrefix(f.Name(), payload, prefix)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(rest) {
		return "", pi30.NewEncodingError(f.Name(), "version", errInvalidUTF8)
	}
	version := strings.TrimSpace(string(rest))
	if version == "" {
		return "", pi30.NewPayloadError(f.Name(), "empty firmware version")
	}
	return version, nil
}
