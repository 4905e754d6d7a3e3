// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pi30 implements the request/response codec spoken by Voltronic-style
// solar inverters (sold as Axpert, MPP Solar, Masterpower, Phocos and others)
// over their serial and USB-HID interfaces.
//
// A request frame is the command mnemonic and its arguments followed by a
// CRC-16/XMODEM checksum (big-endian) and a carriage return. A response frame
// starts with a marker byte, conventionally '(', followed by the payload, the
// checksum of the payload and a carriage return.
//
// Concrete commands live outside this package and plug in through the
// Command interface; see the commands subpackage.
package pi30

// Framing bytes
const (
	Terminator     = '\r'
	ResponseMarker = '('
)

// Frame size limits
const (
	ChecksumSize = 2

	// MinResponseSize is marker + checksum + terminator with an empty payload.
	MinResponseSize = 1 + ChecksumSize + 1
)

// nakPayload is sent by the device for unsupported or rejected commands.
var nakPayload = []byte("NAK")

// ackPayload is sent by the device when a setter command was accepted.
var ackPayload = []byte("ACK")
