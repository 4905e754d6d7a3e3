// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"fmt"
	"strings"
)

// EncodeFrame builds a request frame: payload, checksum (big-endian), terminator.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+ChecksumSize+1)
	frame = append(frame, payload...)
	frame = appendChecksum(frame, payload)
	frame = append(frame, Terminator)
	return frame
}

// DecodeFrame validates a response frame ending with the terminator and
// returns its payload. The marker byte is only checked when strictMarker is
// set. The returned slice aliases frame.
func DecodeFrame(frame []byte, strictMarker bool) ([]byte, error) {
	if len(frame) < MinResponseSize {
		return nil, formatError("decode", "frame too short: %d bytes (min %d)", len(frame), MinResponseSize)
	}
	if frame[len(frame)-1] != Terminator {
		return nil, formatError("decode", "missing terminator: last byte 0x%02X", frame[len(frame)-1])
	}
	if strictMarker && frame[0] != ResponseMarker {
		return nil, formatError("decode", "unexpected marker 0x%02X (want 0x%02X)", frame[0], ResponseMarker)
	}

	end := len(frame) - ChecksumSize - 1
	payload := frame[1:end]
	sum := frame[end : end+ChecksumSize]

	calculated := Checksum(payload)
	received := uint16(sum[0])<<8 | uint16(sum[1])
	if calculated != received {
		return nil, &Error{
			Kind: KindChecksum,
			Op:   "decode",
			Err:  &ChecksumMismatch{Expected: calculated, Actual: received},
		}
	}

	return payload, nil
}

// FormatFrame renders a frame for logging: printable ASCII is kept, the
// checksum and any other bytes are shown in hex.
//
//	QPI<BE AC><CR>
func FormatFrame(frame []byte) string {
	var sb strings.Builder
	body := frame
	var sum []byte
	term := false

	if n := len(body); n > 0 && body[n-1] == Terminator {
		term = true
		body = body[:n-1]
	}
	if term && len(body) >= ChecksumSize {
		sum = body[len(body)-ChecksumSize:]
		body = body[:len(body)-ChecksumSize]
	}

	for _, b := range body {
		if b >= 0x20 && b < 0x7F {
			sb.WriteByte(b)
		} else {
			fmt.Fprintf(&sb, "<%02X>", b)
		}
	}
	if sum != nil {
		fmt.Fprintf(&sb, "<%02X %02X>", sum[0], sum[1])
	}
	if term {
		sb.WriteString("<CR>")
	}
	return sb.String()
}
