// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"bufio"
	"io"
)

// Stream is the duplex byte stream the driver talks over: a serial port, a
// raw character device, a network bridge, or an in-memory pipe in tests.
type Stream = io.ReadWriter

// transport owns one stream and gives buffered sequential access to it.
// It is not safe for concurrent use; the Inverter serializes access.
type transport struct {
	stream Stream
	rw     *bufio.ReadWriter
}

func newTransport(stream Stream) *transport {
	return &transport{
		stream: stream,
		rw:     bufio.NewReadWriter(bufio.NewReader(stream), bufio.NewWriter(stream)),
	}
}

// writeAll buffers p in full. Nothing reaches the stream until flush unless
// the buffer fills up.
func (t *transport) writeAll(p []byte) error {
	_, err := t.rw.Write(p)
	return err
}

func (t *transport) flush() error {
	return t.rw.Flush()
}

// readUntil reads up to and including delim. An end of stream before delim
// is reported as io.ErrUnexpectedEOF, even if no bytes were read.
func (t *transport) readUntil(delim byte) ([]byte, error) {
	buf, err := t.rw.ReadBytes(delim)
	if err == io.EOF {
		return buf, io.ErrUnexpectedEOF
	}
	return buf, err
}
