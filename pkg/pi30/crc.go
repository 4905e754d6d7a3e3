// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// Checksum computes the CRC-16/XMODEM checksum (poly 0x1021, init 0x0000,
// no reflection, no final XOR) of data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// appendChecksum appends the checksum of data to dst, most significant byte first.
func appendChecksum(dst []byte, data []byte) []byte {
	crc := Checksum(data)
	return append(dst, byte(crc>>8), byte(crc&0xFF))
}
