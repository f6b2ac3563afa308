// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

// CRC8 computes the SimpleBinary frame checksum.
// The accumulator is 16 bits wide; the result is its high byte.
func CRC8(data []byte) byte {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc ^= crcPolynomial
			}
			crc <<= 1
		}
	}
	return byte(crc >> 8)
}

// appendCRC appends the checksum of frame to frame
func appendCRC(frame []byte) []byte {
	return append(frame, CRC8(frame))
}
