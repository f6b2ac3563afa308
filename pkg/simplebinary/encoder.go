// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

import (
	"encoding/binary"
	"fmt"
)

// CompileCheckNewData builds a check-new-data request. With force set the
// slave resends every value, not only the changed ones.
func CompileCheckNewData(deviceID uint8, force bool) []byte {
	return appendCRC([]byte{deviceID, MsgCheckNewData, boolByte(force)})
}

// CompileRead builds a read request for one register
func CompileRead(addr Address) []byte {
	frame := []byte{addr.DeviceID, MsgQuery}
	frame = binary.LittleEndian.AppendUint16(frame, addr.Register)
	return appendCRC(frame)
}

// CompileControl builds a 4-byte control frame: [dev, id, 0x00, crc]
func CompileControl(deviceID uint8, id byte) []byte {
	return appendCRC([]byte{deviceID, id, 0x00})
}

// CompileWrite builds a data frame carrying payload for addr. Fixed-width
// types require an exact payload length; ARRAY payloads are padded with zero
// bytes or truncated to the address length.
func CompileWrite(addr Address, payload []byte) ([]byte, error) {
	id := addr.Type.WriteID()

	frame := make([]byte, 0, 8+addr.PayloadLength())
	frame = append(frame, addr.DeviceID, id)
	frame = binary.LittleEndian.AppendUint16(frame, addr.Register)

	if addr.Type == TypeArray {
		if addr.Length == 0 {
			return nil, fmt.Errorf("array address %s has zero length", addr)
		}
		frame = binary.LittleEndian.AppendUint16(frame, addr.Length)
		data := make([]byte, addr.Length)
		copy(data, payload)
		frame = append(frame, data...)
		return appendCRC(frame), nil
	}

	width := addr.Type.Width()
	if width == 0 {
		return nil, fmt.Errorf("address %s has no wire type", addr)
	}
	if len(payload) != width {
		return nil, fmt.Errorf("payload for %s must be %d bytes, got %d", addr, width, len(payload))
	}
	frame = append(frame, payload...)
	return appendCRC(frame), nil
}

// CompileCommand encodes a command value for a channel and builds the write frame
func CompileCommand(ch *Channel, v Value) ([]byte, error) {
	payload, err := EncodeValue(ch, v)
	if err != nil {
		return nil, err
	}
	return CompileWrite(*ch.CommandAddress, payload)
}
