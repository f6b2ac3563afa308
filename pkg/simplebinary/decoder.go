// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Decompile decodes the frame at the head of buf, which must be in drain mode.
//
// It returns (nil, nil) when more bytes are needed; the buffer is rewound.
// On success, and on *InvalidCRCError or *UnknownChannelError, the frame has
// been consumed and the caller compacts. On *UnknownMessageError and
// *FrameTooLongError only the header was read and the caller resynchronizes.
//
// Data frames are resolved through channels unless channels is nil.
func Decompile(buf *FrameBuffer, channels ChannelResolver) (*Message, error) {
	if err := buf.Rewind(); err != nil {
		return nil, err
	}
	if buf.Remaining() < 2 {
		return nil, nil
	}

	header, err := buf.Peek(0, 2)
	if err != nil {
		return nil, err
	}
	dev, id := header[0], header[1]

	total := frameLength(id)
	if id == MsgDataArray {
		if buf.Remaining() < 6 {
			return nil, nil
		}
		lenField, err := buf.Peek(4, 2)
		if err != nil {
			return nil, err
		}
		total = 7 + int(binary.LittleEndian.Uint16(lenField))
		if total > buf.Cap() {
			return nil, &FrameTooLongError{DeviceID: dev, Length: total, Capacity: buf.Cap()}
		}
	}
	if total == 0 {
		if _, err := buf.Read(2); err != nil {
			return nil, err
		}
		return nil, &UnknownMessageError{DeviceID: dev, ID: id}
	}

	if buf.Remaining() < total {
		return nil, buf.Rewind()
	}

	raw, err := buf.Read(total)
	if err != nil {
		return nil, fmt.Errorf("reading %d byte frame: %w", total, err)
	}

	if crc, expected := raw[total-1], CRC8(raw[:total-1]); crc != expected {
		return nil, &InvalidCRCError{DeviceID: dev, Received: crc, Expected: expected}
	}

	msg := &Message{
		DeviceID:  dev,
		ID:        id,
		Type:      MessageTypeOf(id),
		Raw:       raw,
		timestamp: time.Now(),
	}

	switch msg.Type {
	case TypeCheckNewData:
		msg.Data = raw[2:3]
	case TypeQuery:
		msg.Register = binary.LittleEndian.Uint16(raw[2:4])
	case TypeData:
		msg.Register = binary.LittleEndian.Uint16(raw[2:4])
		if id == MsgDataArray {
			msg.Data = raw[6 : total-1]
		} else {
			msg.Data = raw[4 : total-1]
		}
		if channels != nil {
			msg.Channel = channels.ChannelAt(dev, msg.Register)
			if msg.Channel == nil {
				return nil, &UnknownChannelError{DeviceID: dev, Register: msg.Register, Frame: raw}
			}
		}
	}

	return msg, nil
}

// DecompileBytes decodes a single complete frame held in a byte slice
func DecompileBytes(frame []byte, channels ChannelResolver) (*Message, error) {
	buf := NewFrameBuffer(len(frame) + 1)
	if err := buf.Put(frame); err != nil {
		return nil, err
	}
	if err := buf.Flip(); err != nil {
		return nil, err
	}
	msg, err := Decompile(buf, channels)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("incomplete frame: % X", frame)
	}
	return msg, nil
}

// Resync discards bytes after an unknown message id. With fewer than 5
// bytes buffered the buffer is cleared; otherwise exactly the leading byte is
// dropped. It returns the number of bytes discarded and leaves the buffer in
// fill mode.
func Resync(buf *FrameBuffer) (int, error) {
	n := buf.Len()
	if n < 5 {
		buf.Clear()
		return n, nil
	}
	if buf.Mode() == ModeFill {
		if err := buf.Flip(); err != nil {
			return 0, err
		}
	}
	if err := buf.Rewind(); err != nil {
		return 0, err
	}
	if _, err := buf.Get(); err != nil {
		return 0, err
	}
	return 1, buf.Compact()
}
