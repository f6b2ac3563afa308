// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// BufferMode is the current access mode of a FrameBuffer
type BufferMode int

const (
	// ModeFill appends received bytes at the tail
	ModeFill BufferMode = iota
	// ModeDrain consumes bytes from the head
	ModeDrain
)

func (m BufferMode) String() string {
	if m == ModeDrain {
		return "drain"
	}
	return "fill"
}

var (
	// ErrOverrun is returned by Put when the bytes do not fit. The buffer is left untouched.
	ErrOverrun = errors.New("frame buffer overrun")
	// ErrUnderflow is returned when reading past the buffered bytes
	ErrUnderflow = errors.New("frame buffer underflow")
)

// ModeError reports an operation invoked in the wrong buffer mode.
// The buffer must be reset after this error.
type ModeError struct {
	Op   string
	Mode BufferMode
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("frame buffer: %s not allowed in %s mode", e.Op, e.Mode)
}

// FrameBuffer is a fixed-capacity byte accumulator with explicit
// fill and drain modes
type FrameBuffer struct {
	data  []byte
	pos   int // write position in fill mode, read position in drain mode
	limit int // number of valid bytes in drain mode
	mode  BufferMode
}

// NewFrameBuffer creates an empty buffer in fill mode
func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity < MinFrameSize {
		capacity = DefaultBufferSize
	}
	return &FrameBuffer{data: make([]byte, capacity)}
}

// Cap returns the buffer capacity
func (b *FrameBuffer) Cap() int {
	return len(b.data)
}

// Mode returns the current mode
func (b *FrameBuffer) Mode() BufferMode {
	return b.mode
}

// Len returns the number of buffered bytes regardless of read position
func (b *FrameBuffer) Len() int {
	if b.mode == ModeDrain {
		return b.limit
	}
	return b.pos
}

// Remaining returns the unread bytes in drain mode, or the buffered bytes in fill mode
func (b *FrameBuffer) Remaining() int {
	if b.mode == ModeDrain {
		return b.limit - b.pos
	}
	return b.pos
}

// Position returns the read position in drain mode
func (b *FrameBuffer) Position() int {
	if b.mode == ModeDrain {
		return b.pos
	}
	return 0
}

// Put appends bytes at the tail
func (b *FrameBuffer) Put(p []byte) error {
	if b.mode != ModeFill {
		return &ModeError{Op: "put", Mode: b.mode}
	}
	if b.pos+len(p) > len(b.data) {
		return ErrOverrun
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return nil
}

// Flip switches from fill to drain, positioned at the first buffered byte
func (b *FrameBuffer) Flip() error {
	if b.mode != ModeFill {
		return &ModeError{Op: "flip", Mode: b.mode}
	}
	b.limit = b.pos
	b.pos = 0
	b.mode = ModeDrain
	return nil
}

// Compact discards consumed bytes, moves the unread tail to the head and
// switches back to fill
func (b *FrameBuffer) Compact() error {
	if b.mode != ModeDrain {
		return &ModeError{Op: "compact", Mode: b.mode}
	}
	n := copy(b.data, b.data[b.pos:b.limit])
	b.pos = n
	b.limit = 0
	b.mode = ModeFill
	return nil
}

// Rewind moves the read position back to the first buffered byte
func (b *FrameBuffer) Rewind() error {
	if b.mode != ModeDrain {
		return &ModeError{Op: "rewind", Mode: b.mode}
	}
	b.pos = 0
	return nil
}

// Clear empties the buffer and puts it in fill mode
func (b *FrameBuffer) Clear() {
	b.pos = 0
	b.limit = 0
	b.mode = ModeFill
}

// Reset reinitializes the buffer after a mode error
func (b *FrameBuffer) Reset() {
	b.Clear()
	for i := range b.data {
		b.data[i] = 0
	}
}

// Get consumes one byte
func (b *FrameBuffer) Get() (byte, error) {
	if b.mode != ModeDrain {
		return 0, &ModeError{Op: "get", Mode: b.mode}
	}
	if b.pos >= b.limit {
		return 0, ErrUnderflow
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

// GetUint16 consumes a little-endian 16-bit value
func (b *FrameBuffer) GetUint16() (uint16, error) {
	p, err := b.Read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

// GetUint32 consumes a little-endian 32-bit value
func (b *FrameBuffer) GetUint32() (uint32, error) {
	p, err := b.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

// Read consumes n bytes and returns a copy of them
func (b *FrameBuffer) Read(n int) ([]byte, error) {
	if b.mode != ModeDrain {
		return nil, &ModeError{Op: "read", Mode: b.mode}
	}
	if n < 0 || b.pos+n > b.limit {
		return nil, ErrUnderflow
	}
	out := make([]byte, n)
	copy(out, b.data[b.pos:b.pos+n])
	b.pos += n
	return out, nil
}

// Peek returns a copy of the n bytes starting at offset from the head,
// without moving the read position
func (b *FrameBuffer) Peek(offset, n int) ([]byte, error) {
	if b.mode != ModeDrain {
		return nil, &ModeError{Op: "peek", Mode: b.mode}
	}
	if offset < 0 || n < 0 || offset+n > b.limit {
		return nil, ErrUnderflow
	}
	out := make([]byte, n)
	copy(out, b.data[offset:offset+n])
	return out, nil
}

// Bytes returns a copy of all buffered bytes
func (b *FrameBuffer) Bytes() []byte {
	out := make([]byte, b.Len())
	copy(out, b.data)
	return out
}

func (b *FrameBuffer) String() string {
	return fmt.Sprintf("FrameBuffer{mode=%s pos=%d len=%d cap=%d % X}",
		b.mode, b.pos, b.Len(), len(b.data), b.Bytes())
}
