// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

import (
	"bytes"
	"errors"
	"testing"
)

// ============================================================
// FrameBuffer Mode Tests
// ============================================================

func TestFrameBuffer_ModeContract(t *testing.T) {
	tests := []struct {
		name string
		mode BufferMode
		op   func(b *FrameBuffer) error
	}{
		{"get in fill", ModeFill, func(b *FrameBuffer) error { _, err := b.Get(); return err }},
		{"read in fill", ModeFill, func(b *FrameBuffer) error { _, err := b.Read(1); return err }},
		{"compact in fill", ModeFill, func(b *FrameBuffer) error { return b.Compact() }},
		{"rewind in fill", ModeFill, func(b *FrameBuffer) error { return b.Rewind() }},
		{"put in drain", ModeDrain, func(b *FrameBuffer) error { return b.Put([]byte{1}) }},
		{"flip in drain", ModeDrain, func(b *FrameBuffer) error { return b.Flip() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewFrameBuffer(16)
			_ = b.Put([]byte{1, 2, 3})
			if tt.mode == ModeDrain {
				_ = b.Flip()
			}
			err := tt.op(b)
			var modeErr *ModeError
			if !errors.As(err, &modeErr) {
				t.Fatalf("expected ModeError, got %v", err)
			}
			if modeErr.Mode != tt.mode {
				t.Errorf("ModeError.Mode = %s, want %s", modeErr.Mode, tt.mode)
			}
		})
	}
}

func TestFrameBuffer_FlipAndRead(t *testing.T) {
	b := NewFrameBuffer(16)
	if err := b.Put([]byte{0x01, 0x2C, 0x01, 0x78, 0x56, 0x34, 0x12}); err != nil {
		t.Fatal(err)
	}
	if err := b.Flip(); err != nil {
		t.Fatal(err)
	}

	v, _ := b.Get()
	w, _ := b.GetUint16()
	d, _ := b.GetUint32()
	if v != 0x01 || w != 300 || d != 0x12345678 {
		t.Errorf("got %02X %d %08X", v, w, d)
	}
	if _, err := b.Get(); !errors.Is(err, ErrUnderflow) {
		t.Errorf("expected ErrUnderflow, got %v", err)
	}
}

func TestFrameBuffer_CompactKeepsTail(t *testing.T) {
	b := NewFrameBuffer(16)
	_ = b.Put([]byte{1, 2, 3, 4, 5})
	_ = b.Flip()
	_, _ = b.Read(2)
	if err := b.Compact(); err != nil {
		t.Fatal(err)
	}
	if b.Mode() != ModeFill {
		t.Errorf("expected fill mode after compact")
	}
	_ = b.Put([]byte{6})
	if got := b.Bytes(); !bytes.Equal(got, []byte{3, 4, 5, 6}) {
		t.Errorf("got % X", got)
	}
}

func TestFrameBuffer_Rewind(t *testing.T) {
	b := NewFrameBuffer(16)
	_ = b.Put([]byte{9, 8, 7})
	_ = b.Flip()
	_, _ = b.Read(3)
	if err := b.Rewind(); err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Get(); v != 9 {
		t.Errorf("after rewind got %d, want 9", v)
	}
}

func TestFrameBuffer_OverrunLeavesContents(t *testing.T) {
	b := NewFrameBuffer(8)
	_ = b.Put([]byte{1, 2, 3, 4, 5})

	err := b.Put([]byte{6, 7, 8, 9})
	if !errors.Is(err, ErrOverrun) {
		t.Fatalf("expected ErrOverrun, got %v", err)
	}
	if got := b.Bytes(); !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("buffer corrupted by overrun: % X", got)
	}
	if err := b.Put([]byte{6, 7}); err != nil {
		t.Errorf("put within capacity failed: %v", err)
	}
}

func TestFrameBuffer_PutFillsExactly(t *testing.T) {
	b := NewFrameBuffer(8)
	if err := b.Put([]byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatalf("put of cap bytes failed: %v", err)
	}
	if b.Len() != 8 {
		t.Errorf("len = %d, want 8", b.Len())
	}
	if err := b.Put([]byte{9}); !errors.Is(err, ErrOverrun) {
		t.Errorf("expected ErrOverrun on full buffer, got %v", err)
	}
}

func TestFrameBuffer_ClearAndReset(t *testing.T) {
	b := NewFrameBuffer(8)
	_ = b.Put([]byte{1, 2})
	_ = b.Flip()
	b.Clear()
	if b.Mode() != ModeFill || b.Len() != 0 {
		t.Errorf("Clear: mode=%s len=%d", b.Mode(), b.Len())
	}
	_ = b.Put([]byte{3})
	_ = b.Flip()
	b.Reset()
	if b.Mode() != ModeFill || b.Len() != 0 {
		t.Errorf("Reset: mode=%s len=%d", b.Mode(), b.Len())
	}
}

// ============================================================
// Resync Tests
// ============================================================

func TestResync_ShortBufferCleared(t *testing.T) {
	b := NewFrameBuffer(DefaultBufferSize)
	_ = b.Put([]byte{0x01, 0x42, 0x00, 0x00})
	_ = b.Flip()

	dropped, err := Resync(b)
	if err != nil {
		t.Fatal(err)
	}
	if dropped != 4 || b.Len() != 0 {
		t.Errorf("dropped=%d len=%d, want 4 and 0", dropped, b.Len())
	}
}

func TestResync_DropsOneByte(t *testing.T) {
	b := NewFrameBuffer(DefaultBufferSize)
	_ = b.Put([]byte{0x55, 0x01, 0xE0, 0x00, 0x28})
	_ = b.Flip()

	dropped, err := Resync(b)
	if err != nil {
		t.Fatal(err)
	}
	if dropped != 1 {
		t.Errorf("dropped=%d, want 1", dropped)
	}
	if got := b.Bytes(); !bytes.Equal(got, []byte{0x01, 0xE0, 0x00, 0x28}) {
		t.Errorf("got % X", got)
	}
	if b.Mode() != ModeFill {
		t.Errorf("expected fill mode")
	}
}
