// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

import (
	"errors"
)

// StreamDecoder accumulates received bytes in a FrameBuffer and decompiles
// every complete frame, applying the resynchronization rules:
//
//   - CRC mismatch and unknown channel: the frame is discarded
//   - unknown message id: the buffer is cleared below 5 bytes, otherwise
//     one leading byte is dropped and decoding retried
//   - buffer mode violation: the buffer is reinitialized
//
// A StreamDecoder is not safe for concurrent use.
type StreamDecoder struct {
	buf      *FrameBuffer
	channels ChannelResolver
	stats    *Statistics
}

// NewStreamDecoder creates a decoder with a buffer of the given capacity.
// Data frames are resolved through channels unless it is nil.
func NewStreamDecoder(capacity int, channels ChannelResolver) *StreamDecoder {
	return &StreamDecoder{
		buf:      NewFrameBuffer(capacity),
		channels: channels,
		stats:    NewStatistics(),
	}
}

// Statistics returns the decoder's counters
func (d *StreamDecoder) Statistics() *Statistics {
	return d.stats
}

// Buffered returns a copy of the bytes awaiting a complete frame
func (d *StreamDecoder) Buffered() []byte {
	return d.buf.Bytes()
}

// Reset clears all buffered bytes
func (d *StreamDecoder) Reset() {
	d.buf.Clear()
}

// Feed appends p and decodes all complete frames. fn is called once per
// decode outcome with either a message or an error; returning false stops
// decoding and clears the buffer.
//
// Feed returns ErrOverrun when p did not fit (p is dropped, buffered bytes
// are kept) and *ModeError when the buffer had to be reinitialized.
func (d *StreamDecoder) Feed(p []byte, fn func(*Message, error) bool) error {
	if err := d.buf.Put(p); err != nil {
		if errors.Is(err, ErrOverrun) {
			d.stats.Overruns++
			d.stats.DroppedBytes += uint64(len(p))
			return err
		}
		d.buf.Reset()
		return err
	}

	for d.buf.Len() >= MinFrameSize {
		if err := d.buf.Flip(); err != nil {
			d.buf.Reset()
			return err
		}

		msg, decErr := Decompile(d.buf, d.channels)
		if msg == nil && decErr == nil {
			// Incomplete, wait for more bytes
			return d.restore(d.buf.Compact())
		}
		d.stats.Update(msg, decErr)

		var modeErr *ModeError
		var msgErr *UnknownMessageError
		var longErr *FrameTooLongError
		switch {
		case errors.As(decErr, &modeErr):
			d.buf.Reset()
			fn(nil, decErr)
			return decErr

		case errors.As(decErr, &msgErr), errors.As(decErr, &longErr):
			dropped, err := Resync(d.buf)
			d.stats.DroppedBytes += uint64(dropped)
			if err != nil {
				return d.restore(err)
			}

		case errors.Is(decErr, ErrUnderflow):
			err := d.buf.Rewind()
			if err == nil {
				err = d.buf.Compact()
			}
			fn(nil, decErr)
			return d.restore(err)

		default:
			// Success, CRC mismatch or unknown channel: the frame is consumed
			if err := d.buf.Compact(); err != nil {
				return d.restore(err)
			}
		}

		if !fn(msg, decErr) {
			d.buf.Clear()
			return nil
		}
	}
	return nil
}

// restore reinitializes the buffer when err is a buffer contract violation
func (d *StreamDecoder) restore(err error) error {
	if err != nil {
		d.buf.Reset()
	}
	return err
}
