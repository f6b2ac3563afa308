// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

import "fmt"

// InvalidCRCError is returned when a complete frame fails its checksum.
// The frame has been consumed from the buffer.
type InvalidCRCError struct {
	DeviceID uint8
	Received byte
	Expected byte
}

func (e *InvalidCRCError) Error() string {
	return fmt.Sprintf("CRC mismatch from device %d: received 0x%02X, expected 0x%02X",
		e.DeviceID, e.Received, e.Expected)
}

// UnknownChannelError is returned for a valid data frame whose address is
// not bound to any channel. The frame has been consumed from the buffer.
type UnknownChannelError struct {
	DeviceID uint8
	Register uint16
	Frame    []byte // the consumed frame, nil when not decoded from a buffer
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("no channel configured for device %d register %d", e.DeviceID, e.Register)
}

// UnknownMessageError is returned for an unrecognized message id. Nothing
// past the header has been consumed; the caller must resynchronize.
type UnknownMessageError struct {
	DeviceID uint8
	ID       byte
}

func (e *UnknownMessageError) Error() string {
	return fmt.Sprintf("unknown message id 0x%02X from device %d", e.ID, e.DeviceID)
}

// FrameTooLongError is returned when an ARRAY frame declares a length that
// can never fit the receive buffer. The caller must resynchronize.
type FrameTooLongError struct {
	DeviceID uint8
	Length   int
	Capacity int
}

func (e *FrameTooLongError) Error() string {
	return fmt.Sprintf("frame from device %d declares %d bytes, buffer holds %d",
		e.DeviceID, e.Length, e.Capacity)
}
