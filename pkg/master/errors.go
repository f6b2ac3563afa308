// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package master

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

var (
	// ErrBusy is returned when a device already has an outstanding exchange
	ErrBusy = errors.New("exchange already outstanding")
	// ErrTimeout is returned when a device did not answer within the timeout
	ErrTimeout = errors.New("no answer within timeout")
	// ErrDisposed is returned by every operation after Dispose
	ErrDisposed = errors.New("engine disposed")
	// ErrNotConnected is returned when the transport is closed
	ErrNotConnected = errors.New("transport not connected")
	// ErrDiscarded is returned when a command is dropped for a device that
	// is not responding
	ErrDiscarded = errors.New("command discarded, device not responding")
	// ErrResendExceeded is returned when a device kept asking for resends
	ErrResendExceeded = errors.New("resend limit exceeded")
)

// RejectedError reports a control answer refusing a request
type RejectedError struct {
	DeviceID uint8
	Answer   simplebinary.MessageType
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("device %d rejected request: %s", e.DeviceID, e.Answer)
}

// WrongDeviceError reports an answer from a device other than the one addressed
type WrongDeviceError struct {
	Expected uint8
	Received uint8
}

func (e *WrongDeviceError) Error() string {
	return fmt.Sprintf("answer from device %d, expected device %d", e.Received, e.Expected)
}

// UnknownChannelIDError reports a command for a channel id that is not configured
type UnknownChannelIDError struct {
	ID string
}

func (e *UnknownChannelIDError) Error() string {
	return fmt.Sprintf("unknown channel %q", e.ID)
}
