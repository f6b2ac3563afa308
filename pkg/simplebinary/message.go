// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

import "time"

// Message is a decompiled, CRC-valid frame
type Message struct {
	DeviceID uint8
	ID       byte
	Type     MessageType
	Register uint16   // data and query frames
	Data     []byte   // data frame payload, or the force flag of check-new-data
	Channel  *Channel // resolved channel of a data frame, nil when not resolved
	Raw      []byte   // complete frame including the CRC byte

	timestamp time.Time
}

// Timestamp returns when the message was decompiled
func (m *Message) Timestamp() time.Time {
	return m.timestamp
}

// Value decodes the data payload through the resolved channel
func (m *Message) Value() (Value, error) {
	if m.Channel == nil {
		return Value{}, &UnknownChannelError{DeviceID: m.DeviceID, Register: m.Register}
	}
	return DecodeValue(m.Channel, m.Data)
}

// Force reports the force flag of a check-new-data request
func (m *Message) Force() bool {
	return m.Type == TypeCheckNewData && len(m.Data) > 0 && m.Data[0] != 0
}
