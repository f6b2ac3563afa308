// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxArrayLength is the largest ARRAY payload that fits a default-sized receive buffer
const MaxArrayLength = DefaultBufferSize - 8

// Address identifies one register on one slave device
type Address struct {
	DeviceID uint8
	Register uint16
	Type     DataType
	Length   uint16 // payload length, only meaningful for ARRAY
}

// NewAddress creates an address for a fixed-width type
func NewAddress(deviceID uint8, register uint16, t DataType) Address {
	return Address{DeviceID: deviceID, Register: register, Type: t, Length: uint16(t.Width())}
}

// NewArrayAddress creates an ARRAY address of the given length
func NewArrayAddress(deviceID uint8, register uint16, length uint16) Address {
	return Address{DeviceID: deviceID, Register: register, Type: TypeArray, Length: length}
}

// PayloadLength returns the number of value bytes carried by a data frame for this address
func (a Address) PayloadLength() int {
	if a.Type == TypeArray {
		return int(a.Length)
	}
	return a.Type.Width()
}

func (a Address) String() string {
	switch a.Type {
	case TypeArray:
		return fmt.Sprintf("%d:%d:%d", a.DeviceID, a.Register, a.Length)
	default:
		return fmt.Sprintf("%d:%d:%s", a.DeviceID, a.Register, a.Type)
	}
}

// ParseAddress parses a channel address string. The accepted format depends on
// the channel kind:
//
//	number         <device>:<register>:<byte|word|dword|float>
//	color          <device>:<register>:<hsb|rgb|rgbw>
//	string         <device>:<register>:<length>
//	switch/contact <device>:<register>           (byte)
//	dimmer         <device>:<register>           (byte)
//	rollershutter  <device>:<register>           (word)
func ParseAddress(kind ChannelKind, s string) (Address, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")

	want := 2
	switch kind {
	case ChannelNumber, ChannelColor, ChannelString:
		want = 3
	}
	if len(parts) != want {
		return Address{}, fmt.Errorf("unsupported address %q for %s channel: expected %d fields", s, kind, want)
	}

	dev, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return Address{}, fmt.Errorf("invalid device id in address %q: %w", s, err)
	}
	reg, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("invalid register in address %q: %w", s, err)
	}

	switch kind {
	case ChannelNumber:
		t, err := parseDataType(parts[2])
		if err != nil || t.Width() == 0 || t >= TypeHSB {
			return Address{}, fmt.Errorf("unsupported number type %q in address %q", parts[2], s)
		}
		return NewAddress(uint8(dev), uint16(reg), t), nil

	case ChannelColor:
		t, err := parseDataType(parts[2])
		if err != nil || t < TypeHSB {
			return Address{}, fmt.Errorf("unsupported color model %q in address %q", parts[2], s)
		}
		return NewAddress(uint8(dev), uint16(reg), t), nil

	case ChannelString:
		n, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil || n == 0 || n > MaxArrayLength {
			return Address{}, fmt.Errorf("invalid length %q in address %q (1-%d)", parts[2], s, MaxArrayLength)
		}
		return NewArrayAddress(uint8(dev), uint16(reg), uint16(n)), nil

	case ChannelRollershutter:
		return NewAddress(uint8(dev), uint16(reg), TypeWord), nil

	case ChannelSwitch, ChannelContact, ChannelDimmer:
		return NewAddress(uint8(dev), uint16(reg), TypeByte), nil
	}

	return Address{}, fmt.Errorf("unsupported channel kind %d", kind)
}

func parseDataType(s string) (DataType, error) {
	switch strings.ToLower(s) {
	case "byte":
		return TypeByte, nil
	case "word":
		return TypeWord, nil
	case "dword":
		return TypeDword, nil
	case "float":
		return TypeFloat, nil
	case "hsb":
		return TypeHSB, nil
	case "rgb":
		return TypeRGB, nil
	case "rgbw":
		return TypeRGBW, nil
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}
