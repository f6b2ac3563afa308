// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value
type ValueKind int

const (
	KindInt ValueKind = iota
	KindFloat
	KindOnOff
	KindOpenClosed
	KindPercent
	KindMotion
	KindHSB
	KindRGB
	KindRGBW
	KindString
)

// Motion is a rollershutter movement command
type Motion uint8

const (
	MotionMove Motion = 0x01
	MotionStop Motion = 0x02
	MotionUp   Motion = 0x04
	MotionDown Motion = 0x08
)

func (m Motion) String() string {
	switch m {
	case MotionMove:
		return "MOVE"
	case MotionStop:
		return "STOP"
	case MotionUp:
		return "UP"
	case MotionDown:
		return "DOWN"
	}
	return fmt.Sprintf("MOTION(0x%02X)", uint8(m))
}

// Value is a decoded channel value or a command to send. Only the fields of
// the active Kind are meaningful.
type Value struct {
	Kind    ValueKind
	Int     int64
	Float   float64
	Flag    bool    // ON / OPEN
	Percent uint8   // 0-100
	Motion  Motion  // rollershutter command
	Color   [4]byte // HSB: hue lo, hue hi, sat, bri; RGB(W): r, g, b, w
	Text    string
}

// IntValue returns an integer number value
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// FloatValue returns a floating point number value
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// OnOff returns a switch value
func OnOff(on bool) Value { return Value{Kind: KindOnOff, Flag: on} }

// OpenClosed returns a contact value
func OpenClosed(open bool) Value { return Value{Kind: KindOpenClosed, Flag: open} }

// PercentValue returns a percentage, clamped to 100
func PercentValue(p uint8) Value {
	if p > 100 {
		p = 100
	}
	return Value{Kind: KindPercent, Percent: p}
}

// MotionValue returns a rollershutter movement command
func MotionValue(m Motion) Value { return Value{Kind: KindMotion, Motion: m} }

// HSBValue returns a hue/saturation/brightness color
func HSBValue(hue uint16, sat, bri uint8) Value {
	return Value{Kind: KindHSB, Color: [4]byte{byte(hue), byte(hue >> 8), sat, bri}}
}

// RGBValue returns an RGB color
func RGBValue(r, g, b uint8) Value {
	return Value{Kind: KindRGB, Color: [4]byte{r, g, b, 0}}
}

// RGBWValue returns an RGBW color
func RGBWValue(r, g, b, w uint8) Value {
	return Value{Kind: KindRGBW, Color: [4]byte{r, g, b, w}}
}

// StringValue returns a string value
func StringValue(s string) Value { return Value{Kind: KindString, Text: s} }

// Hue returns the hue of an HSB value
func (v Value) Hue() uint16 {
	return binary.LittleEndian.Uint16(v.Color[:2])
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindOnOff:
		if v.Flag {
			return "ON"
		}
		return "OFF"
	case KindOpenClosed:
		if v.Flag {
			return "OPEN"
		}
		return "CLOSED"
	case KindPercent:
		return strconv.Itoa(int(v.Percent))
	case KindMotion:
		return v.Motion.String()
	case KindHSB:
		return fmt.Sprintf("%d,%d,%d", v.Hue(), v.Color[2], v.Color[3])
	case KindRGB:
		return fmt.Sprintf("%d,%d,%d", v.Color[0], v.Color[1], v.Color[2])
	case KindRGBW:
		return fmt.Sprintf("%d,%d,%d,%d", v.Color[0], v.Color[1], v.Color[2], v.Color[3])
	case KindString:
		return v.Text
	}
	return "?"
}

// Equal reports whether two values carry the same variant and payload
func (v Value) Equal(o Value) bool {
	return v == o
}

// ParseValue parses the text form of a command for a channel. It accepts
// the same forms Value.String produces.
func ParseValue(ch *Channel, s string) (Value, error) {
	s = strings.TrimSpace(s)
	addr := ch.CommandAddress
	if addr == nil {
		addr = ch.StateAddress
	}

	switch ch.Kind {
	case ChannelNumber:
		if addr != nil && addr.Type == TypeFloat {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Value{}, fmt.Errorf("invalid number %q: %w", s, err)
			}
			return FloatValue(f), nil
		}
		if i, err := strconv.ParseInt(s, 0, 64); err == nil {
			return IntValue(i), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", s, err)
		}
		return FloatValue(f), nil

	case ChannelSwitch:
		switch strings.ToUpper(s) {
		case "ON", "1", "TRUE":
			return OnOff(true), nil
		case "OFF", "0", "FALSE":
			return OnOff(false), nil
		}
		return Value{}, fmt.Errorf("invalid switch value %q (ON/OFF)", s)

	case ChannelContact:
		switch strings.ToUpper(s) {
		case "OPEN", "1":
			return OpenClosed(true), nil
		case "CLOSED", "0":
			return OpenClosed(false), nil
		}
		return Value{}, fmt.Errorf("invalid contact value %q (OPEN/CLOSED)", s)

	case ChannelDimmer:
		switch strings.ToUpper(s) {
		case "ON":
			return OnOff(true), nil
		case "OFF":
			return OnOff(false), nil
		}
		return parsePercent(s)

	case ChannelRollershutter:
		switch strings.ToUpper(s) {
		case "MOVE":
			return MotionValue(MotionMove), nil
		case "STOP":
			return MotionValue(MotionStop), nil
		case "UP":
			return MotionValue(MotionUp), nil
		case "DOWN":
			return MotionValue(MotionDown), nil
		}
		return parsePercent(s)

	case ChannelColor:
		return parseColor(addr, s)

	case ChannelString:
		return StringValue(s), nil
	}
	return Value{}, fmt.Errorf("unsupported channel kind %s", ch.Kind)
}

func parsePercent(s string) (Value, error) {
	p, err := strconv.ParseUint(s, 10, 8)
	if err != nil || p > 100 {
		return Value{}, fmt.Errorf("invalid percent %q (0-100)", s)
	}
	return PercentValue(uint8(p)), nil
}

func parseColor(addr *Address, s string) (Value, error) {
	switch strings.ToUpper(s) {
	case "ON":
		return OnOff(true), nil
	case "OFF":
		return OnOff(false), nil
	}

	fields := strings.Split(s, ",")
	nums := make([]uint64, len(fields))
	for i, f := range fields {
		bits := 8
		if i == 0 && addr != nil && addr.Type == TypeHSB {
			bits = 16
		}
		n, err := strconv.ParseUint(strings.TrimSpace(f), 10, bits)
		if err != nil {
			return Value{}, fmt.Errorf("invalid color component %q: %w", f, err)
		}
		nums[i] = n
	}

	t := TypeRGB
	if addr != nil {
		t = addr.Type
	}
	switch {
	case t == TypeHSB && len(nums) == 3:
		if nums[0] > 360 || nums[1] > 100 || nums[2] > 100 {
			return Value{}, fmt.Errorf("HSB out of range %q (0-360,0-100,0-100)", s)
		}
		return HSBValue(uint16(nums[0]), uint8(nums[1]), uint8(nums[2])), nil
	case t == TypeRGB && len(nums) == 3:
		return RGBValue(uint8(nums[0]), uint8(nums[1]), uint8(nums[2])), nil
	case t == TypeRGBW && len(nums) == 4:
		return RGBWValue(uint8(nums[0]), uint8(nums[1]), uint8(nums[2]), uint8(nums[3])), nil
	}
	return Value{}, fmt.Errorf("invalid %s color %q", t, s)
}

// EncodeValue produces the payload bytes of a write frame for the channel's
// command address
func EncodeValue(ch *Channel, v Value) ([]byte, error) {
	addr := ch.CommandAddress
	if addr == nil {
		return nil, fmt.Errorf("channel %s is read-only", ch.ID)
	}

	mismatch := func() error {
		return fmt.Errorf("cannot encode %v value for %s channel %s", v.Kind, ch.Kind, ch.ID)
	}

	switch ch.Kind {
	case ChannelNumber:
		var i int64
		var f float64
		switch v.Kind {
		case KindInt:
			i, f = v.Int, float64(v.Int)
		case KindFloat:
			i, f = int64(v.Float), v.Float
		default:
			return nil, mismatch()
		}
		switch addr.Type {
		case TypeByte:
			return []byte{byte(i)}, nil
		case TypeWord:
			return binary.LittleEndian.AppendUint16(nil, uint16(i)), nil
		case TypeDword:
			return binary.LittleEndian.AppendUint32(nil, uint32(int32(i))), nil
		case TypeFloat:
			return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(f))), nil
		}
		return nil, fmt.Errorf("number channel %s has unsupported type %s", ch.ID, addr.Type)

	case ChannelSwitch:
		if v.Kind != KindOnOff {
			return nil, mismatch()
		}
		return []byte{boolByte(v.Flag)}, nil

	case ChannelContact:
		if v.Kind != KindOpenClosed {
			return nil, mismatch()
		}
		return []byte{boolByte(v.Flag)}, nil

	case ChannelDimmer:
		switch v.Kind {
		case KindPercent:
			return []byte{v.Percent}, nil
		case KindOnOff:
			if v.Flag {
				return []byte{100}, nil
			}
			return []byte{0}, nil
		}
		return nil, mismatch()

	case ChannelRollershutter:
		switch v.Kind {
		case KindMotion:
			return []byte{byte(v.Motion), 0}, nil
		case KindPercent:
			return []byte{byte(MotionMove), v.Percent}, nil
		}
		return nil, mismatch()

	case ChannelColor:
		switch v.Kind {
		case KindHSB, KindRGB, KindRGBW:
			if (v.Kind == KindHSB) != (addr.Type == TypeHSB) {
				return nil, mismatch()
			}
			out := v.Color
			if addr.Type == TypeRGB {
				out[3] = 0
			}
			return out[:], nil
		case KindOnOff:
			if addr.Type == TypeHSB {
				if v.Flag {
					c := HSBValue(0, 0, 100).Color
					return c[:], nil
				}
				return []byte{0, 0, 0, 0}, nil
			}
			var c byte
			if v.Flag {
				c = 0xFF
			}
			if addr.Type == TypeRGBW {
				return []byte{0, 0, 0, c}, nil
			}
			return []byte{c, c, c, 0}, nil
		}
		return nil, mismatch()

	case ChannelString:
		if v.Kind != KindString {
			return nil, mismatch()
		}
		out := make([]byte, addr.Length)
		copy(out, v.Text)
		return out, nil
	}

	return nil, fmt.Errorf("unsupported channel kind %s", ch.Kind)
}

// DecodeValue interprets the payload of a received data frame for the channel
func DecodeValue(ch *Channel, data []byte) (Value, error) {
	if len(data) == 0 {
		return Value{}, fmt.Errorf("channel %s: empty payload", ch.ID)
	}
	var t DataType
	if ch.StateAddress != nil {
		t = ch.StateAddress.Type
	}

	switch ch.Kind {
	case ChannelNumber:
		if t == TypeFloat {
			if len(data) != 4 {
				return Value{}, fmt.Errorf("channel %s: float needs 4 bytes, got %d", ch.ID, len(data))
			}
			return FloatValue(float64(math.Float32frombits(binary.LittleEndian.Uint32(data)))), nil
		}
		switch len(data) {
		case 1:
			return IntValue(int64(int8(data[0]))), nil
		case 2:
			return IntValue(int64(binary.LittleEndian.Uint16(data))), nil
		case 4:
			return IntValue(int64(int32(binary.LittleEndian.Uint32(data)))), nil
		}
		return Value{}, fmt.Errorf("channel %s: unsupported number length %d", ch.ID, len(data))

	case ChannelSwitch:
		return OnOff(data[0] == 1), nil

	case ChannelContact:
		return OpenClosed(data[0] == 1), nil

	case ChannelDimmer, ChannelRollershutter:
		if len(data) > 2 {
			return Value{}, fmt.Errorf("channel %s: percent payload longer than 2 bytes", ch.ID)
		}
		return PercentValue(data[0]), nil

	case ChannelColor:
		if len(data) != 4 {
			return Value{}, fmt.Errorf("channel %s: color needs 4 bytes, got %d", ch.ID, len(data))
		}
		switch t {
		case TypeHSB:
			return HSBValue(binary.LittleEndian.Uint16(data), data[2], data[3]), nil
		case TypeRGBW:
			return RGBWValue(data[0], data[1], data[2], data[3]), nil
		default:
			return RGBValue(data[0], data[1], data[2]), nil
		}

	case ChannelString:
		if i := bytes.IndexByte(data, 0); i >= 0 {
			data = data[:i]
		}
		return StringValue(string(data)), nil
	}

	return Value{}, fmt.Errorf("unsupported channel kind %s", ch.Kind)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindOnOff:
		return "on/off"
	case KindOpenClosed:
		return "open/closed"
	case KindPercent:
		return "percent"
	case KindMotion:
		return "motion"
	case KindHSB:
		return "hsb"
	case KindRGB:
		return "rgb"
	case KindRGBW:
		return "rgbw"
	case KindString:
		return "string"
	}
	return "unknown"
}
