// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

import (
	"bytes"
	"errors"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

func mustChannel(t *testing.T, id string, kind ChannelKind, addr string) *Channel {
	t.Helper()
	ch, err := NewChannel(id, kind, addr, addr)
	if err != nil {
		t.Fatalf("NewChannel(%s): %v", id, err)
	}
	return ch
}

func testChannels(t *testing.T) *ChannelSet {
	t.Helper()
	set, err := NewChannelSet(
		mustChannel(t, "byte", ChannelNumber, "1:10:byte"),
		mustChannel(t, "word", ChannelNumber, "1:11:word"),
		mustChannel(t, "dword", ChannelNumber, "1:12:dword"),
		mustChannel(t, "float", ChannelNumber, "1:13:float"),
		mustChannel(t, "hsb", ChannelColor, "1:20:hsb"),
		mustChannel(t, "rgb", ChannelColor, "1:21:rgb"),
		mustChannel(t, "rgbw", ChannelColor, "1:22:rgbw"),
		mustChannel(t, "text", ChannelString, "1:30:8"),
		mustChannel(t, "switch", ChannelSwitch, "1:40"),
		mustChannel(t, "contact", ChannelContact, "1:41"),
		mustChannel(t, "dimmer", ChannelDimmer, "1:42"),
		mustChannel(t, "shutter", ChannelRollershutter, "1:43"),
	)
	if err != nil {
		t.Fatalf("NewChannelSet: %v", err)
	}
	return set
}

// ============================================================
// CRC Tests
// ============================================================

func TestCRC8_Empty(t *testing.T) {
	if crc := CRC8(nil); crc != 0 {
		t.Errorf("CRC of empty data should be 0, got 0x%02X", crc)
	}
}

func TestCRC8_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{"ASCII '123456789'", []byte("123456789"), 0xF4},
		{"word write header", []byte{0x01, 0xDB, 0x0A, 0x00, 0x2C, 0x01}, 0x32},
		{"OK control", []byte{0x01, 0xE0, 0x00}, 0x28},
		{"RESEND control", []byte{0x01, 0xE1, 0x00}, 0x3D},
		{"NODATA control", []byte{0x01, 0xE2, 0x00}, 0x02},
		{"check new data", []byte{0x01, 0xD0, 0x00}, 0xD1},
		{"check new data forced", []byte{0x01, 0xD0, 0x01}, 0xD6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if crc := CRC8(tt.data); crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%02X, got 0x%02X", tt.expected, crc)
			}
		})
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestCompileWrite_WordExample(t *testing.T) {
	addr := NewAddress(1, 10, TypeWord)
	frame, err := CompileWrite(addr, []byte{0x2C, 0x01})
	if err != nil {
		t.Fatalf("CompileWrite: %v", err)
	}
	expected := []byte{0x01, 0xDB, 0x0A, 0x00, 0x2C, 0x01, 0x32}
	if !bytes.Equal(frame, expected) {
		t.Errorf("frame mismatch:\n  got  % X\n  want % X", frame, expected)
	}
}

func TestCompileCommand_NumberWord300(t *testing.T) {
	ch := mustChannel(t, "n", ChannelNumber, "1:10:word")
	frame, err := CompileCommand(ch, IntValue(300))
	if err != nil {
		t.Fatalf("CompileCommand: %v", err)
	}
	expected := []byte{0x01, 0xDB, 0x0A, 0x00, 0x2C, 0x01, 0x32}
	if !bytes.Equal(frame, expected) {
		t.Errorf("frame mismatch:\n  got  % X\n  want % X", frame, expected)
	}
}

func TestCompileRequests(t *testing.T) {
	tests := []struct {
		name     string
		frame    []byte
		expected []byte
	}{
		{"check new data", CompileCheckNewData(1, false), []byte{0x01, 0xD0, 0x00, 0xD1}},
		{"check new data forced", CompileCheckNewData(1, true), []byte{0x01, 0xD0, 0x01, 0xD6}},
		{"read", CompileRead(NewAddress(1, 10, TypeByte)), []byte{0x01, 0xD1, 0x0A, 0x00, 0xD0}},
		{"OK", CompileControl(1, MsgOK), []byte{0x01, 0xE0, 0x00, 0x28}},
		{"RESEND", CompileControl(1, MsgResend), []byte{0x01, 0xE1, 0x00, 0x3D}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Equal(tt.frame, tt.expected) {
				t.Errorf("got % X, want % X", tt.frame, tt.expected)
			}
		})
	}
}

func TestCompileWrite_FrameShapes(t *testing.T) {
	tests := []struct {
		name    string
		addr    Address
		payload []byte
		id      byte
		length  int
	}{
		{"byte", NewAddress(1, 1, TypeByte), []byte{1}, MsgDataByte, 6},
		{"word", NewAddress(1, 1, TypeWord), []byte{1, 2}, MsgDataWord, 7},
		{"dword", NewAddress(1, 1, TypeDword), []byte{1, 2, 3, 4}, MsgDataDword, 9},
		{"float", NewAddress(1, 1, TypeFloat), []byte{1, 2, 3, 4}, MsgDataDword, 9},
		{"hsb", NewAddress(1, 1, TypeHSB), []byte{1, 2, 3, 4}, MsgDataColor, 9},
		{"rgb", NewAddress(1, 1, TypeRGB), []byte{1, 2, 3, 0}, MsgDataColor, 9},
		{"rgbw", NewAddress(1, 1, TypeRGBW), []byte{1, 2, 3, 4}, MsgDataColor, 9},
		{"array", NewArrayAddress(1, 1, 5), []byte("abc"), MsgDataArray, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := CompileWrite(tt.addr, tt.payload)
			if err != nil {
				t.Fatalf("CompileWrite: %v", err)
			}
			if frame[1] != tt.id {
				t.Errorf("message id: got 0x%02X, want 0x%02X", frame[1], tt.id)
			}
			if len(frame) != tt.length {
				t.Errorf("length: got %d, want %d", len(frame), tt.length)
			}
			if frame[len(frame)-1] != CRC8(frame[:len(frame)-1]) {
				t.Error("trailing byte is not the CRC of the frame")
			}
		})
	}
}

func TestCompileWrite_WrongPayloadLength(t *testing.T) {
	if _, err := CompileWrite(NewAddress(1, 1, TypeWord), []byte{1}); err == nil {
		t.Error("expected error for short WORD payload")
	}
}

func TestCompileWrite_ArrayPadding(t *testing.T) {
	frame, err := CompileWrite(NewArrayAddress(2, 0x0102, 4), []byte("ab"))
	if err != nil {
		t.Fatalf("CompileWrite: %v", err)
	}
	expected := []byte{0x02, 0xDE, 0x02, 0x01, 0x04, 0x00, 'a', 'b', 0, 0}
	if !bytes.Equal(frame[:len(frame)-1], expected) {
		t.Errorf("got % X, want % X", frame[:len(frame)-1], expected)
	}
}

func TestCompileCommand_Encodings(t *testing.T) {
	set := testChannels(t)
	tests := []struct {
		channel string
		value   Value
		payload []byte
	}{
		{"switch", OnOff(true), []byte{1}},
		{"switch", OnOff(false), []byte{0}},
		{"contact", OpenClosed(true), []byte{1}},
		{"dimmer", OnOff(true), []byte{100}},
		{"dimmer", PercentValue(42), []byte{42}},
		{"shutter", MotionValue(MotionUp), []byte{0x04, 0x00}},
		{"shutter", MotionValue(MotionDown), []byte{0x08, 0x00}},
		{"shutter", MotionValue(MotionStop), []byte{0x02, 0x00}},
		{"shutter", PercentValue(30), []byte{0x01, 30}},
		{"byte", IntValue(-1), []byte{0xFF}},
		{"float", FloatValue(1.0), []byte{0x00, 0x00, 0x80, 0x3F}},
		{"rgb", RGBValue(1, 2, 3), []byte{1, 2, 3, 0}},
		{"hsb", HSBValue(300, 50, 75), []byte{0x2C, 0x01, 50, 75}},
		{"hsb", OnOff(true), []byte{0, 0, 0, 100}},
		{"hsb", OnOff(false), []byte{0, 0, 0, 0}},
		{"rgb", OnOff(true), []byte{0xFF, 0xFF, 0xFF, 0}},
		{"rgb", OnOff(false), []byte{0, 0, 0, 0}},
		{"rgbw", OnOff(true), []byte{0, 0, 0, 0xFF}},
		{"rgbw", OnOff(false), []byte{0, 0, 0, 0}},
		{"text", StringValue("hi"), []byte{'h', 'i', 0, 0, 0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.channel+"="+tt.value.String(), func(t *testing.T) {
			frame, err := CompileCommand(set.Get(tt.channel), tt.value)
			if err != nil {
				t.Fatalf("CompileCommand: %v", err)
			}
			start := 4
			if frame[1] == MsgDataArray {
				start = 6
			}
			got := frame[start : len(frame)-1]
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload: got % X, want % X", got, tt.payload)
			}
		})
	}
}

func TestCompileCommand_KindMismatch(t *testing.T) {
	set := testChannels(t)
	if _, err := CompileCommand(set.Get("switch"), PercentValue(10)); err == nil {
		t.Error("expected error encoding percent for switch")
	}
	ro, _ := NewChannel("ro", ChannelSwitch, "1:50", "")
	if _, err := CompileCommand(ro, OnOff(true)); err == nil {
		t.Error("expected error for read-only channel")
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecompile_RoundTrip(t *testing.T) {
	set := testChannels(t)
	tests := []struct {
		channel string
		value   Value
	}{
		{"byte", IntValue(-5)},
		{"word", IntValue(300)},
		{"dword", IntValue(-100000)},
		{"float", FloatValue(1.5)},
		{"hsb", HSBValue(300, 50, 75)},
		{"rgb", RGBValue(10, 20, 30)},
		{"rgbw", RGBWValue(10, 20, 30, 40)},
		{"text", StringValue("hello")},
		{"switch", OnOff(true)},
		{"contact", OpenClosed(false)},
		{"dimmer", PercentValue(42)},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			ch := set.Get(tt.channel)
			frame, err := CompileCommand(ch, tt.value)
			if err != nil {
				t.Fatalf("CompileCommand: %v", err)
			}
			msg, err := DecompileBytes(frame, set)
			if err != nil {
				t.Fatalf("DecompileBytes: %v", err)
			}
			if msg.Channel != ch {
				t.Fatalf("resolved channel %v, want %v", msg.Channel, ch)
			}
			if msg.Type != TypeData {
				t.Errorf("type: got %s, want DATA", msg.Type)
			}
			got, err := msg.Value()
			if err != nil {
				t.Fatalf("Value: %v", err)
			}
			if !got.Equal(tt.value) {
				t.Errorf("value: got %v (%v), want %v (%v)", got, got.Kind, tt.value, tt.value.Kind)
			}
		})
	}
}

func TestDecompile_ControlFrames(t *testing.T) {
	tests := []struct {
		id   byte
		want MessageType
	}{
		{MsgOK, TypeOK},
		{MsgResend, TypeResend},
		{MsgNoData, TypeNoData},
		{MsgUnknownData, TypeUnknownData},
		{MsgUnknownAddress, TypeUnknownAddress},
		{MsgSavingError, TypeSavingError},
		{MsgHi, TypeHi},
		{MsgWantEverything, TypeWantEverything},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			msg, err := DecompileBytes(CompileControl(7, tt.id), nil)
			if err != nil {
				t.Fatalf("DecompileBytes: %v", err)
			}
			if msg.Type != tt.want || msg.DeviceID != 7 {
				t.Errorf("got dev=%d type=%s, want dev=7 type=%s", msg.DeviceID, msg.Type, tt.want)
			}
			if !msg.Type.IsControl() {
				t.Error("expected control type")
			}
		})
	}
}

func TestDecompile_Requests(t *testing.T) {
	msg, err := DecompileBytes(CompileCheckNewData(3, true), nil)
	if err != nil {
		t.Fatalf("check new data: %v", err)
	}
	if msg.Type != TypeCheckNewData || !msg.Force() {
		t.Errorf("got type=%s force=%v", msg.Type, msg.Force())
	}

	msg, err = DecompileBytes(CompileRead(NewAddress(3, 513, TypeWord)), nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != TypeQuery || msg.Register != 513 {
		t.Errorf("got type=%s register=%d", msg.Type, msg.Register)
	}
}

func TestDecompile_SingleBitCorruption(t *testing.T) {
	set := testChannels(t)
	frames := [][]byte{
		CompileControl(1, MsgOK),
		CompileCheckNewData(1, false),
		CompileRead(NewAddress(1, 10, TypeByte)),
	}
	for _, name := range []string{"byte", "word", "dword", "hsb"} {
		frame, err := CompileCommand(set.Get(name), Value{Kind: KindInt, Int: 7, Color: [4]byte{1, 2, 3, 4}})
		if err != nil {
			// color channels need a color value
			frame, err = CompileCommand(set.Get(name), HSBValue(1, 2, 3))
		}
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		frames = append(frames, frame)
	}

	for _, frame := range frames {
		for i := range frame {
			if i == 1 {
				// the message id selects the frame shape
				continue
			}
			for bit := 0; bit < 8; bit++ {
				corrupt := append([]byte(nil), frame...)
				corrupt[i] ^= 1 << bit

				_, err := DecompileBytes(corrupt, set)
				var crcErr *InvalidCRCError
				if !errors.As(err, &crcErr) {
					t.Errorf("frame % X byte %d bit %d: expected InvalidCRCError, got %v", frame, i, bit, err)
				}
			}
		}
	}
}

func TestDecompile_Incomplete(t *testing.T) {
	frame := []byte{0x01, 0xDB, 0x0A, 0x00, 0x2C, 0x01, 0x32}

	for n := 2; n < len(frame); n++ {
		buf := NewFrameBuffer(DefaultBufferSize)
		_ = buf.Put(frame[:n])
		_ = buf.Flip()

		msg, err := Decompile(buf, nil)
		if msg != nil || err != nil {
			t.Fatalf("%d bytes: expected incomplete, got msg=%v err=%v", n, msg, err)
		}
		if buf.Position() != 0 || buf.Remaining() != n {
			t.Errorf("%d bytes: buffer not rewound: pos=%d remaining=%d", n, buf.Position(), buf.Remaining())
		}
	}
}

func TestDecompile_ArrayIncomplete(t *testing.T) {
	frame, _ := CompileWrite(NewArrayAddress(1, 30, 8), []byte("hello"))
	buf := NewFrameBuffer(DefaultBufferSize)
	_ = buf.Put(frame[:10])
	_ = buf.Flip()
	msg, err := Decompile(buf, nil)
	if msg != nil || err != nil {
		t.Errorf("expected incomplete, got msg=%v err=%v", msg, err)
	}
}

func TestDecompile_UnknownChannel(t *testing.T) {
	set := testChannels(t)
	frame, _ := CompileWrite(NewAddress(2, 99, TypeByte), []byte{1})

	buf := NewFrameBuffer(DefaultBufferSize)
	_ = buf.Put(frame)
	_ = buf.Flip()

	_, err := Decompile(buf, set)
	var chErr *UnknownChannelError
	if !errors.As(err, &chErr) {
		t.Fatalf("expected UnknownChannelError, got %v", err)
	}
	if chErr.DeviceID != 2 || chErr.Register != 99 {
		t.Errorf("got device %d register %d", chErr.DeviceID, chErr.Register)
	}
	if buf.Remaining() != 0 {
		t.Errorf("frame should be consumed, %d bytes remain", buf.Remaining())
	}
}

func TestDecompile_UnknownMessage(t *testing.T) {
	buf := NewFrameBuffer(DefaultBufferSize)
	_ = buf.Put([]byte{0x01, 0x42, 0x00, 0x00})
	_ = buf.Flip()

	_, err := Decompile(buf, nil)
	var msgErr *UnknownMessageError
	if !errors.As(err, &msgErr) {
		t.Fatalf("expected UnknownMessageError, got %v", err)
	}
	if msgErr.ID != 0x42 {
		t.Errorf("got id 0x%02X", msgErr.ID)
	}
}

func TestDecompile_FrameTooLong(t *testing.T) {
	buf := NewFrameBuffer(DefaultBufferSize)
	_ = buf.Put([]byte{0x01, 0xDE, 0x00, 0x00, 0xFF, 0x00})
	_ = buf.Flip()

	_, err := Decompile(buf, nil)
	var longErr *FrameTooLongError
	if !errors.As(err, &longErr) {
		t.Fatalf("expected FrameTooLongError, got %v", err)
	}
}

func TestDecompile_WrongMode(t *testing.T) {
	buf := NewFrameBuffer(DefaultBufferSize)
	_, err := Decompile(buf, nil)
	var modeErr *ModeError
	if !errors.As(err, &modeErr) {
		t.Fatalf("expected ModeError, got %v", err)
	}
}

// ============================================================
// Address and Value Tests
// ============================================================

func TestParseAddress(t *testing.T) {
	tests := []struct {
		kind    ChannelKind
		input   string
		want    Address
		wantErr bool
	}{
		{ChannelNumber, "1:10:word", NewAddress(1, 10, TypeWord), false},
		{ChannelNumber, "255:65535:float", NewAddress(255, 65535, TypeFloat), false},
		{ChannelNumber, "1:10", Address{}, true},
		{ChannelNumber, "1:10:rgb", Address{}, true},
		{ChannelNumber, "256:10:byte", Address{}, true},
		{ChannelColor, "2:5:RGBW", NewAddress(2, 5, TypeRGBW), false},
		{ChannelColor, "2:5:word", Address{}, true},
		{ChannelString, "1:3:16", NewArrayAddress(1, 3, 16), false},
		{ChannelString, "1:3:0", Address{}, true},
		{ChannelSwitch, "1:4", NewAddress(1, 4, TypeByte), false},
		{ChannelRollershutter, "1:4", NewAddress(1, 4, TypeWord), false},
		{ChannelDimmer, "1:4:byte", Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String()+"/"+tt.input, func(t *testing.T) {
			got, err := ParseAddress(tt.kind, tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	set := testChannels(t)
	tests := []struct {
		channel string
		input   string
		want    Value
		wantErr bool
	}{
		{"switch", "on", OnOff(true), false},
		{"switch", "OFF", OnOff(false), false},
		{"switch", "maybe", Value{}, true},
		{"contact", "OPEN", OpenClosed(true), false},
		{"dimmer", "55", PercentValue(55), false},
		{"dimmer", "101", Value{}, true},
		{"shutter", "down", MotionValue(MotionDown), false},
		{"word", "0x10", IntValue(16), false},
		{"float", "2.5", FloatValue(2.5), false},
		{"hsb", "300,50,75", HSBValue(300, 50, 75), false},
		{"rgb", "1,2,3", RGBValue(1, 2, 3), false},
		{"rgb", "1,2,3,4", Value{}, true},
		{"text", "hello", StringValue("hello"), false},
	}

	for _, tt := range tests {
		t.Run(tt.channel+"/"+tt.input, func(t *testing.T) {
			got, err := ParseValue(set.Get(tt.channel), tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChannelSet_DuplicateState(t *testing.T) {
	a := mustChannel(t, "a", ChannelSwitch, "1:1")
	b := mustChannel(t, "b", ChannelDimmer, "1:1")
	if _, err := NewChannelSet(a, b); err == nil {
		t.Error("expected error for shared state address")
	}
}

func TestChannelSet_DeviceIDs(t *testing.T) {
	a := mustChannel(t, "a", ChannelSwitch, "3:1")
	b, _ := NewChannel("b", ChannelSwitch, "", "1:1")
	c := mustChannel(t, "c", ChannelSwitch, "3:2")
	set, err := NewChannelSet(a, b, c)
	if err != nil {
		t.Fatal(err)
	}
	ids := set.DeviceIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("got %v, want [1 3]", ids)
	}
	if len(set.Readable()) != 2 {
		t.Errorf("expected 2 readable channels, got %d", len(set.Readable()))
	}
}

func TestMessageTypeOf(t *testing.T) {
	tests := map[byte]MessageType{
		0xD0: TypeCheckNewData,
		0xD3: TypeQuery,
		0xDC: TypeData,
		0xE3: TypeUnknownData,
		0xE7: TypeWantEverything,
		0xE8: TypeUnknown,
		0x00: TypeUnknown,
	}
	for id, want := range tests {
		if got := MessageTypeOf(id); got != want {
			t.Errorf("0x%02X: got %s, want %s", id, got, want)
		}
	}
}
