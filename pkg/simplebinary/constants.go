// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simplebinary implements the SimpleBinary master/slave wire protocol.
//
// SimpleBinary is a polled binary protocol between one master and up to 256
// slave devices on a shared serial line or TCP socket. Every frame starts with
// the device id and the message id and ends with a CRC8 over all preceding
// bytes. Multi-byte fields are little-endian.
//
// This package provides the frame buffer, frame compilation and decompilation,
// CRC validation, value encoding and human-readable formatting. It does no I/O
// and does not log.
package simplebinary

// Buffer sizing
const (
	DefaultBufferSize = 256
	MinFrameSize      = 4 // dev + id + 1 byte + crc
	ControlFrameSize  = 4
)

// CRC8 polynomial, applied to a 16-bit accumulator
const crcPolynomial = 0x1070 << 3

// Message ids - requests (master → slave)
const (
	MsgCheckNewData = 0xD0
	MsgQuery        = 0xD1
	MsgQuery2       = 0xD2
	MsgQuery3       = 0xD3
	MsgQuery4       = 0xD4
)

// Message ids - data frames (both directions)
const (
	MsgDataByte  = 0xDA
	MsgDataWord  = 0xDB
	MsgDataDword = 0xDC
	MsgDataColor = 0xDD
	MsgDataArray = 0xDE
)

// Message ids - control answers (slave → master)
const (
	MsgOK             = 0xE0
	MsgResend         = 0xE1
	MsgNoData         = 0xE2
	MsgUnknownData    = 0xE3
	MsgUnknownAddress = 0xE4
	MsgSavingError    = 0xE5
	MsgHi             = 0xE6
	MsgWantEverything = 0xE7
)

// MessageType classifies a message id
type MessageType int

const (
	TypeUnknown MessageType = iota
	TypeCheckNewData
	TypeQuery
	TypeData
	TypeOK
	TypeResend
	TypeNoData
	TypeUnknownData
	TypeUnknownAddress
	TypeSavingError
	TypeHi
	TypeWantEverything
)

// MessageTypeOf maps a message id to its type
func MessageTypeOf(id byte) MessageType {
	switch id {
	case MsgCheckNewData:
		return TypeCheckNewData
	case MsgQuery, MsgQuery2, MsgQuery3, MsgQuery4:
		return TypeQuery
	case MsgDataByte, MsgDataWord, MsgDataDword, MsgDataColor, MsgDataArray:
		return TypeData
	case MsgOK:
		return TypeOK
	case MsgResend:
		return TypeResend
	case MsgNoData:
		return TypeNoData
	case MsgUnknownData:
		return TypeUnknownData
	case MsgUnknownAddress:
		return TypeUnknownAddress
	case MsgSavingError:
		return TypeSavingError
	case MsgHi:
		return TypeHi
	case MsgWantEverything:
		return TypeWantEverything
	default:
		return TypeUnknown
	}
}

// IsControl reports whether the type is carried by a 4-byte control frame
func (t MessageType) IsControl() bool {
	switch t {
	case TypeOK, TypeResend, TypeNoData, TypeUnknownData, TypeUnknownAddress,
		TypeSavingError, TypeHi, TypeWantEverything:
		return true
	}
	return false
}

func (t MessageType) String() string {
	switch t {
	case TypeCheckNewData:
		return "CHECKNEWDATA"
	case TypeQuery:
		return "QUERY"
	case TypeData:
		return "DATA"
	case TypeOK:
		return "OK"
	case TypeResend:
		return "RESEND"
	case TypeNoData:
		return "NODATA"
	case TypeUnknownData:
		return "UNKNOWN_DATA"
	case TypeUnknownAddress:
		return "UNKNOWN_ADDRESS"
	case TypeSavingError:
		return "SAVING_ERROR"
	case TypeHi:
		return "HI"
	case TypeWantEverything:
		return "WANT_EVERYTHING"
	default:
		return "UNKNOWN"
	}
}

// DataType is the wire type of an addressed register
type DataType int

const (
	TypeByte DataType = iota
	TypeWord
	TypeDword
	TypeFloat
	TypeArray
	TypeHSB
	TypeRGB
	TypeRGBW
)

// Width returns the payload value width in bytes for fixed-size types,
// or 0 for ARRAY
func (d DataType) Width() int {
	switch d {
	case TypeByte:
		return 1
	case TypeWord:
		return 2
	case TypeDword, TypeFloat, TypeHSB, TypeRGB, TypeRGBW:
		return 4
	default:
		return 0
	}
}

// WriteID returns the data message id used to carry this type
func (d DataType) WriteID() byte {
	switch d {
	case TypeByte:
		return MsgDataByte
	case TypeWord:
		return MsgDataWord
	case TypeDword, TypeFloat:
		return MsgDataDword
	case TypeHSB, TypeRGB, TypeRGBW:
		return MsgDataColor
	default:
		return MsgDataArray
	}
}

func (d DataType) String() string {
	switch d {
	case TypeByte:
		return "byte"
	case TypeWord:
		return "word"
	case TypeDword:
		return "dword"
	case TypeFloat:
		return "float"
	case TypeArray:
		return "array"
	case TypeHSB:
		return "hsb"
	case TypeRGB:
		return "rgb"
	case TypeRGBW:
		return "rgbw"
	default:
		return "invalid"
	}
}

// frameLength returns the total length of a frame with the given message id,
// or 0 when the length depends on the payload (ARRAY) or the id is unknown.
func frameLength(id byte) int {
	switch MessageTypeOf(id) {
	case TypeCheckNewData:
		return 4
	case TypeQuery:
		return 5
	case TypeData:
		switch id {
		case MsgDataByte:
			return 6
		case MsgDataWord:
			return 7
		case MsgDataDword, MsgDataColor:
			return 9
		}
		return 0
	case TypeUnknown:
		return 0
	default:
		return ControlFrameSize
	}
}
