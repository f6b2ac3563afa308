// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

import (
	"fmt"
	"strings"
)

// FormatMessage formats a message into a human-readable line
func FormatMessage(m *Message) string {
	timestamp := m.timestamp.Format("15:04:05.000")
	name := FormatMessageID(m.ID)

	result := fmt.Sprintf("[%s] dev=%d %s (0x%02X)", timestamp, m.DeviceID, name, m.ID)

	switch m.Type {
	case TypeCheckNewData:
		if m.Force() {
			result += " force=all"
		}
	case TypeQuery:
		result += fmt.Sprintf(" reg=%d", m.Register)
	case TypeData:
		result += fmt.Sprintf(" reg=%d len=%d data=%s", m.Register, len(m.Data), FormatBytes(m.Data))
		if m.Channel != nil {
			if v, err := m.Value(); err == nil {
				result += fmt.Sprintf(" %s=%s", m.Channel.ID, v)
			} else {
				result += fmt.Sprintf(" %s=<%v>", m.Channel.ID, err)
			}
		}
	}

	return result + "\n"
}

// FormatMessageID returns the human-readable name for a message id
func FormatMessageID(id byte) string {
	switch id {
	case MsgCheckNewData:
		return "CHECK_NEW_DATA"
	case MsgQuery, MsgQuery2, MsgQuery3, MsgQuery4:
		return "QUERY"
	case MsgDataByte:
		return "DATA_BYTE"
	case MsgDataWord:
		return "DATA_WORD"
	case MsgDataDword:
		return "DATA_DWORD"
	case MsgDataColor:
		return "DATA_COLOR"
	case MsgDataArray:
		return "DATA_ARRAY"
	case MsgOK:
		return "OK"
	case MsgResend:
		return "RESEND"
	case MsgNoData:
		return "NO_DATA"
	case MsgUnknownData:
		return "UNKNOWN_DATA"
	case MsgUnknownAddress:
		return "UNKNOWN_ADDRESS"
	case MsgSavingError:
		return "SAVING_ERROR"
	case MsgHi:
		return "HI"
	case MsgWantEverything:
		return "WANT_EVERYTHING"
	default:
		return "UNKNOWN"
	}
}

// FormatBytes renders bytes as space-separated hex
func FormatBytes(b []byte) string {
	if len(b) == 0 {
		return "-"
	}
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}
