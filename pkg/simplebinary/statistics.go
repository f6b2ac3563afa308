// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame counters and error rates for one connection.
// It is not safe for concurrent use; owners serialize access.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	CRCErrors       uint64
	UnknownMessages uint64
	UnknownChannels uint64
	DecodeErrors    uint64
	DroppedBytes    uint64
	Overruns        uint64
	Timeouts        uint64
	Resends         uint64
	SentFrames      uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update counts one decompile outcome
func (s *Statistics) Update(msg *Message, err error) {
	if msg == nil && err == nil {
		return
	}
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if err == nil {
		s.ValidFrames++
		return
	}

	var crcErr *InvalidCRCError
	var chErr *UnknownChannelError
	var msgErr *UnknownMessageError
	var longErr *FrameTooLongError
	switch {
	case errors.As(err, &crcErr):
		s.CRCErrors++
	case errors.As(err, &chErr):
		s.UnknownChannels++
	case errors.As(err, &msgErr), errors.As(err, &longErr):
		s.UnknownMessages++
	default:
		s.DecodeErrors++
	}
}

// Errors returns the sum of all error counters
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.UnknownMessages + s.UnknownChannels + s.DecodeErrors + s.Overruns + s.Timeouts
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Sent Frames:     %8d\n", s.SentFrames)
	result += fmt.Sprintf("Received Frames: %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d\n", s.CRCErrors)
	}
	if s.UnknownMessages > 0 {
		result += fmt.Sprintf("Unknown Msgs:    %8d\n", s.UnknownMessages)
	}
	if s.UnknownChannels > 0 {
		result += fmt.Sprintf("Unknown Chans:   %8d\n", s.UnknownChannels)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.DroppedBytes > 0 {
		result += fmt.Sprintf("Dropped Bytes:   %8d\n", s.DroppedBytes)
	}
	if s.Overruns > 0 {
		result += fmt.Sprintf("Overruns:        %8d\n", s.Overruns)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}
	if s.Resends > 0 {
		result += fmt.Sprintf("Resends:         %8d\n", s.Resends)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
