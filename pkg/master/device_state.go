// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package master

import (
	"fmt"
	"strings"
	"time"
)

// PacketLossWindow is the trailing window over which packet loss is computed
const PacketLossWindow = 5 * time.Minute

// State is the communication state of a slave device
type State int

const (
	StateUnknown State = iota
	StateConnected
	StateNotResponding
	StateResponseError
	StateDataError
)

var stateNames = map[State]string{
	StateUnknown:       "UNKNOWN",
	StateConnected:     "CONNECTED",
	StateNotResponding: "NOT_RESPONDING",
	StateResponseError: "RESPONSE_ERROR",
	StateDataError:     "DATA_ERROR",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState accepts the names returned by State.String, case-insensitive
func ParseState(s string) (State, error) {
	for st, name := range stateNames {
		if strings.EqualFold(name, s) {
			return st, nil
		}
	}
	return StateUnknown, fmt.Errorf("unknown device state %q", s)
}

// needsResync reports whether a device coming out of s must receive every
// remembered command again
func (s State) needsResync() bool {
	return s == StateUnknown || s == StateNotResponding || s == StateResponseError
}

// DeviceState tracks the current and previous state of a device together
// with the outcome history used for packet loss. It is not safe for
// concurrent use; Device serializes access.
type DeviceState struct {
	current           State
	previous          State
	changedAt         time.Time
	lastCommunication time.Time
	packetLoss        int

	okTimes  []time.Time
	errTimes []time.Time
}

// Set records one exchange outcome at now. previous and changedAt move only
// on an actual change. It reports whether the state or the packet loss
// changed.
func (s *DeviceState) Set(state State, now time.Time) bool {
	changed := state != s.current
	if changed {
		s.previous = s.current
		s.current = state
		s.changedAt = now
	}

	if state == StateConnected {
		s.okTimes = append(s.okTimes, now)
	} else {
		s.errTimes = append(s.errTimes, now)
	}

	loss := s.computePacketLoss(now)
	lossChanged := loss != s.packetLoss
	s.packetLoss = loss

	if state != StateNotResponding && state != StateUnknown {
		s.lastCommunication = now
	}

	return changed || lossChanged
}

// computePacketLoss prunes entries older than the window and returns the
// error share in whole percent
func (s *DeviceState) computePacketLoss(now time.Time) int {
	cutoff := now.Add(-PacketLossWindow)
	s.okTimes = pruneBefore(s.okTimes, cutoff)
	s.errTimes = pruneBefore(s.errTimes, cutoff)

	total := len(s.okTimes) + len(s.errTimes)
	if total == 0 {
		return 0
	}
	return 100 * len(s.errTimes) / total
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}

// State returns the current state
func (s *DeviceState) State() State { return s.current }

// Previous returns the state before the last change
func (s *DeviceState) Previous() State { return s.previous }

// ChangedAt returns when the state last changed
func (s *DeviceState) ChangedAt() time.Time { return s.changedAt }

// LastCommunication returns when the device last answered anything
func (s *DeviceState) LastCommunication() time.Time { return s.lastCommunication }

// PacketLoss returns the error share of the window ending at now. Entries
// that fell out of the window since the last Set are pruned first.
func (s *DeviceState) PacketLoss(now time.Time) int {
	s.packetLoss = s.computePacketLoss(now)
	return s.packetLoss
}
