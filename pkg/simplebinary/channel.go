// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simplebinary

import (
	"fmt"
	"sort"
	"strings"
)

// ChannelKind selects how a channel's bytes are interpreted
type ChannelKind int

const (
	ChannelNumber ChannelKind = iota
	ChannelSwitch
	ChannelContact
	ChannelDimmer
	ChannelRollershutter
	ChannelColor
	ChannelString
)

func (k ChannelKind) String() string {
	switch k {
	case ChannelNumber:
		return "number"
	case ChannelSwitch:
		return "switch"
	case ChannelContact:
		return "contact"
	case ChannelDimmer:
		return "dimmer"
	case ChannelRollershutter:
		return "rollershutter"
	case ChannelColor:
		return "color"
	case ChannelString:
		return "string"
	default:
		return "unknown"
	}
}

// ParseChannelKind parses a channel kind name
func ParseChannelKind(s string) (ChannelKind, error) {
	for k := ChannelNumber; k <= ChannelString; k++ {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown channel kind %q", s)
}

// Channel binds a logical data point to protocol addresses.
// A channel may be read-only (no CommandAddress), write-only (no
// StateAddress) or both.
type Channel struct {
	ID             string
	Kind           ChannelKind
	StateAddress   *Address
	CommandAddress *Address
}

// NewChannel parses the addresses and builds a channel. Empty address
// strings leave the corresponding side unset.
func NewChannel(id string, kind ChannelKind, stateAddr, commandAddr string) (*Channel, error) {
	if id == "" {
		return nil, fmt.Errorf("channel id required")
	}
	if stateAddr == "" && commandAddr == "" {
		return nil, fmt.Errorf("channel %s: no state or command address specified", id)
	}

	ch := &Channel{ID: id, Kind: kind}
	if stateAddr != "" {
		a, err := ParseAddress(kind, stateAddr)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", id, err)
		}
		ch.StateAddress = &a
	}
	if commandAddr != "" {
		a, err := ParseAddress(kind, commandAddr)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", id, err)
		}
		ch.CommandAddress = &a
	}
	return ch, nil
}

// Readable reports whether the channel has a state address
func (c *Channel) Readable() bool {
	return c.StateAddress != nil
}

// Writable reports whether the channel has a command address
func (c *Channel) Writable() bool {
	return c.CommandAddress != nil
}

func (c *Channel) String() string {
	var state, cmd string
	if c.StateAddress != nil {
		state = c.StateAddress.String()
	}
	if c.CommandAddress != nil {
		cmd = c.CommandAddress.String()
	}
	return fmt.Sprintf("%s(%s state=%s cmd=%s)", c.ID, c.Kind, state, cmd)
}

// ChannelResolver finds the channel whose state address matches a received data frame
type ChannelResolver interface {
	ChannelAt(deviceID uint8, register uint16) *Channel
}

type stateKey struct {
	device   uint8
	register uint16
}

// ChannelSet is an indexed, immutable collection of channels
type ChannelSet struct {
	order   []*Channel
	byID    map[string]*Channel
	byState map[stateKey]*Channel
}

// NewChannelSet indexes the channels. Channel ids and state addresses must be unique.
func NewChannelSet(channels ...*Channel) (*ChannelSet, error) {
	s := &ChannelSet{
		byID:    make(map[string]*Channel, len(channels)),
		byState: make(map[stateKey]*Channel, len(channels)),
	}
	for _, ch := range channels {
		if _, dup := s.byID[ch.ID]; dup {
			return nil, fmt.Errorf("duplicate channel id %q", ch.ID)
		}
		if ch.StateAddress != nil {
			key := stateKey{ch.StateAddress.DeviceID, ch.StateAddress.Register}
			if other, dup := s.byState[key]; dup {
				return nil, fmt.Errorf("channels %q and %q share state address %d:%d",
					other.ID, ch.ID, key.device, key.register)
			}
			s.byState[key] = ch
		}
		s.byID[ch.ID] = ch
		s.order = append(s.order, ch)
	}
	return s, nil
}

// ChannelAt implements ChannelResolver
func (s *ChannelSet) ChannelAt(deviceID uint8, register uint16) *Channel {
	if s == nil {
		return nil
	}
	return s.byState[stateKey{deviceID, register}]
}

// Get returns the channel with the given id, or nil
func (s *ChannelSet) Get(id string) *Channel {
	if s == nil {
		return nil
	}
	return s.byID[id]
}

// All returns the channels in configuration order
func (s *ChannelSet) All() []*Channel {
	if s == nil {
		return nil
	}
	return s.order
}

// Readable returns the channels with a state address, in configuration order
func (s *ChannelSet) Readable() []*Channel {
	var out []*Channel
	for _, ch := range s.All() {
		if ch.Readable() {
			out = append(out, ch)
		}
	}
	return out
}

// DeviceIDs returns the sorted ids of every device referenced by any address
func (s *ChannelSet) DeviceIDs() []uint8 {
	seen := map[uint8]bool{}
	for _, ch := range s.All() {
		if ch.StateAddress != nil {
			seen[ch.StateAddress.DeviceID] = true
		}
		if ch.CommandAddress != nil {
			seen[ch.CommandAddress.DeviceID] = true
		}
	}
	ids := make([]uint8, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
