// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package master

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

// Command is one pending write for a channel
type Command struct {
	Channel *simplebinary.Channel
	Value   simplebinary.Value
	Queued  time.Time

	seq uint64
}

// ChannelValue is the last value received for a readable channel
type ChannelValue struct {
	Channel *simplebinary.Channel
	Value   simplebinary.Value
	Updated time.Time
}

// Device is one addressable slave: its communication state, its command
// queue and its degrade bookkeeping. All methods are safe for concurrent use.
type Device struct {
	ID uint8

	now func() time.Time

	mu           sync.Mutex
	state        DeviceState
	queue        []Command
	seq          uint64
	sent         map[string]Command
	values       map[string]ChannelValue
	degraded     bool
	degradeSince time.Time
	failures     int

	// outstanding exchange, claimed by compare-and-set
	pending atomic.Pointer[exchange]
}

func newDevice(id uint8, now func() time.Time) *Device {
	return &Device{
		ID:     id,
		now:    now,
		sent:   make(map[string]Command),
		values: make(map[string]ChannelValue),
	}
}

// ============================================================
// State
// ============================================================

// SetState records an exchange outcome. It reports whether the state or
// the packet loss changed.
func (d *Device) SetState(s State) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Set(s, d.now())
}

// State returns the current state
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.State()
}

// PacketLoss returns the error share of the trailing window in percent
func (d *Device) PacketLoss() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.PacketLoss(d.now())
}

// ============================================================
// Command Queue
// ============================================================

// AddCommand queues a write. Any pending entry for the same channel is
// dropped and the new one appended at the tail.
func (d *Device) AddCommand(ch *simplebinary.Channel, v simplebinary.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addLocked(ch, v)
}

func (d *Device) addLocked(ch *simplebinary.Channel, v simplebinary.Value) {
	for i, c := range d.queue {
		if c.Channel.ID == ch.ID {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			break
		}
	}
	d.seq++
	d.queue = append(d.queue, Command{Channel: ch, Value: v, Queued: d.now(), seq: d.seq})
}

// PeekCommand returns the head of the queue
func (d *Device) PeekCommand() (Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return Command{}, false
	}
	return d.queue[0], true
}

// RemoveCommand removes exactly the given entry. A newer command queued for
// the same channel in the meantime stays queued.
func (d *Device) RemoveCommand(c Command) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, q := range d.queue {
		if q.seq == c.seq {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Commands returns a copy of the queue in send order
func (d *Device) Commands() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.queue...)
}

// QueueLen returns the number of pending commands
func (d *Device) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// ClearCommands drops every pending command and returns how many there were
func (d *Device) ClearCommands() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.queue)
	d.queue = nil
	return n
}

// rememberSent stores the value a slave acknowledged for a channel
func (d *Device) rememberSent(c Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent[c.Channel.ID] = c
}

// requeueSent queues every acknowledged command again, except for channels
// that already have a newer command pending. It returns the number queued.
func (d *Device) requeueSent() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending := make(map[string]bool, len(d.queue))
	for _, c := range d.queue {
		pending[c.Channel.ID] = true
	}
	ids := make([]string, 0, len(d.sent))
	for id := range d.sent {
		if !pending[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := d.sent[id]
		d.addLocked(c.Channel, c.Value)
	}
	return len(ids)
}

// ============================================================
// Values
// ============================================================

func (d *Device) setValue(ch *simplebinary.Channel, v simplebinary.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[ch.ID] = ChannelValue{Channel: ch, Value: v, Updated: d.now()}
}

// Value returns the last value received for a channel
func (d *Device) Value(channelID string) (ChannelValue, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.values[channelID]
	return v, ok
}

// ============================================================
// Degrade Policy
// ============================================================

// Unresponsive counts a failed exchange. With maxFailures 0 the policy is
// disabled. It reports whether the device is (now) degraded.
func (d *Device) Unresponsive(maxFailures int) bool {
	if maxFailures <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.degraded {
		return true
	}
	d.failures++
	if d.failures >= maxFailures {
		d.degraded = true
		d.degradeSince = d.now()
		return true
	}
	return false
}

// StillDegraded reports whether the device must still be skipped. Once
// period has elapsed the degraded flag is cleared and the device is back in
// scan; the failure counter is kept so a single further failure degrades it
// again.
func (d *Device) StillDegraded(period time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.degraded {
		return false
	}
	if d.now().Sub(d.degradeSince) < period {
		return true
	}
	d.degraded = false
	return false
}

// Alive resets the failure counter after a successful exchange
func (d *Device) Alive() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = 0
	d.degraded = false
}

// IsDegraded reports whether the device is off scan
func (d *Device) IsDegraded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.degraded
}

// Failures returns the consecutive failure count
func (d *Device) Failures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures
}

// ============================================================
// Snapshot
// ============================================================

// DeviceInfo is a point-in-time copy of a device
type DeviceInfo struct {
	ID                uint8                    `cbor:"1,keyasint" json:"id"`
	State             State                    `cbor:"2,keyasint" json:"-"`
	StateName         string                   `cbor:"-" json:"state"`
	Previous          State                    `cbor:"3,keyasint" json:"-"`
	ChangedAt         time.Time                `cbor:"4,keyasint" json:"changed_at"`
	LastCommunication time.Time                `cbor:"5,keyasint" json:"last_communication"`
	PacketLoss        int                      `cbor:"6,keyasint" json:"packet_loss"`
	Degraded          bool                     `cbor:"7,keyasint" json:"degraded"`
	Failures          int                      `cbor:"8,keyasint" json:"failures"`
	QueueLen          int                      `cbor:"9,keyasint" json:"queue_len"`
	Values            map[string]ValueSnapshot `cbor:"10,keyasint" json:"values"`
}

// ValueSnapshot is the printable form of a channel value
type ValueSnapshot struct {
	Kind    string    `cbor:"1,keyasint" json:"kind"`
	Value   string    `cbor:"2,keyasint" json:"value"`
	Updated time.Time `cbor:"3,keyasint" json:"updated"`
}

// Info returns a snapshot of the device
func (d *Device) Info() DeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := DeviceInfo{
		ID:                d.ID,
		State:             d.state.State(),
		StateName:         d.state.State().String(),
		Previous:          d.state.Previous(),
		ChangedAt:         d.state.ChangedAt(),
		LastCommunication: d.state.LastCommunication(),
		PacketLoss:        d.state.PacketLoss(d.now()),
		Degraded:          d.degraded,
		Failures:          d.failures,
		QueueLen:          len(d.queue),
		Values:            make(map[string]ValueSnapshot, len(d.values)),
	}
	for id, v := range d.values {
		info.Values[id] = ValueSnapshot{
			Kind:    v.Value.Kind.String(),
			Value:   v.Value.String(),
			Updated: v.Updated,
		}
	}
	return info
}
