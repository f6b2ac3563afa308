// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package master

import (
	"sort"
	"sync"
	"time"
)

// Registry owns the devices of one connection, indexed by device id.
// Devices are created on first reference and live as long as the registry.
type Registry struct {
	now func() time.Time

	mu      sync.RWMutex
	devices map[uint8]*Device
}

// NewRegistry creates an empty registry. now is the clock handed to every
// device; nil means time.Now.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		now:     now,
		devices: make(map[uint8]*Device),
	}
}

// Get returns the device, creating it in state UNKNOWN when absent
func (r *Registry) Get(id uint8) *Device {
	r.mu.RLock()
	d, ok := r.devices[id]
	r.mu.RUnlock()
	if ok {
		return d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		return d
	}
	d = newDevice(id, r.now)
	r.devices[id] = d
	return d
}

// Lookup returns the device without creating it
func (r *Registry) Lookup(id uint8) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// IDs returns the known device ids in ascending order
func (r *Registry) IDs() []uint8 {
	r.mu.RLock()
	ids := make([]uint8, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Devices returns the known devices ordered by id
func (r *Registry) Devices() []*Device {
	ids := r.IDs()
	out := make([]*Device, 0, len(ids))
	for _, id := range ids {
		if d, ok := r.Lookup(id); ok {
			out = append(out, d)
		}
	}
	return out
}

// SetAll records state on every device and returns the ids whose state or
// packet loss changed
func (r *Registry) SetAll(state State) []uint8 {
	return r.SetAllExcept(state)
}

// SetAllExcept records state on every device not listed in except
func (r *Registry) SetAllExcept(state State, except ...uint8) []uint8 {
	skip := make(map[uint8]bool, len(except))
	for _, id := range except {
		skip[id] = true
	}

	var changed []uint8
	for _, d := range r.Devices() {
		if skip[d.ID] {
			continue
		}
		if d.SetState(state) {
			changed = append(changed, d.ID)
		}
	}
	return changed
}

// Snapshot returns a copy of every device ordered by id
func (r *Registry) Snapshot() []DeviceInfo {
	devices := r.Devices()
	out := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Info())
	}
	return out
}
