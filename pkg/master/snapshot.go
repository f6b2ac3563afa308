// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package master

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// SnapshotVersion is the first element of an encoded snapshot
const SnapshotVersion = 1

// Snapshot is the state of an engine at one instant
type Snapshot struct {
	Taken   time.Time    `cbor:"1,keyasint" json:"taken"`
	Mode    string       `cbor:"2,keyasint" json:"mode"`
	Devices []DeviceInfo `cbor:"3,keyasint" json:"devices"`
	Frames  FrameCounts  `cbor:"4,keyasint" json:"frames"`
}

// FrameCounts is the subset of the frame statistics kept in a snapshot
type FrameCounts struct {
	Sent      uint64 `cbor:"1,keyasint" json:"sent"`
	Received  uint64 `cbor:"2,keyasint" json:"received"`
	Valid     uint64 `cbor:"3,keyasint" json:"valid"`
	CRCErrors uint64 `cbor:"4,keyasint" json:"crc_errors"`
	Timeouts  uint64 `cbor:"5,keyasint" json:"timeouts"`
	Resends   uint64 `cbor:"6,keyasint" json:"resends"`
	Dropped   uint64 `cbor:"7,keyasint" json:"dropped_bytes"`
}

// Snapshot copies the registry and the frame counters
func (e *Engine) Snapshot() Snapshot {
	stats := e.Statistics()
	return Snapshot{
		Taken:   e.opts.Clock(),
		Mode:    e.opts.Mode.String(),
		Devices: e.registry.Snapshot(),
		Frames: FrameCounts{
			Sent:      stats.SentFrames,
			Received:  stats.TotalFrames,
			Valid:     stats.ValidFrames,
			CRCErrors: stats.CRCErrors,
			Timeouts:  stats.Timeouts,
			Resends:   stats.Resends,
			Dropped:   stats.DroppedBytes,
		},
	}
}

var snapshotEncMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeSnapshot encodes s as a CBOR array [version, snapshot]
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	data, err := snapshotEncMode.Marshal([]interface{}{uint64(SnapshotVersion), s})
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot decodes data produced by EncodeSnapshot
func DecodeSnapshot(data []byte) (Snapshot, error) {
	if len(data) == 0 {
		return Snapshot{}, fmt.Errorf("empty snapshot")
	}

	var envelope []cbor.RawMessage
	if err := cbor.Unmarshal(data, &envelope); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if len(envelope) != 2 {
		return Snapshot{}, fmt.Errorf("expected 2-element array, got %d elements", len(envelope))
	}

	var version uint64
	if err := cbor.Unmarshal(envelope[0], &version); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot version: %w", err)
	}
	if version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("unsupported snapshot version %d", version)
	}

	var s Snapshot
	if err := cbor.Unmarshal(envelope[1], &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	for i := range s.Devices {
		s.Devices[i].StateName = s.Devices[i].State.String()
	}
	return s, nil
}
