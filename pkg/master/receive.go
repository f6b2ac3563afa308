// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package master

import (
	"bytes"
	"errors"

	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

// onBytes is the transport receiver. It decodes every complete frame and
// hands answers to the outstanding exchange. Hooks run after the receive
// lock is released.
func (e *Engine) onBytes(p []byte) {
	e.rx.Lock()
	if e.disposed.Load() {
		e.rx.Unlock()
		return
	}

	err := e.decoder.Feed(p, e.handle)
	var modeErr *simplebinary.ModeError
	switch {
	case err == nil:
	case errors.Is(err, simplebinary.ErrOverrun):
		e.log.Error("receive buffer overrun, bytes dropped", "bytes", len(p),
			"buffered", simplebinary.FormatBytes(e.decoder.Buffered()))
	case errors.As(err, &modeErr):
		e.log.Error("receive buffer reinitialized", "error", err)
		if dev := e.addressed(); dev != nil {
			dev.complete(reply{err: err})
		}
	default:
		e.log.Error("receive failed", "error", err)
	}

	events := e.rxEvents
	e.rxEvents = nil
	e.rx.Unlock()

	for _, fn := range events {
		fn()
	}
}

// addressed returns the device of the last request if it is still waiting
func (e *Engine) addressed() *Device {
	if e.lastSent == nil {
		return nil
	}
	dev, ok := e.registry.Lookup(e.lastSent.deviceID)
	if !ok || !dev.Waiting() {
		return nil
	}
	return dev
}

// handle processes one decode outcome with the receive lock held.
// Returning false clears the receive buffer.
func (e *Engine) handle(msg *simplebinary.Message, err error) bool {
	waiter := e.addressed()

	if err != nil {
		var crcErr *simplebinary.InvalidCRCError
		var chErr *simplebinary.UnknownChannelError
		switch {
		case errors.As(err, &chErr) && e.lastSent != nil && bytes.Equal(chErr.Frame, e.lastSent.frame):
			e.log.Debug("ignoring echo", "frame", simplebinary.FormatBytes(chErr.Frame))
		case errors.As(err, &crcErr), errors.As(err, &chErr):
			e.log.Warn("invalid frame", "error", err)
			if waiter != nil {
				waiter.complete(reply{err: err})
			}
		case errors.Is(err, simplebinary.ErrUnderflow):
			e.log.Error("frame underflow", "buffer", simplebinary.FormatBytes(e.decoder.Buffered()),
				"last_sent", e.lastSentString())
		default:
			e.log.Debug("resynchronizing", "error", err)
		}
		return true
	}

	if e.isEcho(msg) {
		e.log.Debug("ignoring echo", "frame", simplebinary.FormatBytes(msg.Raw))
		return true
	}

	if waiter != nil && msg.DeviceID != waiter.ID {
		e.log.Error("answer from wrong device, buffer cleared", "expected", waiter.ID,
			"received", msg.DeviceID, "last_sent", e.lastSentString())
		waiter.complete(reply{err: &WrongDeviceError{Expected: waiter.ID, Received: msg.DeviceID}})
		return false
	}

	if msg.Type == simplebinary.TypeData {
		e.storeValue(msg)
	}

	if waiter != nil && waiter.complete(reply{msg: msg}) {
		return true
	}
	e.unsolicited(msg)
	return true
}

// isEcho reports requests and copies of the last sent frame, which a
// half-duplex line reflects back to the master
func (e *Engine) isEcho(msg *simplebinary.Message) bool {
	switch msg.Type {
	case simplebinary.TypeCheckNewData, simplebinary.TypeQuery:
		return true
	}
	return e.lastSent != nil && bytes.Equal(msg.Raw, e.lastSent.frame)
}

func (e *Engine) storeValue(msg *simplebinary.Message) {
	v, err := msg.Value()
	if err != nil {
		e.decoder.Statistics().DecodeErrors++
		e.log.Warn("undecodable value", "device", msg.DeviceID, "register", msg.Register,
			"data", simplebinary.FormatBytes(msg.Data), "error", err)
		return
	}
	dev := e.registry.Get(msg.DeviceID)
	dev.setValue(msg.Channel, v)
	e.log.Debug("value", "channel", msg.Channel.ID, "value", v)

	ch := msg.Channel
	e.rxEvents = append(e.rxEvents, func() { e.notifyValue(ch, v) })
}

// unsolicited handles frames nobody was waiting for: data pushed by the
// slave, announcements and late answers
func (e *Engine) unsolicited(msg *simplebinary.Message) {
	dev, ok := e.registry.Lookup(msg.DeviceID)
	if !ok {
		e.log.Debug("frame from unconfigured device", "device", msg.DeviceID, "type", msg.Type)
		return
	}

	switch msg.Type {
	case simplebinary.TypeData, simplebinary.TypeHi, simplebinary.TypeWantEverything:
		dev.Alive()
		if e.settle(dev, msg) {
			e.rxEvents = append(e.rxEvents, func() { e.notifyState(dev) })
		}
	default:
		e.log.Debug("late answer ignored", "device", msg.DeviceID, "type", msg.Type)
	}
}

func (e *Engine) lastSentString() string {
	if e.lastSent == nil {
		return "-"
	}
	return simplebinary.FormatBytes(e.lastSent.frame)
}
