// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package master

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

// exchange is one outstanding request. It is owned by whoever swaps it out
// of Device.pending: the receive path, the timeout or Dispose. The owner
// sends exactly one reply.
type exchange struct {
	done chan reply
}

type reply struct {
	msg *simplebinary.Message
	err error
}

// complete hands r to the device's outstanding exchange. It reports false
// when nothing was waiting or another party already completed it.
func (d *Device) complete(r reply) bool {
	ex := d.pending.Load()
	if ex == nil || !d.pending.CompareAndSwap(ex, nil) {
		return false
	}
	ex.done <- r
	return true
}

// Waiting reports whether the device has an outstanding exchange
func (d *Device) Waiting() bool {
	return d.pending.Load() != nil
}

// roundTrip writes one frame and waits for its answer. A second call for
// the same device while one is outstanding fails with ErrBusy.
func (e *Engine) roundTrip(ctx context.Context, dev *Device, frame []byte) (*simplebinary.Message, error) {
	if e.disposed.Load() {
		return nil, ErrDisposed
	}
	if !e.transport.IsConnected() {
		e.log.Debug("transport closed, reopening")
		e.resetReceive()
		if err := e.transport.Open(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
	}

	ex := &exchange{done: make(chan reply, 1)}
	if !dev.pending.CompareAndSwap(nil, ex) {
		return nil, ErrBusy
	}

	e.rx.Lock()
	e.lastSent = &sentFrame{deviceID: dev.ID, frame: frame}
	e.decoder.Statistics().SentFrames++
	e.rx.Unlock()

	e.log.Debug("send", "device", dev.ID, "frame", simplebinary.FormatBytes(frame))
	if err := e.transport.Write(frame); err != nil {
		if dev.pending.CompareAndSwap(ex, nil) {
			return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
		// answered before the write error surfaced
		r := <-ex.done
		return r.msg, r.err
	}

	timer := time.NewTimer(e.opts.Timeout)
	defer timer.Stop()

	var cause error
	select {
	case r := <-ex.done:
		return r.msg, r.err
	case <-timer.C:
		cause = ErrTimeout
	case <-ctx.Done():
		cause = ctx.Err()
	case <-e.life.Done():
		cause = ErrDisposed
	}

	if dev.pending.CompareAndSwap(ex, nil) {
		return nil, cause
	}
	// lost the race: the reply is already on its way
	r := <-ex.done
	return r.msg, r.err
}

// sendWait performs one request with the resend policy and records the
// outcome on the device:
//
//   - OK, NODATA, HI, WANT_EVERYTHING or data: CONNECTED
//   - RESEND or a corrupted answer: written again until MaxResend such
//     answers were received, then RESPONSE_ERROR
//   - UNKNOWN_DATA, UNKNOWN_ADDRESS, SAVING_ERROR: DATA_ERROR, no resend
//   - no answer: counted towards degrade, NOT_RESPONDING
func (e *Engine) sendWait(ctx context.Context, dev *Device, frame []byte) (*simplebinary.Message, error) {
	resends := 0
	for {
		msg, err := e.roundTrip(ctx, dev, frame)

		var crcErr *simplebinary.InvalidCRCError
		switch {
		case err == nil && msg.Type == simplebinary.TypeResend, errors.As(err, &crcErr):
			resends++
			if resends >= e.opts.MaxResend {
				e.log.Warn("resend limit reached", "device", dev.ID, "frame", simplebinary.FormatBytes(frame))
				dev.Alive()
				e.setState(dev, StateResponseError)
				return nil, fmt.Errorf("device %d: %w", dev.ID, ErrResendExceeded)
			}
			e.count(func(s *simplebinary.Statistics) { s.Resends++ })
			e.log.Debug("resending", "device", dev.ID, "attempt", resends)

		case err == nil:
			return e.classify(dev, msg)

		case errors.Is(err, ErrTimeout):
			e.count(func(s *simplebinary.Statistics) { s.Timeouts++ })
			if dev.Unresponsive(e.opts.DegradeMaxFailures) {
				e.log.Warn("device off scan", "device", dev.ID, "for", e.opts.DegradeTime)
			}
			e.setState(dev, StateNotResponding)
			return nil, fmt.Errorf("device %d: %w", dev.ID, err)

		case errors.Is(err, ErrNotConnected):
			e.log.Error("write failed", "device", dev.ID, "error", err)
			e.setState(dev, StateNotResponding)
			return nil, err

		case errors.Is(err, ErrBusy), errors.Is(err, ErrDisposed),
			errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err

		default:
			// wrong device, unknown channel, buffer failure
			e.log.Warn("exchange failed", "device", dev.ID, "error", err)
			e.setState(dev, StateDataError)
			return nil, err
		}
	}
}

// classify records a well-formed answer
func (e *Engine) classify(dev *Device, msg *simplebinary.Message) (*simplebinary.Message, error) {
	dev.Alive()
	switch msg.Type {
	case simplebinary.TypeOK, simplebinary.TypeNoData, simplebinary.TypeData,
		simplebinary.TypeHi, simplebinary.TypeWantEverything:
		if e.settle(dev, msg) {
			e.notifyState(dev)
		}
		return msg, nil
	case simplebinary.TypeUnknownData, simplebinary.TypeUnknownAddress, simplebinary.TypeSavingError:
		e.setState(dev, StateDataError)
		return msg, &RejectedError{DeviceID: dev.ID, Answer: msg.Type}
	default:
		e.setState(dev, StateDataError)
		return msg, fmt.Errorf("device %d: unexpected answer %s", dev.ID, msg.Type)
	}
}

// settle marks the device CONNECTED and queues a full command resync when
// the device announced itself, asked for everything or was not connected.
// It reports whether the state changed; the caller notifies.
func (e *Engine) settle(dev *Device, msg *simplebinary.Message) bool {
	prev := dev.State()
	changed := dev.SetState(StateConnected)

	if prev.needsResync() || msg.Type == simplebinary.TypeHi || msg.Type == simplebinary.TypeWantEverything {
		if n := dev.requeueSent(); n > 0 {
			e.log.Info("full command resync", "device", dev.ID, "commands", n, "trigger", resyncTrigger(prev, msg))
		}
	}
	return changed
}

func resyncTrigger(prev State, msg *simplebinary.Message) string {
	if msg.Type == simplebinary.TypeHi || msg.Type == simplebinary.TypeWantEverything {
		return msg.Type.String()
	}
	return prev.String()
}
