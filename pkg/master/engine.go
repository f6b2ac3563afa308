// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package master drives slave devices over the SimpleBinary protocol: it
// schedules polls, performs one send/wait exchange at a time per device,
// keeps per-device command queues and tracks communication state.
package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

// PollMode selects how the scheduler learns about new values
type PollMode int

const (
	// ModeOnChange asks every device for changed values with check-new-data
	ModeOnChange PollMode = iota
	// ModeOnScan reads every readable channel on every tick
	ModeOnScan
	// ModeNone only sends commands
	ModeNone
)

func (m PollMode) String() string {
	switch m {
	case ModeOnChange:
		return "ONCHANGE"
	case ModeOnScan:
		return "ONSCAN"
	case ModeNone:
		return "NONE"
	default:
		return fmt.Sprintf("PollMode(%d)", int(m))
	}
}

// ParsePollMode accepts ONCHANGE, ONSCAN and NONE in any case
func ParsePollMode(s string) (PollMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ONCHANGE":
		return ModeOnChange, nil
	case "ONSCAN":
		return ModeOnScan, nil
	case "NONE":
		return ModeNone, nil
	}
	return ModeOnChange, fmt.Errorf("unknown poll mode %q", s)
}

// Defaults
const (
	DefaultPollRate          = time.Second
	DefaultTimeout           = time.Second
	DefaultMaxResend         = 2
	DefaultDegradeTime       = 5 * time.Second
	DefaultMaxNewDataRepeats = 16
)

// Options configures an Engine
type Options struct {
	Mode PollMode
	// PollRate is the tick period; 0 polls in a tight loop
	PollRate time.Duration
	// Timeout bounds each exchange
	Timeout time.Duration
	// MaxResend is the number of RESEND answers (or corrupted replies) to
	// one request after which the device is marked RESPONSE_ERROR
	MaxResend int
	// DegradeMaxFailures consecutive timeouts take a device off scan; 0 disables
	DegradeMaxFailures int
	DegradeTime        time.Duration
	// DiscardCommands drops commands for devices that are NOT_RESPONDING
	DiscardCommands bool
	// MaxNewDataRepeats bounds the check-new-data repeat per device and tick
	MaxNewDataRepeats int
	BufferSize        int

	Logger *slog.Logger
	Clock  func() time.Time
}

// DefaultOptions returns the options used when a connection does not
// override them
func DefaultOptions() Options {
	return Options{
		Mode:              ModeOnChange,
		PollRate:          DefaultPollRate,
		Timeout:           DefaultTimeout,
		MaxResend:         DefaultMaxResend,
		DegradeTime:       DefaultDegradeTime,
		MaxNewDataRepeats: DefaultMaxNewDataRepeats,
		BufferSize:        simplebinary.DefaultBufferSize,
	}
}

func (o Options) withDefaults() Options {
	if o.PollRate < 0 {
		o.PollRate = DefaultPollRate
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxResend <= 0 {
		o.MaxResend = DefaultMaxResend
	}
	if o.DegradeTime <= 0 {
		o.DegradeTime = DefaultDegradeTime
	}
	if o.MaxNewDataRepeats <= 0 {
		o.MaxNewDataRepeats = DefaultMaxNewDataRepeats
	}
	if o.BufferSize < simplebinary.MinFrameSize {
		o.BufferSize = simplebinary.DefaultBufferSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// ValueHook receives every decoded channel value
type ValueHook func(ch *simplebinary.Channel, v simplebinary.Value)

// StateHook receives device state and packet loss changes
type StateHook func(deviceID uint8, state State)

// Engine is the master side of one connection
type Engine struct {
	opts      Options
	log       *slog.Logger
	transport Transport
	channels  *simplebinary.ChannelSet
	registry  *Registry

	// held for a poll tick or a command drain
	cycle sync.Mutex

	// receive path: decoder, last sent frame and statistics
	rx       sync.Mutex
	decoder  *simplebinary.StreamDecoder
	lastSent *sentFrame
	rxEvents []func()

	hooksMu    sync.RWMutex
	valueHooks []ValueHook
	stateHooks []StateHook

	life     context.Context
	cancel   context.CancelFunc
	disposed atomic.Bool

	// workersMu orders workers.Add against the Wait in Dispose
	workersMu sync.Mutex
	workers   sync.WaitGroup
}

type sentFrame struct {
	deviceID uint8
	frame    []byte
}

// New creates an engine for the channels reachable through t. Every device
// referenced by a channel is registered up front in state UNKNOWN.
func New(t Transport, channels *simplebinary.ChannelSet, opts Options) *Engine {
	opts = opts.withDefaults()
	life, cancel := context.WithCancel(context.Background())

	e := &Engine{
		opts:      opts,
		log:       opts.Logger,
		transport: t,
		channels:  channels,
		registry:  NewRegistry(opts.Clock),
		decoder:   simplebinary.NewStreamDecoder(opts.BufferSize, channels),
		life:      life,
		cancel:    cancel,
	}
	for _, id := range channels.DeviceIDs() {
		e.registry.Get(id)
	}
	return e
}

// Options returns the effective options
func (e *Engine) Options() Options { return e.opts }

// Registry returns the device registry
func (e *Engine) Registry() *Registry { return e.registry }

// Channels returns the configured channels
func (e *Engine) Channels() *simplebinary.ChannelSet { return e.channels }

// OnValue registers a hook called for every decoded channel value
func (e *Engine) OnValue(fn ValueHook) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.valueHooks = append(e.valueHooks, fn)
}

// OnState registers a hook called when a device's state or packet loss changes
func (e *Engine) OnState(fn StateHook) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.stateHooks = append(e.stateHooks, fn)
}

func (e *Engine) notifyValue(ch *simplebinary.Channel, v simplebinary.Value) {
	e.hooksMu.RLock()
	hooks := e.valueHooks
	e.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(ch, v)
	}
}

func (e *Engine) notifyState(dev *Device) {
	e.hooksMu.RLock()
	hooks := e.stateHooks
	e.hooksMu.RUnlock()
	state := dev.State()
	for _, fn := range hooks {
		fn(dev.ID, state)
	}
}

// setState records an outcome and notifies the state hooks on change. It
// must not be called with the receive lock held.
func (e *Engine) setState(dev *Device, s State) {
	if dev.SetState(s) {
		e.log.Debug("device state", "device", dev.ID, "state", s, "packet_loss", dev.PacketLoss())
		e.notifyState(dev)
	}
}

// Statistics returns a copy of the frame counters
func (e *Engine) Statistics() simplebinary.Statistics {
	e.rx.Lock()
	defer e.rx.Unlock()
	s := *e.decoder.Statistics()
	s.CalculateRates()
	return s
}

func (e *Engine) sentFrames() uint64 {
	e.rx.Lock()
	defer e.rx.Unlock()
	return e.decoder.Statistics().SentFrames
}

func (e *Engine) count(fn func(s *simplebinary.Statistics)) {
	e.rx.Lock()
	fn(e.decoder.Statistics())
	e.rx.Unlock()
}

// ============================================================
// Lifecycle
// ============================================================

// Open registers the receive path and opens the transport. The receive
// buffer starts empty.
func (e *Engine) Open(ctx context.Context) error {
	if e.disposed.Load() {
		return ErrDisposed
	}
	e.transport.SetReceiver(e.onBytes)
	e.resetReceive()

	if err := e.transport.Open(ctx); err != nil {
		return fmt.Errorf("opening transport: %w", err)
	}
	return nil
}

// resetReceive drops buffered bytes and the last sent frame. Bytes left
// from a dropped line never belong to the next answer.
func (e *Engine) resetReceive() {
	e.rx.Lock()
	e.decoder.Reset()
	e.lastSent = nil
	e.rx.Unlock()
}

// Run opens the transport and polls until ctx is done or the engine is
// disposed. The engine is disposed when Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Open(ctx); err != nil {
		return err
	}
	defer e.Dispose()

	e.log.Info("polling started", "mode", e.opts.Mode, "rate", e.opts.PollRate,
		"devices", len(e.registry.IDs()), "channels", len(e.channels.All()))

	if e.opts.Mode == ModeNone {
		select {
		case <-ctx.Done():
		case <-e.life.Done():
		}
		return nil
	}

	if e.opts.PollRate == 0 {
		idle := e.opts.Timeout / 10
		for ctx.Err() == nil && e.life.Err() == nil {
			before := e.sentFrames()
			_ = e.Poll(ctx)
			if e.sentFrames() != before {
				continue
			}
			// nothing on the line this tick
			select {
			case <-ctx.Done():
			case <-e.life.Done():
			case <-time.After(idle):
			}
		}
		return nil
	}

	ticker := time.NewTicker(e.opts.PollRate)
	defer ticker.Stop()
	for {
		_ = e.Poll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-e.life.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Dispose stops polling, releases every waiting exchange and closes the
// transport. Further calls are no-ops.
func (e *Engine) Dispose() error {
	if !e.disposed.CompareAndSwap(false, true) {
		return nil
	}
	e.cancel()

	e.workersMu.Lock()
	e.workersMu.Unlock()

	for _, dev := range e.registry.Devices() {
		if ex := dev.pending.Swap(nil); ex != nil {
			ex.done <- reply{err: ErrDisposed}
		}
	}
	e.workers.Wait()

	e.rx.Lock()
	e.decoder.Reset()
	e.rx.Unlock()

	e.log.Info("engine disposed")
	return e.transport.Close()
}

// Disposed reports whether Dispose was called
func (e *Engine) Disposed() bool {
	return e.disposed.Load()
}

// ============================================================
// Scheduler
// ============================================================

// Poll runs one scheduler tick in the configured mode, then drains the
// command queues
func (e *Engine) Poll(ctx context.Context) error {
	if e.disposed.Load() {
		return ErrDisposed
	}
	e.cycle.Lock()
	defer e.cycle.Unlock()

	switch e.opts.Mode {
	case ModeOnScan:
		e.scan(ctx)
	case ModeOnChange:
		for _, dev := range e.registry.Devices() {
			if ctx.Err() != nil || e.life.Err() != nil {
				break
			}
			e.checkNewData(ctx, dev)
		}
	default:
		for _, dev := range e.registry.Devices() {
			_ = e.drain(ctx, dev)
		}
	}
	return ctx.Err()
}

// scan reads every readable channel, then drains every device
func (e *Engine) scan(ctx context.Context) {
	for _, ch := range e.channels.Readable() {
		if ctx.Err() != nil || e.life.Err() != nil {
			return
		}
		dev := e.registry.Get(ch.StateAddress.DeviceID)
		if dev.StillDegraded(e.opts.DegradeTime) {
			continue
		}
		if _, err := e.sendWait(ctx, dev, simplebinary.CompileRead(*ch.StateAddress)); err != nil {
			e.log.Debug("read failed", "channel", ch.ID, "device", dev.ID, "error", err)
		}
	}
	for _, dev := range e.registry.Devices() {
		_ = e.drain(ctx, dev)
	}
}

// checkNewData asks one device for changed values and repeats while the
// device keeps answering with data. A device in a failed state is asked to
// send everything.
func (e *Engine) checkNewData(ctx context.Context, dev *Device) {
	if dev.StillDegraded(e.opts.DegradeTime) {
		return
	}

	force := dev.State().needsResync()
	msg, err := e.sendWait(ctx, dev, simplebinary.CompileCheckNewData(dev.ID, force))
	for i := 0; err == nil && msg.Type == simplebinary.TypeData && i < e.opts.MaxNewDataRepeats; i++ {
		msg, err = e.sendWait(ctx, dev, simplebinary.CompileCheckNewData(dev.ID, false))
	}
	if err != nil {
		e.log.Debug("check new data failed", "device", dev.ID, "error", err)
		return
	}
	if msg.Type == simplebinary.TypeData {
		e.log.Warn("device still reporting data, continuing next tick",
			"device", dev.ID, "repeats", e.opts.MaxNewDataRepeats)
	}

	_ = e.drain(ctx, dev)
}

// drain sends queued commands in order and stops at the first failure,
// leaving the rest queued. Commands the slave rejects are dropped.
func (e *Engine) drain(ctx context.Context, dev *Device) error {
	if dev.IsDegraded() {
		return nil
	}
	for ctx.Err() == nil && e.life.Err() == nil {
		cmd, ok := dev.PeekCommand()
		if !ok {
			return nil
		}

		frame, err := simplebinary.CompileCommand(cmd.Channel, cmd.Value)
		if err != nil {
			e.log.Warn("dropping command", "channel", cmd.Channel.ID, "value", cmd.Value, "error", err)
			dev.RemoveCommand(cmd)
			continue
		}

		_, err = e.sendWait(ctx, dev, frame)
		var rejected *RejectedError
		switch {
		case err == nil:
			dev.RemoveCommand(cmd)
			dev.rememberSent(cmd)
		case errors.As(err, &rejected):
			e.log.Warn("command rejected", "channel", cmd.Channel.ID, "value", cmd.Value, "answer", rejected.Answer)
			dev.RemoveCommand(cmd)
		default:
			return fmt.Errorf("channel %s: %w", cmd.Channel.ID, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrDisposed
}

// ============================================================
// Commands
// ============================================================

// Command queues a value for a writable channel and starts a drain of the
// device's queue unless a poll tick or another drain is running; in that
// case the command goes out at the next drain point.
func (e *Engine) Command(ctx context.Context, channelID string, v simplebinary.Value) error {
	if e.disposed.Load() {
		return ErrDisposed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := e.channels.Get(channelID)
	if ch == nil {
		return &UnknownChannelIDError{ID: channelID}
	}
	if !ch.Writable() {
		return fmt.Errorf("channel %s has no command address", channelID)
	}
	if _, err := simplebinary.CompileCommand(ch, v); err != nil {
		return err
	}

	dev := e.registry.Get(ch.CommandAddress.DeviceID)
	if e.opts.DiscardCommands && dev.State() == StateNotResponding {
		e.log.Info("command discarded", "channel", ch.ID, "device", dev.ID, "value", v)
		return ErrDiscarded
	}

	dev.AddCommand(ch, v)
	e.tryDrain(dev)
	return nil
}

func (e *Engine) tryDrain(dev *Device) {
	e.workersMu.Lock()
	if e.disposed.Load() {
		e.workersMu.Unlock()
		return
	}
	e.workers.Add(1)
	e.workersMu.Unlock()

	go func() {
		defer e.workers.Done()
		if !e.cycle.TryLock() {
			return
		}
		defer e.cycle.Unlock()
		if err := e.drain(e.life, dev); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Debug("drain stopped", "device", dev.ID, "error", err)
		}
	}()
}

// Flush drains every device's queue, waiting for a running tick to finish
// first
func (e *Engine) Flush(ctx context.Context) error {
	if e.disposed.Load() {
		return ErrDisposed
	}
	e.cycle.Lock()
	defer e.cycle.Unlock()

	var errs []error
	for _, dev := range e.registry.Devices() {
		if err := e.drain(ctx, dev); err != nil {
			errs = append(errs, fmt.Errorf("device %d: %w", dev.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Probe asks one device for new data outside the poll schedule and returns
// its answer. The device is registered if it was not known.
func (e *Engine) Probe(ctx context.Context, deviceID uint8, force bool) (*simplebinary.Message, error) {
	if e.disposed.Load() {
		return nil, ErrDisposed
	}
	e.cycle.Lock()
	defer e.cycle.Unlock()

	dev := e.registry.Get(deviceID)
	return e.sendWait(ctx, dev, simplebinary.CompileCheckNewData(deviceID, force))
}

// Read reads one channel's state address outside the poll schedule
func (e *Engine) Read(ctx context.Context, channelID string) (simplebinary.Value, error) {
	if e.disposed.Load() {
		return simplebinary.Value{}, ErrDisposed
	}
	ch := e.channels.Get(channelID)
	if ch == nil {
		return simplebinary.Value{}, &UnknownChannelIDError{ID: channelID}
	}
	if !ch.Readable() {
		return simplebinary.Value{}, fmt.Errorf("channel %s has no state address", channelID)
	}

	e.cycle.Lock()
	defer e.cycle.Unlock()

	dev := e.registry.Get(ch.StateAddress.DeviceID)
	msg, err := e.sendWait(ctx, dev, simplebinary.CompileRead(*ch.StateAddress))
	if err != nil {
		return simplebinary.Value{}, err
	}
	if msg.Type != simplebinary.TypeData || msg.Channel != ch {
		return simplebinary.Value{}, fmt.Errorf("channel %s: unexpected answer %s", channelID, msg.Type)
	}
	return msg.Value()
}
