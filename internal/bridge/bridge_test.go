// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/Thermoquad/simplebinary/internal/config"
	"github.com/Thermoquad/simplebinary/pkg/master"
	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

// ============================================================
// Test Helpers
// ============================================================

type published struct {
	topic    string
	retained bool
	payload  string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePublisher) Publish(topic string, _ byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic, retained, string(payload)})
	return nil
}

type command struct {
	id string
	v  simplebinary.Value
}

type fakeEngine struct {
	channels   *simplebinary.ChannelSet
	registry   *master.Registry
	commands   []command
	commandErr error
	valueHook  master.ValueHook
	stateHook  master.StateHook
}

func (f *fakeEngine) Channels() *simplebinary.ChannelSet { return f.channels }
func (f *fakeEngine) Registry() *master.Registry         { return f.registry }
func (f *fakeEngine) OnValue(fn master.ValueHook)        { f.valueHook = fn }
func (f *fakeEngine) OnState(fn master.StateHook)        { f.stateHook = fn }

func (f *fakeEngine) Command(_ context.Context, id string, v simplebinary.Value) error {
	if f.commandErr != nil {
		return f.commandErr
	}
	f.commands = append(f.commands, command{id, v})
	return nil
}

func newTestBridge(t *testing.T) (*Bridge, *fakeEngine, *fakePublisher) {
	t.Helper()
	relay, err := simplebinary.NewChannel("relay", simplebinary.ChannelSwitch, "1:20", "1:21")
	if err != nil {
		t.Fatal(err)
	}
	temp, err := simplebinary.NewChannel("temp", simplebinary.ChannelNumber, "1:10:word", "")
	if err != nil {
		t.Fatal(err)
	}
	set, err := simplebinary.NewChannelSet(relay, temp)
	if err != nil {
		t.Fatal(err)
	}

	eng := &fakeEngine{channels: set, registry: master.NewRegistry(nil)}
	pub := &fakePublisher{}
	b := New(config.MQTTConfig{TopicPrefix: "bus"}, eng, slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.pub = pub
	b.attach()
	return b, eng, pub
}

// ============================================================
// Publish Tests
// ============================================================

func TestNew_GeneratesClientID(t *testing.T) {
	a := New(config.MQTTConfig{}, &fakeEngine{}, nil)
	b := New(config.MQTTConfig{}, &fakeEngine{}, nil)
	if !strings.HasPrefix(a.cfg.ClientID, "sbmaster-") || a.cfg.ClientID == b.cfg.ClientID {
		t.Errorf("client ids %q %q", a.cfg.ClientID, b.cfg.ClientID)
	}
	if a.cfg.TopicPrefix != config.DefaultTopicPrefix {
		t.Errorf("TopicPrefix = %q", a.cfg.TopicPrefix)
	}
}

func TestBridge_PublishValue(t *testing.T) {
	_, eng, pub := newTestBridge(t)

	eng.valueHook(eng.channels.Get("temp"), simplebinary.IntValue(215))
	eng.valueHook(eng.channels.Get("relay"), simplebinary.OnOff(true))

	want := []published{
		{"bus/channel/temp/state", false, "215"},
		{"bus/channel/relay/state", false, "ON"},
	}
	if len(pub.msgs) != len(want) {
		t.Fatalf("published %v", pub.msgs)
	}
	for i := range want {
		if pub.msgs[i] != want[i] {
			t.Errorf("msg %d = %+v, want %+v", i, pub.msgs[i], want[i])
		}
	}
}

func TestBridge_PublishState(t *testing.T) {
	_, eng, pub := newTestBridge(t)

	dev := eng.registry.Get(3)
	dev.SetState(master.StateConnected)
	dev.SetState(master.StateNotResponding)
	eng.stateHook(3, master.StateNotResponding)

	if len(pub.msgs) != 1 {
		t.Fatalf("published %v", pub.msgs)
	}
	msg := pub.msgs[0]
	if msg.topic != "bus/device/3/state" || !msg.retained {
		t.Errorf("msg = %+v", msg)
	}
	var got DeviceState
	if err := json.Unmarshal([]byte(msg.payload), &got); err != nil {
		t.Fatal(err)
	}
	if got.State != "NOT_RESPONDING" || got.PacketLoss != 50 {
		t.Errorf("payload = %+v", got)
	}
}

// ============================================================
// Set Tests
// ============================================================

func TestBridge_HandleSet(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    []command
	}{
		{"switch on", "bus/channel/relay/set", "ON", []command{{"relay", simplebinary.OnOff(true)}}},
		{"numeric off", "bus/channel/relay/set", "0", []command{{"relay", simplebinary.OnOff(false)}}},
		{"bad payload", "bus/channel/relay/set", "maybe", nil},
		{"unknown channel", "bus/channel/pump/set", "ON", nil},
		{"foreign prefix", "other/channel/relay/set", "ON", nil},
		{"state topic", "bus/channel/relay/state", "ON", nil},
		{"nested id", "bus/channel/a/b/set", "ON", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, eng, _ := newTestBridge(t)
			b.handleSet(tt.topic, []byte(tt.payload))

			if len(eng.commands) != len(tt.want) {
				t.Fatalf("commands = %v, want %v", eng.commands, tt.want)
			}
			for i := range tt.want {
				if eng.commands[i].id != tt.want[i].id || !eng.commands[i].v.Equal(tt.want[i].v) {
					t.Errorf("command %d = %v, want %v", i, eng.commands[i], tt.want[i])
				}
			}
		})
	}
}

func TestBridge_HandleSetEngineError(t *testing.T) {
	b, eng, _ := newTestBridge(t)
	eng.commandErr = errors.New("discarded")

	// logged and dropped, never panics
	b.handleSet("bus/channel/relay/set", []byte("ON"))
	if len(eng.commands) != 0 {
		t.Errorf("commands = %v", eng.commands)
	}
}

func TestBridge_StopWithoutStart(t *testing.T) {
	b, _, _ := newTestBridge(t)
	b.Stop()
}
