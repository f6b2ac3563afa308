// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Thermoquad/simplebinary/pkg/master"
	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

// ============================================================
// Test Helpers
// ============================================================

type fakeMonitorEngine struct {
	channels *simplebinary.ChannelSet
	registry *master.Registry
	commands []string
}

func (f *fakeMonitorEngine) Channels() *simplebinary.ChannelSet { return f.channels }

func (f *fakeMonitorEngine) Snapshot() master.Snapshot {
	return master.Snapshot{Taken: time.Now(), Mode: "ONCHANGE", Devices: f.registry.Snapshot()}
}

func (f *fakeMonitorEngine) Command(_ context.Context, id string, v simplebinary.Value) error {
	f.commands = append(f.commands, id+"="+v.String())
	return nil
}

func newFakeMonitorEngine(t *testing.T) *fakeMonitorEngine {
	t.Helper()
	lamp, err := simplebinary.NewChannel("lamp", simplebinary.ChannelDimmer, "2:4", "2:5")
	if err != nil {
		t.Fatal(err)
	}
	set, err := simplebinary.NewChannelSet(lamp)
	if err != nil {
		t.Fatal(err)
	}
	reg := master.NewRegistry(nil)
	reg.Get(2).SetState(master.StateConnected)
	reg.Get(5).SetState(master.StateNotResponding)
	return &fakeMonitorEngine{channels: set, registry: reg}
}

// ============================================================
// Command Input
// ============================================================

func TestParseCommandInput(t *testing.T) {
	eng := newFakeMonitorEngine(t)

	tests := []struct {
		input   string
		wantID  string
		wantErr bool
	}{
		{"lamp=40", "lamp", false},
		{" lamp = 40 ", "lamp", false},
		{"lamp", "", true},
		{"lamp=", "", true},
		{"=40", "", true},
		{"pump=1", "", true},
		{"lamp=bright", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			id, _, err := parseCommandInput(eng.channels, tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func TestMonitorModel_SubmitCommand(t *testing.T) {
	eng := newFakeMonitorEngine(t)
	m := initialMonitorModel(eng, "tcp://test", nil)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(monitorModel)
	if m.focusedField != focusCommandInput {
		t.Fatalf("focus = %d", m.focusedField)
	}
	m.commandInput.SetValue("lamp=40")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(monitorModel)
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg := cmd()
	ev, ok := msg.(monitorEventMsg)
	if !ok || ev.isError {
		t.Fatalf("msg = %#v", msg)
	}
	if len(eng.commands) != 1 || eng.commands[0] != "lamp=40" {
		t.Errorf("commands = %v", eng.commands)
	}
	if m.commandInput.Value() != "" {
		t.Errorf("input not cleared: %q", m.commandInput.Value())
	}
}

func TestMonitorModel_BadCommandLogged(t *testing.T) {
	eng := newFakeMonitorEngine(t)
	m := initialMonitorModel(eng, "tcp://test", nil)
	m.cycleFocus(1)
	m.commandInput.SetValue("nonsense")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(monitorModel)
	if cmd != nil {
		t.Error("expected no command")
	}
	if len(m.eventLog) != 1 || !m.eventLog[0].isError {
		t.Errorf("log = %+v", m.eventLog)
	}
}

// ============================================================
// Rendering
// ============================================================

func TestMonitorModel_View(t *testing.T) {
	eng := newFakeMonitorEngine(t)
	m := initialMonitorModel(eng, "tcp://test", func() bool { return true })

	updated, _ := m.Update(monitorBatchMsg{events: []monitorEvent{{at: time.Now(), message: "lamp = 40"}}})
	view := updated.(monitorModel).View()
	for _, want := range []string{"SIMPLEBINARY MONITOR", "Device 2", "Device 5", "CONNECTED", "lamp = 40"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0ms"},
		{850 * time.Millisecond, "850ms"},
		{12 * time.Second, "12s"},
		{3*time.Minute + 4*time.Second, "3m 4s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
		{50 * time.Hour, "2d 2h"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatAge(tt.d); got != tt.want {
				t.Errorf("formatAge(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}
