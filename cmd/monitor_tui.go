// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/simplebinary/pkg/master"
	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	monitorMaxLogEntries = 100
	commandTimeout       = 2 * time.Second
)

// Focus states
const (
	focusDeviceList = iota
	focusCommandInput
	focusCount
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// monitorEngine is the part of *master.Engine the TUI drives
type monitorEngine interface {
	Snapshot() master.Snapshot
	Channels() *simplebinary.ChannelSet
	Command(ctx context.Context, channelID string, v simplebinary.Value) error
}

type monitorEvent struct {
	at      time.Time
	message string
	isError bool
}

// Messages
type (
	monitorTickMsg  time.Time
	monitorEventMsg monitorEvent
	monitorBatchMsg struct {
		events []monitorEvent
	}
)

// deviceItem adapts a device snapshot to list.Item
type deviceItem struct {
	info master.DeviceInfo
}

func (d deviceItem) Title() string { return fmt.Sprintf("Device %d", d.info.ID) }

func (d deviceItem) Description() string {
	desc := fmt.Sprintf("%s  loss %d%%", d.info.State, d.info.PacketLoss)
	if d.info.Degraded {
		desc += "  degraded"
	}
	return desc
}

func (d deviceItem) FilterValue() string { return fmt.Sprintf("%d", d.info.ID) }

type monitorModel struct {
	engine    monitorEngine
	connInfo  string
	connected func() bool

	snapshot   master.Snapshot
	deviceList list.Model

	commandInput textinput.Model
	focusedField int

	eventLog []monitorEvent

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(engine monitorEngine, connInfo string, connected func() bool) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "channel=value"
	ti.CharLimit = 64
	ti.Width = 30

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	deviceList := list.New([]list.Item{}, delegate, 30, 10)
	deviceList.Title = "Devices"
	deviceList.SetShowStatusBar(false)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(false)

	m := monitorModel{
		engine:       engine,
		connInfo:     connInfo,
		connected:    connected,
		deviceList:   deviceList,
		commandInput: ti,
		focusedField: focusDeviceList,
		width:        80,
		height:       24,
	}
	m.refresh()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.deviceList.SetSize(30, max(m.height/2-4, 6))

	case monitorTickMsg:
		m.refresh()
		return m, monitorTickCmd()

	case monitorEventMsg:
		m.addLogEntry(monitorEvent(msg))

	case monitorBatchMsg:
		for _, ev := range msg.events {
			m.addLogEntry(ev)
		}
		m.refresh()
	}

	var cmd tea.Cmd
	if m.focusedField == focusDeviceList {
		m.deviceList, cmd = m.deviceList.Update(msg)
	}
	return m, cmd
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField != focusCommandInput {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "enter":
		if m.focusedField == focusCommandInput {
			cmd := m.submitCommand()
			return m, cmd
		}
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusCommandInput:
		m.commandInput, cmd = m.commandInput.Update(msg)
	case focusDeviceList:
		m.deviceList, cmd = m.deviceList.Update(msg)
	}
	return m, cmd
}

func (m *monitorModel) cycleFocus(delta int) {
	m.focusedField = (m.focusedField + delta + focusCount) % focusCount
	if m.focusedField == focusCommandInput {
		m.commandInput.Focus()
	} else {
		m.commandInput.Blur()
	}
}

// submitCommand parses the "channel=value" typed into the command input.
// The command is queued off the UI goroutine since an idle bus drains it
// immediately.
func (m *monitorModel) submitCommand() tea.Cmd {
	text := strings.TrimSpace(m.commandInput.Value())
	if text == "" {
		return nil
	}
	channelID, v, err := parseCommandInput(m.engine.Channels(), text)
	if err != nil {
		m.addLogEntry(monitorEvent{at: time.Now(), message: err.Error(), isError: true})
		return nil
	}
	m.commandInput.SetValue("")

	engine := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := engine.Command(ctx, channelID, v); err != nil {
			return monitorEventMsg{at: time.Now(), message: fmt.Sprintf("%s: %v", channelID, err), isError: true}
		}
		return monitorEventMsg{at: time.Now(), message: fmt.Sprintf("Queued %s = %s", channelID, v)}
	}
}

// parseCommandInput splits "channel=value" and parses the value for the
// channel's kind
func parseCommandInput(channels *simplebinary.ChannelSet, text string) (string, simplebinary.Value, error) {
	id, raw, ok := strings.Cut(text, "=")
	id, raw = strings.TrimSpace(id), strings.TrimSpace(raw)
	if !ok || id == "" || raw == "" {
		return "", simplebinary.Value{}, fmt.Errorf("expected channel=value, got %q", text)
	}
	ch := channels.Get(id)
	if ch == nil {
		return "", simplebinary.Value{}, fmt.Errorf("unknown channel %q", id)
	}
	v, err := simplebinary.ParseValue(ch, raw)
	if err != nil {
		return "", simplebinary.Value{}, err
	}
	return id, v, nil
}

// refresh pulls a new engine snapshot and rebuilds the device list,
// keeping the selection on the same index
func (m *monitorModel) refresh() {
	m.snapshot = m.engine.Snapshot()
	sort.Slice(m.snapshot.Devices, func(i, j int) bool {
		return m.snapshot.Devices[i].ID < m.snapshot.Devices[j].ID
	})

	items := make([]list.Item, len(m.snapshot.Devices))
	for i, info := range m.snapshot.Devices {
		items[i] = deviceItem{info: info}
	}
	idx := m.deviceList.Index()
	m.deviceList.SetItems(items)
	if idx < len(items) {
		m.deviceList.Select(idx)
	}
}

func (m *monitorModel) addLogEntry(ev monitorEvent) {
	m.eventLog = append(m.eventLog, ev)
	if len(m.eventLog) > monitorMaxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-monitorMaxLogEntries:]
	}
}

func (m monitorModel) selectedDevice() (master.DeviceInfo, bool) {
	item, ok := m.deviceList.SelectedItem().(deviceItem)
	if !ok {
		return master.DeviceInfo{}, false
	}
	return item.info, true
}

//////////////////////////////////////////////////////////////
// Rendering
//////////////////////////////////////////////////////////////

var (
	monitorTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("12")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	monitorHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))

	monitorLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("12")).
				Bold(true)

	monitorValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("10"))

	monitorErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("9")).
				Bold(true)

	monitorWarningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11"))

	monitorBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	monitorFocusedBoxStyle = monitorBoxStyle.
				BorderForeground(lipgloss.Color("12"))
)

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	s.WriteString(monitorTitleStyle.Render("SIMPLEBINARY MONITOR"))
	s.WriteString(" ")
	status := monitorValueStyle.Render(m.connInfo)
	if m.connected != nil && !m.connected() {
		status = monitorWarningStyle.Render("DISCONNECTED")
	}
	s.WriteString(monitorHeaderStyle.Render(fmt.Sprintf("| %s | %s | tab: focus, q: quit", status, m.snapshot.Mode)))
	s.WriteString("\n\n")

	leftWidth := 34
	rightWidth := max(m.width-leftWidth-6, 30)

	listStyle := monitorBoxStyle.Width(leftWidth)
	if m.focusedField == focusDeviceList {
		listStyle = monitorFocusedBoxStyle.Width(leftWidth)
	}
	devicePanel := listStyle.Render(m.deviceList.View())
	detailPanel := monitorBoxStyle.Width(rightWidth).Render(m.renderDevicePanel())
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, devicePanel, " ", detailPanel))
	s.WriteString("\n")

	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n")

	inputStyle := monitorBoxStyle.Width(m.width - 4)
	if m.focusedField == focusCommandInput {
		inputStyle = monitorFocusedBoxStyle.Width(m.width - 4)
	}
	s.WriteString(inputStyle.Render(monitorLabelStyle.Render("Command: ") + m.commandInput.View()))
	s.WriteString("\n")

	s.WriteString(m.renderEventLog())
	return s.String()
}

func (m monitorModel) renderDevicePanel() string {
	info, ok := m.selectedDevice()
	if !ok {
		return monitorHeaderStyle.Render("No devices yet")
	}

	var s strings.Builder
	row := func(label, value string) {
		s.WriteString(fmt.Sprintf("%s %s\n", monitorLabelStyle.Render(label), value))
	}

	stateStyle := monitorValueStyle
	if info.State != master.StateConnected {
		stateStyle = monitorErrorStyle
	}
	row("Device:", fmt.Sprintf("%d", info.ID))
	row("State:", stateStyle.Render(info.State.String())+monitorHeaderStyle.Render(" (was "+info.Previous.String()+")"))
	if !info.ChangedAt.IsZero() {
		row("Changed:", formatAge(m.snapshot.Taken.Sub(info.ChangedAt))+" ago")
	}
	if info.LastCommunication.IsZero() {
		row("Last seen:", monitorHeaderStyle.Render("never"))
	} else {
		row("Last seen:", formatAge(m.snapshot.Taken.Sub(info.LastCommunication))+" ago")
	}
	row("Packet loss:", fmt.Sprintf("%d%%", info.PacketLoss))
	if info.Degraded {
		row("Degraded:", monitorWarningStyle.Render(fmt.Sprintf("yes (%d failures)", info.Failures)))
	}
	row("Queued:", fmt.Sprintf("%d", info.QueueLen))

	if len(info.Values) > 0 {
		s.WriteString("\n")
		s.WriteString(monitorLabelStyle.Render("CHANNELS"))
		s.WriteString("\n")
		ids := make([]string, 0, len(info.Values))
		for id := range info.Values {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			v := info.Values[id]
			s.WriteString(fmt.Sprintf("  %-16s %s %s\n",
				id,
				monitorValueStyle.Render(v.Value),
				monitorHeaderStyle.Render(formatAge(m.snapshot.Taken.Sub(v.Updated))+" ago")))
		}
	}
	return strings.TrimRight(s.String(), "\n")
}

func (m monitorModel) renderStatisticsBar() string {
	f := m.snapshot.Frames
	field := func(label string, v uint64) string {
		return monitorLabelStyle.Render(label) + " " + monitorValueStyle.Render(fmt.Sprintf("%d", v))
	}
	bad := func(label string, v uint64) string {
		style := monitorValueStyle
		if v > 0 {
			style = monitorErrorStyle
		}
		return monitorLabelStyle.Render(label) + " " + style.Render(fmt.Sprintf("%d", v))
	}
	line := strings.Join([]string{
		field("Sent:", f.Sent),
		field("Received:", f.Received),
		field("Valid:", f.Valid),
		bad("CRC:", f.CRCErrors),
		bad("Timeouts:", f.Timeouts),
		bad("Resends:", f.Resends),
		bad("Dropped:", f.Dropped),
	}, "  ")
	return monitorBoxStyle.Width(m.width - 4).Render(line)
}

func (m monitorModel) renderEventLog() string {
	var s strings.Builder
	s.WriteString(monitorLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := max(m.height-30, 5)
	start := max(len(m.eventLog)-logHeight, 0)

	if len(m.eventLog) == 0 {
		s.WriteString(monitorHeaderStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.eventLog[start:] {
		icon, style := "i", monitorWarningStyle
		if entry.isError {
			icon, style = "x", monitorErrorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			monitorHeaderStyle.Render(entry.at.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}
	return monitorBoxStyle.Width(m.width - 4).Render(strings.TrimRight(s.String(), "\n"))
}

// formatAge renders a duration the way a person would say it: "850ms",
// "12s", "3m 4s", "2h 5m"
func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
}
