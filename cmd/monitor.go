// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/mpqtt/internal/poller"
	"github.com/Thermoquad/mpqtt/internal/publish"
	"github.com/Thermoquad/mpqtt/pkg/pi30/commands"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live terminal view of inverter readings",
	Long: `Poll the inverter with the same cycle as 'run' and show the latest
readings, warnings and failed commands in a terminal UI. Nothing is published
to MQTT.

Press 'q' to quit.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// programPublisher forwards every message the poller publishes to the TUI
type programPublisher struct {
	p *tea.Program
}

func (pp *programPublisher) Publish(topic string, payload []byte) error {
	pp.p.Send(publishedMsg{topic: topic, payload: append([]byte(nil), payload...)})
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dial, connInfo, err := NewDialer(cfg.Inverter)
	if err != nil {
		return err
	}
	enc, err := publish.NewEncoder("json")
	if err != nil {
		return err
	}

	pub := &programPublisher{}
	p := poller.New(poller.Options{
		Dial:     dial,
		Sink:     publish.NewSink(pub, enc, cfg.MQTT.Topic),
		Inverter: cfg.Inverter,
		Poll:     cfg.Poll,
		Mode:     cfg.Mode,
		Debug:    cfg.Debug,
	})

	program := tea.NewProgram(newMonitorModel(connInfo, cfg.MQTT.Topic, p.Store()), tea.WithAltScreen())
	pub.p = program

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		_ = p.Run(ctx)
	}()

	_, err = program.Run()
	return err
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type publishedMsg struct {
	topic   string
	payload []byte
}

type monitorModel struct {
	connInfo string
	topic    string
	store    *poller.Store

	spinner spinner.Model
	table   table.Model

	mode        string
	firmware    string
	serial      string
	warnings    []string
	stats       *publish.Stats
	lastUpdate  time.Time
	haveReading bool

	eventLog      []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

func newMonitorModel(connInfo, topic string, store *poller.Store) monitorModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Reading", Width: 20},
			{Title: "Value", Width: 30},
		}),
		table.WithHeight(13),
		table.WithFocused(false),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = lipgloss.NewStyle()
	t.SetStyles(styles)

	return monitorModel{
		connInfo:      connInfo,
		topic:         strings.TrimSuffix(topic, "/"),
		store:         store,
		spinner:       sp,
		table:         t,
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case publishedMsg:
		m.handlePublished(msg)
	}

	return m, nil
}

func (m *monitorModel) handlePublished(msg publishedMsg) {
	sub := strings.TrimPrefix(msg.topic, m.topic+"/")

	switch sub {
	case publish.TopicError:
		if len(msg.payload) == 0 {
			return
		}
		var report publish.ErrorReport
		if err := json.Unmarshal(msg.payload, &report); err != nil {
			m.addLogEntry(fmt.Sprintf("undecodable error report: %v", err), true)
			return
		}
		m.addLogEntry(fmt.Sprintf("%s: %s error: %s", report.Command, report.Kind, report.Error), true)

	case publish.TopicStats:
		var st publish.Stats
		if err := json.Unmarshal(msg.payload, &st); err == nil {
			m.stats = &st
		}

	default:
		m.refresh()
	}
}

// refresh rebuilds the view from the typed readings in the store
func (m *monitorModel) refresh() {
	if r, ok := m.store.Get("QMOD"); ok {
		if mode, ok := r.Value.(commands.Mode); ok {
			if m.mode != "" && m.mode != mode.String() {
				m.addLogEntry(fmt.Sprintf("Mode changed: %s -> %s", m.mode, mode), false)
			}
			m.mode = mode.String()
		}
	}
	if r, ok := m.store.Get("QVFW"); ok {
		m.firmware, _ = r.Value.(string)
	}
	if r, ok := m.store.Get("QID"); ok {
		m.serial, _ = r.Value.(string)
	}
	if r, ok := m.store.Get("QPIWS"); ok {
		if ws, ok := r.Value.(commands.WarningStatusResponse); ok {
			m.warnings = ws.Active
		}
	}
	if r, ok := m.store.Get("QPIGS"); ok {
		if gs, ok := r.Value.(commands.GeneralStatusResponse); ok {
			m.table.SetRows(statusRows(gs))
			m.lastUpdate = r.UpdatedAt
			m.haveReading = true
		}
	}
}

func statusRows(gs commands.GeneralStatusResponse) []table.Row {
	rows := []table.Row{
		{"Grid", fmt.Sprintf("%.1f V  %.1f Hz", gs.GridVoltage, gs.GridFrequency)},
		{"AC output", fmt.Sprintf("%.1f V  %.1f Hz", gs.ACOutVoltage, gs.ACOutFrequency)},
		{"Load", fmt.Sprintf("%d W  %d VA  %d%%", gs.ACOutActivePower, gs.ACOutApparentPower, gs.OutLoadPercent)},
		{"Battery", fmt.Sprintf("%.2f V  %d%%", gs.BatteryVoltage, gs.BatteryCapacity)},
		{"Battery charge", fmt.Sprintf("%d A", gs.BatteryChargeCurrent)},
		{"Battery discharge", fmt.Sprintf("%d A", gs.BatteryDischargeCurrent)},
		{"Charge status", gs.DeviceStatus.ChargeStatus.String()},
		{"PV input", fmt.Sprintf("%.1f V  %.1f A", gs.PVInputVoltage, gs.PVInputCurrent)},
		{"Bus", fmt.Sprintf("%d V", gs.BusVoltage)},
		{"Heat sink", fmt.Sprintf("%d°C", gs.InverterHeatSinkTemp)},
	}
	if gs.PVChargingPower != nil {
		rows = append(rows, table.Row{"PV charging power", fmt.Sprintf("%d W", *gs.PVChargingPower)})
	}
	return rows
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("MPQTT - INVERTER MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Press 'q' to quit", m.connInfo)))
	s.WriteString("\n\n")

	if !m.haveReading {
		s.WriteString(m.spinner.View())
		s.WriteString(infoStyle.Render(" Waiting for the first reading..."))
		s.WriteString("\n\n")
	} else {
		info := fmt.Sprintf("%s %s   %s %s   %s %s",
			labelStyle.Render("Mode:"), valueStyle.Render(orDash(m.mode)),
			labelStyle.Render("Firmware:"), valueStyle.Render(orDash(m.firmware)),
			labelStyle.Render("Serial:"), valueStyle.Render(orDash(m.serial)),
		)
		s.WriteString(info)
		s.WriteString("\n")

		if len(m.warnings) > 0 {
			s.WriteString(labelStyle.Render("Warnings: "))
			s.WriteString(errorStyle.Render(strings.Join(m.warnings, ", ")))
		} else {
			s.WriteString(labelStyle.Render("Warnings: "))
			s.WriteString(valueStyle.Render("none"))
		}
		s.WriteString("\n")

		s.WriteString(boxStyle.Render(m.table.View()))
		s.WriteString("\n")

		updated := headerStyle.Render(fmt.Sprintf("Updated %s", m.lastUpdate.Format("15:04:05")))
		if m.stats != nil {
			updated += headerStyle.Render(fmt.Sprintf(" | cycle %d ms, status loop %d ms",
				m.stats.OuterUpdateDuration, m.stats.InnerUpdateDuration))
		}
		s.WriteString(updated)
		s.WriteString("\n\n")
	}

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 24
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	logContent := strings.Builder{}
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), infoStyle.Render("ℹ "+entry.message)))
			}
		}
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))

	return s.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
