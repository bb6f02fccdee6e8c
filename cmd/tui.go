// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kocomstat/kocomstat/pkg/kocom"
	"github.com/kocomstat/kocomstat/pkg/sensor"
)

// dashboardSource is the poller as seen by watch. *sensor.Poller implements it.
type dashboardSource interface {
	Stats() kocom.Statistics
	History() *sensor.History
	Refresh(ctx context.Context) (*kocom.Snapshot, error)
}

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings and info
}

// TUI model
type model struct {
	ctx           context.Context
	source        dashboardSource
	updates       <-chan sensor.Update
	connInfo      string
	interval      time.Duration
	showAll       bool
	spinner       spinner.Model
	polling       bool
	latest        *kocom.Snapshot
	lastErr       error
	lastPoll      time.Time
	nextPoll      time.Time
	eventLog      []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
	now           func() time.Time
}

// Messages
type tickMsg time.Time
type pollUpdateMsg sensor.Update
type refreshDoneMsg struct {
	err error
}
type updatesClosedMsg struct{}

func initialModel(ctx context.Context, source dashboardSource, updates <-chan sensor.Update, connInfo string, interval time.Duration, showAll bool) model {
	return model{
		ctx:           ctx,
		source:        source,
		updates:       updates,
		connInfo:      connInfo,
		interval:      interval,
		showAll:       showAll,
		spinner:       spinner.New(spinner.WithSpinner(spinner.Dot)),
		polling:       true, // the poller polls immediately on start
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
		now:           time.Now,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		waitForUpdate(m.updates),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForUpdate delivers the next poll update as a message.
func waitForUpdate(ch <-chan sensor.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return updatesClosedMsg{}
		}
		return pollUpdateMsg(u)
	}
}

func (m model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		_, err := m.source.Refresh(m.ctx)
		return refreshDoneMsg{err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if m.polling {
				return m, nil
			}
			m.polling = true
			m.addLogEntry("Manual refresh", false)
			return m, tea.Batch(m.refreshCmd(), m.spinner.Tick)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		if !m.polling {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case refreshDoneMsg:
		// The update itself arrives through the subscription
		m.polling = false

	case updatesClosedMsg:
		m.polling = false
		m.addLogEntry("Poller stopped", true)

	case pollUpdateMsg:
		m.applyUpdate(sensor.Update(msg))
		return m, waitForUpdate(m.updates)
	}

	return m, nil
}

// applyUpdate records one poll outcome.
func (m *model) applyUpdate(u sensor.Update) {
	m.polling = false
	m.latest = u.Snapshot
	m.lastErr = u.Err
	m.lastPoll = u.At
	m.nextPoll = u.At.Add(m.interval)

	if u.Err != nil {
		m.addLogEntry("POLL FAILED: "+kocom.FormatError(u.Err), true)
		return
	}
	for _, a := range u.Anomalies {
		m.addLogEntry(kocom.FormatAnomaly(a), true)
	}
	if u.Snapshot.Degraded() {
		m.addLogEntry(fmt.Sprintf("No usage data (display type %s)", u.Snapshot.DisplayType), false)
	} else if m.showAll {
		m.addLogEntry(fmt.Sprintf("Poll ok in %s (%s)", u.Took.Round(time.Millisecond), u.Snapshot.DisplayType), false)
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: m.now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("KOCOMSTAT - ENERGY USAGE"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Wallpad: %s | Interval: %s | Press 'r' to refresh, 'q' to quit",
		m.connInfo, m.interval)))
	s.WriteString("\n\n")

	// Poll status
	switch {
	case m.polling:
		s.WriteString(warningStyle.Render(m.spinner.View() + " Polling wallpad..."))
	case m.lastErr != nil:
		s.WriteString(errorStyle.Render("✗ " + kocom.FormatError(m.lastErr)))
		s.WriteString(headerStyle.Render(" (retrying with backoff)"))
	case !m.lastPoll.IsZero():
		s.WriteString(statsValueStyle.Render("✓ Last poll " + m.lastPoll.Format("15:04:05")))
		if wait := m.nextPoll.Sub(m.now()); wait > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (next in %s)", wait.Truncate(time.Second))))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	stats := m.source.Stats()
	var okPercent, failPercent float64
	if stats.TotalPolls > 0 {
		okPercent = float64(stats.SuccessfulPolls) * 100.0 / float64(stats.TotalPolls)
		failPercent = float64(stats.FailedPolls()) * 100.0 / float64(stats.TotalPolls)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Polls:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.TotalPolls)),
		statsLabelStyle.Render("OK:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.SuccessfulPolls, okPercent)),
		statsLabelStyle.Render("Failed:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.FailedPolls(), failPercent)),
	))

	if stats.ConnectionErrors > 0 || stats.Timeouts > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
			statsLabelStyle.Render("Connection:"), errorStyle.Render(fmt.Sprintf("%d", stats.ConnectionErrors)),
			statsLabelStyle.Render("Timeouts:"), errorStyle.Render(fmt.Sprintf("%d", stats.Timeouts)),
		))
		if stats.Timeouts > 0 {
			var steps []string
			for _, step := range []kocom.Step{kocom.StepConnect, kocom.StepAuth, kocom.StepMenu, kocom.StepAddress, kocom.StepEnergy} {
				if n := stats.TimeoutsByStep[step]; n > 0 {
					steps = append(steps, fmt.Sprintf("%s: %d", step, n))
				}
			}
			statsContent.WriteString(" (" + headerStyle.Render(strings.Join(steps, ", ")) + ")")
		}
		statsContent.WriteString("\n")
	}

	if stats.AuthRejections > 0 || stats.MalformedReplies > 0 || stats.MalformedFields > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Rejected:"), errorStyle.Render(fmt.Sprintf("%d", stats.AuthRejections)),
			statsLabelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", stats.MalformedReplies+stats.MalformedFields)),
		))
	}

	if stats.Anomalies > 0 || stats.DegradedPolls > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d)   %s %s\n",
			statsLabelStyle.Render("Anomalies:"), warningStyle.Render(fmt.Sprintf("%d", stats.Anomalies)),
			headerStyle.Render("stale"), stats.StaleDuplicates,
			headerStyle.Render("invalid"), stats.InvalidValues,
			statsLabelStyle.Render("No data:"), warningStyle.Render(fmt.Sprintf("%d", stats.DegradedPolls)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Poll Time:"), statsValueStyle.Render(stats.LastPollDuration.Round(time.Millisecond).String()),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/h", stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/h", stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Usage table (only shown once a reading exists)
	if m.latest != nil {
		s.WriteString(statsLabelStyle.Render(fmt.Sprintf("Usage (site %s, %s):", m.latest.Address, m.latest.FetchedAt.Format("2006-01-02 15:04"))))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(m.usageTable(headerStyle, statsLabelStyle, statsValueStyle, warningStyle)))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 22 // Reserve space for header, stats and usage
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

// usageTable renders the latest readings, one row per category. A category
// whose latest this-month value was withheld is marked with '*'.
func (m model) usageTable(header, label, value, warn lipgloss.Style) string {
	snap := m.latest
	if snap.Degraded() {
		return warn.Render(fmt.Sprintf("no usage data (display type %s)", snap.DisplayType))
	}

	layout, _ := kocom.LayoutFor(snap.DisplayType)
	periods := layout.Periods()

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-12s", ""))
	for _, p := range periods {
		l := snap.Label(p)
		if l == "" {
			l = p.String()
		}
		b.WriteString(header.Render(fmt.Sprintf(" %14s", l)))
	}

	history := m.source.History()
	for _, c := range kocom.Categories {
		b.WriteString("\n")
		b.WriteString(label.Render(fmt.Sprintf("%-12s", c)))
		for _, p := range periods {
			r, ok := snap.Reading(c, p)
			if !ok {
				b.WriteString(fmt.Sprintf(" %14s", "-"))
				continue
			}
			cell := fmt.Sprintf(" %14.2f", r.Value)
			if p == kocom.ThisMonth {
				if st, ok := history.State(c); ok && st.Suppressed {
					b.WriteString(warn.Render(cell + "*"))
					continue
				}
			}
			b.WriteString(value.Render(cell))
		}
	}
	return b.String()
}
