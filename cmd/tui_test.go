// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kocomstat/kocomstat/pkg/kocom"
	"github.com/kocomstat/kocomstat/pkg/sensor"
)

// stubFetcher returns a fixed result and counts calls.
type stubFetcher struct {
	mu    sync.Mutex
	snap  *kocom.Snapshot
	err   error
	calls int
}

func (f *stubFetcher) FetchUsage(context.Context) (*kocom.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.snap, f.err
}

var testFetchedAt = time.Date(2024, time.July, 15, 9, 30, 0, 0, time.UTC)

// usageSnapshot is a Layout1 snapshot where gas did not move since last month.
func usageSnapshot() *kocom.Snapshot {
	return &kocom.Snapshot{
		Address:     kocom.SiteAddress{Town: "0a00", Dong: "6500", Ho: "f503"},
		DisplayType: kocom.DisplayLayout1,
		Labels: map[kocom.Period]string{
			kocom.TwoMonthsAgo: "202405",
			kocom.LastMonth:    "202406",
			kocom.ThisMonth:    "202407",
		},
		Readings: []kocom.UsageReading{
			{Category: kocom.Electricity, Period: kocom.LastMonth, YearMonth: "202406", Value: 298},
			{Category: kocom.Electricity, Period: kocom.ThisMonth, YearMonth: "202407", Value: 145.25},
			{Category: kocom.Gas, Period: kocom.LastMonth, YearMonth: "202406", Value: 12},
			{Category: kocom.Gas, Period: kocom.ThisMonth, YearMonth: "202407", Value: 12},
		},
		FetchedAt: testFetchedAt,
	}
}

func newTestModel(t *testing.T, f *stubFetcher) (model, *sensor.Poller) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	p := sensor.NewPoller(f, sensor.Config{Logger: logger})
	m := initialModel(context.Background(), p, nil, "192.168.0.10:15000 via TCP", time.Hour, false)
	m.now = func() time.Time { return testFetchedAt }
	return m, p
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(model)
	require.True(t, ok)
	return nm, cmd
}

func TestModel_Initial(t *testing.T) {
	m, _ := newTestModel(t, &stubFetcher{})

	assert.True(t, m.polling)
	view := m.View()
	assert.Contains(t, view, "KOCOMSTAT - ENERGY USAGE")
	assert.Contains(t, view, "Polling wallpad...")
	assert.Contains(t, view, "(no events yet)")
	assert.NotContains(t, view, "Usage (site")
}

func TestModel_FailedPoll(t *testing.T) {
	m, _ := newTestModel(t, &stubFetcher{})

	m, cmd := update(t, m, pollUpdateMsg{
		Err: &kocom.ClientError{Kind: kocom.KindTimeout, Step: kocom.StepAuth},
		At:  testFetchedAt,
	})
	assert.NotNil(t, cmd, "must keep listening for updates")
	assert.False(t, m.polling)
	require.Len(t, m.eventLog, 1)
	assert.True(t, m.eventLog[0].isError)
	assert.Equal(t, "POLL FAILED: timed out waiting for auth response", m.eventLog[0].message)

	view := m.View()
	assert.Contains(t, view, "✗ timed out waiting for auth response")
	assert.Contains(t, view, "retrying with backoff")
}

func TestModel_SuccessfulPoll(t *testing.T) {
	m, _ := newTestModel(t, &stubFetcher{})
	m.showAll = true
	m.now = func() time.Time { return testFetchedAt.Add(10 * time.Minute) }

	m, _ = update(t, m, pollUpdateMsg{
		Snapshot: usageSnapshot(),
		Fresh:    true,
		At:       testFetchedAt,
		Took:     250 * time.Millisecond,
	})
	assert.False(t, m.polling)
	assert.Equal(t, testFetchedAt.Add(time.Hour), m.nextPoll)
	require.Len(t, m.eventLog, 1)
	assert.Equal(t, "Poll ok in 250ms (LAYOUT_1)", m.eventLog[0].message)

	view := m.View()
	assert.Contains(t, view, "✓ Last poll 09:30:00")
	assert.Contains(t, view, "(next in 50m0s)")
	assert.Contains(t, view, "Usage (site 0a00/6500/f503, 2024-07-15 09:30)")
	assert.Contains(t, view, "202407")
	assert.Contains(t, view, "145.25")
	assert.Contains(t, view, "298.00")
}

func TestModel_DegradedPoll(t *testing.T) {
	m, _ := newTestModel(t, &stubFetcher{})

	snap := &kocom.Snapshot{
		Address:     kocom.SiteAddress{Town: "0a00", Dong: "6500", Ho: "f503"},
		DisplayType: kocom.DisplayUnknown,
		FetchedAt:   testFetchedAt,
	}
	m, _ = update(t, m, pollUpdateMsg{Snapshot: snap, Fresh: true, At: testFetchedAt})
	require.Len(t, m.eventLog, 1)
	assert.Equal(t, "No usage data (display type UNKNOWN)", m.eventLog[0].message)
	assert.Contains(t, m.View(), "no usage data (display type UNKNOWN)")
}

func TestModel_SuppressedValueIsMarked(t *testing.T) {
	m, p := newTestModel(t, &stubFetcher{})

	// The first reading is accepted, the repeat with an unmoved label is not
	require.Empty(t, p.History().Apply(usageSnapshot()))
	anomalies := p.History().Apply(usageSnapshot())
	require.Len(t, anomalies, 1)

	m, _ = update(t, m, pollUpdateMsg{Snapshot: usageSnapshot(), Fresh: true, Anomalies: anomalies, At: testFetchedAt})
	require.Len(t, m.eventLog, 1)
	assert.True(t, m.eventLog[0].isError)
	assert.Contains(t, m.eventLog[0].message, "STALE_DUPLICATE [gas]")
	assert.Contains(t, m.View(), "12.00*")
}

func TestModel_ManualRefresh(t *testing.T) {
	f := &stubFetcher{snap: usageSnapshot()}
	m, _ := newTestModel(t, f)

	// Ignored while a poll is in flight
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.Nil(t, cmd)
	assert.Empty(t, m.eventLog)

	m.polling = false
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)
	assert.True(t, m.polling)
	require.Len(t, m.eventLog, 1)
	assert.Equal(t, "Manual refresh", m.eventLog[0].message)

	msg := m.refreshCmd()()
	assert.Equal(t, refreshDoneMsg{}, msg)
	assert.Equal(t, 1, f.calls)

	m, _ = update(t, m, msg)
	assert.False(t, m.polling)
}

func TestModel_SpinnerStopsWhenIdle(t *testing.T) {
	m, _ := newTestModel(t, &stubFetcher{})

	_, cmd := update(t, m, m.spinner.Tick())
	assert.NotNil(t, cmd)

	m.polling = false
	_, cmd = update(t, m, m.spinner.Tick())
	assert.Nil(t, cmd)
}

func TestModel_Quit(t *testing.T) {
	m, _ := newTestModel(t, &stubFetcher{})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Equal(t, "Shutting down...\n", m.View())
}

func TestModel_LogIsBounded(t *testing.T) {
	m, _ := newTestModel(t, &stubFetcher{})
	for i := 0; i < m.maxLogEntries+20; i++ {
		m.addLogEntry("event", false)
	}
	assert.Len(t, m.eventLog, m.maxLogEntries)
}

func TestWaitForUpdate(t *testing.T) {
	ch := make(chan sensor.Update, 1)
	ch <- sensor.Update{At: testFetchedAt}

	msg := waitForUpdate(ch)()
	assert.Equal(t, pollUpdateMsg{At: testFetchedAt}, msg)

	close(ch)
	assert.Equal(t, updatesClosedMsg{}, waitForUpdate(ch)())
}
