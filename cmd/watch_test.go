// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kocomstat/kocomstat/pkg/kocom"
	"github.com/kocomstat/kocomstat/pkg/sensor"
)

func TestPrintUpdate(t *testing.T) {
	at := time.Date(2024, time.July, 15, 9, 30, 0, 0, time.Local)

	t.Run("failure keeps last reading", func(t *testing.T) {
		var out bytes.Buffer
		printUpdate(&out, sensor.Update{
			Snapshot: usageSnapshot(),
			Err:      &kocom.ClientError{Kind: kocom.KindAuthRejected, Step: kocom.StepAuth},
			At:       at,
		}, false)
		assert.Contains(t, out.String(), "[09:30:00.000]")
		assert.Contains(t, out.String(), "POLL FAILED:")
		assert.Contains(t, out.String(), "authentication rejected (check credentials)")
		assert.Contains(t, out.String(), "last good reading from 2024-07-15 09:30:00")
	})

	t.Run("quiet success prints nothing", func(t *testing.T) {
		var out bytes.Buffer
		printUpdate(&out, sensor.Update{Snapshot: usageSnapshot(), Fresh: true, At: at}, false)
		assert.Empty(t, out.String())
	})

	t.Run("show all prints the table", func(t *testing.T) {
		var out bytes.Buffer
		printUpdate(&out, sensor.Update{Snapshot: usageSnapshot(), Fresh: true, At: at, Took: 42 * time.Millisecond}, true)
		assert.Contains(t, out.String(), "poll ok in 42ms")
		assert.Contains(t, out.String(), "145.25")
	})

	t.Run("anomalies are always printed", func(t *testing.T) {
		var out bytes.Buffer
		printUpdate(&out, sensor.Update{
			Snapshot: usageSnapshot(),
			Fresh:    true,
			At:       at,
			Anomalies: []kocom.Anomaly{{
				Type:     kocom.AnomalyStaleDuplicate,
				Category: kocom.Gas,
				Period:   kocom.ThisMonth,
				Message:  "stale",
			}},
		}, false)
		assert.Contains(t, out.String(), "ANOMALY:")
		assert.Contains(t, out.String(), "STALE_DUPLICATE [gas] stale")
		assert.Contains(t, out.String(), "202407")
	})

	t.Run("degraded snapshot", func(t *testing.T) {
		var out bytes.Buffer
		snap := &kocom.Snapshot{DisplayType: kocom.DisplayUnknown, FetchedAt: at}
		printUpdate(&out, sensor.Update{Snapshot: snap, Fresh: true, At: at}, false)
		assert.Contains(t, out.String(), "NO USAGE DATA:")
		assert.Contains(t, out.String(), "display type UNKNOWN")
	})
}

func TestRunTextMode(t *testing.T) {
	defer func(all bool, every int) { showAll, statsInterval = all, every }(showAll, statsInterval)
	showAll, statsInterval = true, 2

	_, p := newTestModel(t, &stubFetcher{snap: usageSnapshot()})

	updates, unsubscribe := p.Subscribe(4)
	for i := 0; i < 2; i++ {
		_, err := p.Refresh(context.Background())
		require.NoError(t, err)
	}
	unsubscribe()

	var out bytes.Buffer
	err := runTextMode(context.Background(), &out, p, updates, "192.168.0.10:15000 via TCP", time.Hour)
	require.NoError(t, err)

	s := out.String()
	assert.Contains(t, s, "Kocomstat - Watch Mode")
	assert.Contains(t, s, "Mode: All polls")
	assert.Equal(t, 2, strings.Count(s, "poll ok in"))
	assert.Contains(t, s, "=== Statistics")
	assert.Contains(t, s, fmt.Sprintf("Total Polls:     %8d", 2))
}

func TestRunTextMode_StopsOnCancel(t *testing.T) {
	_, p := newTestModel(t, &stubFetcher{})
	updates, unsubscribe := p.Subscribe(1)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	require.NoError(t, runTextMode(ctx, &out, p, updates, "x", time.Hour))
	assert.Contains(t, out.String(), fmt.Sprintf("Total Polls:     %8d", 0))
}

func TestNewPoller(t *testing.T) {
	cfg := &Config{Interval: 5 * time.Minute}
	p := newPoller(cfg, &stubFetcher{})
	assert.Equal(t, 5*time.Minute, p.Interval())
	assert.NoError(t, p.Restore())

	cfg.StateFile = t.TempDir() + "/snapshot.cbor"
	p = newPoller(cfg, &stubFetcher{snap: usageSnapshot()})
	require.NoError(t, p.Restore())
	_, err := p.Refresh(context.Background())
	require.NoError(t, err)

	restored := newPoller(cfg, &stubFetcher{})
	require.NoError(t, restored.Restore())
	require.NotNil(t, restored.Latest())
	assert.Equal(t, usageSnapshot().Map(), restored.Latest().Map())
}
