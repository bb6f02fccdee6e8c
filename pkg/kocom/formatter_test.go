// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSnapshot(t *testing.T) {
	snap := layout1Snapshot(t, nil)
	snap.Address = SiteAddress{Town: "0a00", Dong: "6500", Ho: "f503"}
	snap.FetchedAt = time.Date(2024, time.July, 15, 9, 30, 0, 0, time.UTC)

	out := FormatSnapshot(snap)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 7)
	assert.Equal(t, "[2024-07-15 09:30:00] site=0a00/6500/f503 display=LAYOUT_1 (3 months)", lines[0])
	assert.Contains(t, lines[1], "202405")
	assert.Contains(t, lines[1], "202407")
	assert.Contains(t, lines[2], "electricity")
	assert.Contains(t, lines[2], "312.50")
	assert.Contains(t, lines[6], "heating")
}

func TestFormatSnapshot_Degraded(t *testing.T) {
	out := FormatSnapshot(&Snapshot{DisplayType: DisplayUnknown})
	assert.Contains(t, out, "display=UNKNOWN")
	assert.Contains(t, out, "no usage data")
}

func TestFormatHexDump(t *testing.T) {
	out := FormatHexDump([]byte("0123456789abcdefXY"))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, "0000  30 31 32 33 34 35 36 37  38 39 61 62 63 64 65 66  |0123456789abcdef|", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0010  58 59 "))
	assert.True(t, strings.HasSuffix(lines[1], "|XY|"))
	assert.Equal(t, "", FormatHexDump(nil))
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&ClientError{Kind: KindTimeout, Step: StepAddress}, "timed out waiting for address response"},
		{&ClientError{Kind: KindAuthRejected, Step: StepAuth}, "authentication rejected (check credentials)"},
		{&ClientError{Kind: KindTimeout, Step: StepAuth, Err: context.Canceled}, "timed out waiting for auth response"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatError(tt.err))
	}
}

func TestFormatAnomaly(t *testing.T) {
	a := Anomaly{Type: AnomalyStaleDuplicate, Category: Gas, Message: "Stale"}
	assert.Equal(t, "STALE_DUPLICATE [gas] Stale", FormatAnomaly(a))
}
