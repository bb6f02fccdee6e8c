// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// FormatSnapshot formats a snapshot into a human-readable table
func FormatSnapshot(s *Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] site=%s display=%s\n",
		s.FetchedAt.Format("2006-01-02 15:04:05"), s.Address, FormatDisplayType(s.DisplayType))

	if s.Degraded() {
		b.WriteString("  no usage data (display type not supported)\n")
		return b.String()
	}

	layout, _ := LayoutFor(s.DisplayType)
	periods := layout.Periods()

	fmt.Fprintf(&b, "  %-12s", "")
	for _, p := range periods {
		label := s.Label(p)
		if label == "" {
			label = p.String()
		}
		fmt.Fprintf(&b, " %14s", label)
	}
	b.WriteString("\n")

	for _, c := range Categories {
		fmt.Fprintf(&b, "  %-12s", c)
		for _, p := range periods {
			if r, ok := s.Reading(c, p); ok {
				fmt.Fprintf(&b, " %14.2f", r.Value)
			} else {
				fmt.Fprintf(&b, " %14s", "-")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatDisplayType returns a description of a display type
func FormatDisplayType(d DisplayType) string {
	switch d {
	case DisplayLayout1:
		return "LAYOUT_1 (3 months)"
	case DisplayLayout3:
		return "LAYOUT_3 (this month)"
	default:
		return "UNKNOWN"
	}
}

// FormatHexDump renders data as offset, hex and ASCII columns, 16 bytes per line
func FormatHexDump(data []byte) string {
	var b strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		line := data[off:end]

		fmt.Fprintf(&b, "%04x  ", off)
		for i := 0; i < 16; i++ {
			if i < len(line) {
				fmt.Fprintf(&b, "%02x ", line[i])
			} else {
				b.WriteString("   ")
			}
			if i == 7 {
				b.WriteString(" ")
			}
		}
		b.WriteString(" |")
		for _, c := range line {
			if c >= 0x20 && c < 0x7F {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString("|\n")
	}
	return b.String()
}

// FormatError returns a one-line description of a poll error
func FormatError(err error) string {
	var ce *ClientError
	if !errors.As(err, &ce) {
		return err.Error()
	}
	switch ce.Kind {
	case KindConnectionFailed:
		return fmt.Sprintf("connection failed: %v", ce.Err)
	case KindTimeout:
		return fmt.Sprintf("timed out waiting for %s response", ce.Step)
	case KindAuthRejected:
		return "authentication rejected (check credentials)"
	case KindMalformedResponse:
		return fmt.Sprintf("malformed %s response: %v", ce.Step, ce.Err)
	case KindMalformedField:
		return fmt.Sprintf("malformed field in %s response: %v", ce.Step, ce.Err)
	default:
		return ce.Error()
	}
}

// FormatAnomaly formats an anomaly as a log line
func FormatAnomaly(a Anomaly) string {
	return fmt.Sprintf("%s [%s] %s", strings.ToUpper(a.Type.String()), a.Category, a.Message)
}
