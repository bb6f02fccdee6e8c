// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

import (
	"fmt"
	"time"
)

// UsageReading is one decoded (category, period) value.
type UsageReading struct {
	Category  Category
	Period    Period
	YearMonth string // empty when the wire format carries no label for this field
	Value     float64
}

// Key returns the flat mapping key, e.g. "gas_usage_last_month".
func (r UsageReading) Key() string {
	return ReadingKey(r.Category, r.Period)
}

// ReadingKey returns the flat mapping key of a (category, period) pair.
func ReadingKey(c Category, p Period) string {
	return fmt.Sprintf("%s_usage_%s", c, p)
}

// Snapshot is the result of one successful poll.
type Snapshot struct {
	Address     SiteAddress
	DisplayType DisplayType
	Labels      map[Period]string
	Readings    []UsageReading
	FetchedAt   time.Time
}

// Degraded reports whether the poll succeeded without usage values, which
// happens when the wallpad reports an unknown display type.
func (s *Snapshot) Degraded() bool {
	return s.DisplayType == DisplayUnknown || len(s.Readings) == 0
}

// Reading returns the reading of (c, p), if present.
func (s *Snapshot) Reading(c Category, p Period) (UsageReading, bool) {
	for _, r := range s.Readings {
		if r.Category == c && r.Period == p {
			return r, true
		}
	}
	return UsageReading{}, false
}

// Label returns the year-month label of p, or "" when the response had none.
func (s *Snapshot) Label(p Period) string {
	if s.Labels == nil {
		return ""
	}
	return s.Labels[p]
}

// Map returns the flat mapping consumed by the presentation layer: one
// "{category}_usage_{period}" entry per reading plus the period labels under
// "two_months_ago", "last_month" and "this_month".
func (s *Snapshot) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(s.Readings)+len(s.Labels))
	for p, label := range s.Labels {
		m[p.String()] = label
	}
	for _, r := range s.Readings {
		m[r.Key()] = r.Value
	}
	return m
}
