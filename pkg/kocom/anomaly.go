// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

import (
	"fmt"
	"math"
)

// AnomalyType represents different kinds of suspicious readings
type AnomalyType int

const (
	// AnomalyStaleDuplicate is the device glitch where this month repeats last
	// month's value while the billing month has not changed.
	AnomalyStaleDuplicate AnomalyType = iota
	// AnomalyInvalidValue is a NaN, infinite or negative usage value.
	AnomalyInvalidValue
)

func (t AnomalyType) String() string {
	switch t {
	case AnomalyStaleDuplicate:
		return "stale_duplicate"
	case AnomalyInvalidValue:
		return "invalid_value"
	default:
		return "unknown"
	}
}

// Anomaly is one suspicious reading of a snapshot.
type Anomaly struct {
	Type     AnomalyType
	Category Category
	Period   Period
	Message  string
	Details  map[string]interface{}
}

// Error implements the error interface
func (a *Anomaly) Error() string {
	return a.Message
}

// duplicateTolerance is the relative tolerance of the duplicate check
const duplicateTolerance = 1e-9

// PeriodSignal pairs the current period reading of a category with the
// adjacent (last month) reading of the same response.
type PeriodSignal struct {
	Category    Category
	Current     UsageReading
	Previous    UsageReading
	HasPrevious bool
	Duplicate   bool
}

// Signals returns one PeriodSignal per category that has a this-month reading.
func (s *Snapshot) Signals() []PeriodSignal {
	var out []PeriodSignal
	for _, c := range Categories {
		cur, ok := s.Reading(c, ThisMonth)
		if !ok {
			continue
		}
		sig := PeriodSignal{Category: c, Current: cur}
		if prev, ok := s.Reading(c, LastMonth); ok {
			sig.Previous = prev
			sig.HasPrevious = true
			sig.Duplicate = almostEqual(cur.Value, prev.Value)
		}
		out = append(out, sig)
	}
	return out
}

func almostEqual(a, b float64) bool {
	if a == b {
		return true
	}
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	return diff <= duplicateTolerance*scale
}

// ValidateSnapshot detects anomalies in snap. observed holds, per category, the
// billing label the consumer last accepted as "this month"; a category absent
// from observed never reports a stale duplicate.
func ValidateSnapshot(snap *Snapshot, observed map[Category]string) []Anomaly {
	anomalies := []Anomaly{}

	for _, r := range snap.Readings {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) || r.Value < 0 {
			anomalies = append(anomalies, Anomaly{
				Type:     AnomalyInvalidValue,
				Category: r.Category,
				Period:   r.Period,
				Message:  fmt.Sprintf("Invalid %s value=%v", r.Key(), r.Value),
				Details:  map[string]interface{}{"key": r.Key(), "value": r.Value},
			})
		}
	}

	for _, sig := range snap.Signals() {
		if !sig.Duplicate {
			continue
		}
		label := snap.Label(ThisMonth)
		prevLabel, seen := observed[sig.Category]
		if !seen || label != prevLabel {
			continue
		}
		anomalies = append(anomalies, Anomaly{
			Type:     AnomalyStaleDuplicate,
			Category: sig.Category,
			Period:   ThisMonth,
			Message: fmt.Sprintf("Stale %s reading: this month %v equals last month for %s",
				sig.Category, sig.Current.Value, label),
			Details: map[string]interface{}{
				"value":          sig.Current.Value,
				"previous_value": sig.Previous.Value,
				"label":          label,
			},
		})
	}

	return anomalies
}
