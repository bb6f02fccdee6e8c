// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

// Package sensor turns wallpad snapshots into per-utility sensor states and
// polls the wallpad on an interval.
package sensor

import (
	"sync"
	"time"

	"github.com/kocomstat/kocomstat/pkg/kocom"
)

// Descriptor names one published sensor.
type Descriptor struct {
	Key      string
	Name     string
	Icon     string
	Category kocom.Category
	Summary  bool // the summary sensor carries the whole snapshot mapping
}

// Descriptors lists the published sensors. The summary sensor comes first.
var Descriptors = []Descriptor{
	{Key: "energy", Name: "Kocom Energy Usage", Icon: "mdi:api", Summary: true},
	{Key: "electricity", Name: "Kocom Electricity Usage", Icon: "mdi:flash", Category: kocom.Electricity},
	{Key: "gas", Name: "Kocom Gas Usage", Icon: "mdi:fire", Category: kocom.Gas},
	{Key: "water", Name: "Kocom Water Usage", Icon: "mdi:water", Category: kocom.Water},
	{Key: "hot_water", Name: "Kocom Hot Water Usage", Icon: "mdi:water-boiler", Category: kocom.HotWater},
	{Key: "heating", Name: "Kocom Heating Usage", Icon: "mdi:radiator", Category: kocom.Heating},
}

// DescriptorFor returns the descriptor of a category sensor.
func DescriptorFor(c kocom.Category) Descriptor {
	for _, d := range Descriptors {
		if !d.Summary && d.Category == c {
			return d
		}
	}
	return Descriptor{Key: c.String(), Name: c.String(), Category: c}
}

// State is the published state of one category sensor: the this-month value
// last accepted as genuine.
type State struct {
	Descriptor
	Value      float64
	Label      string
	Known      bool
	Suppressed bool // the most recent update was withheld as anomalous
	UpdatedAt  time.Time
}

// History holds the last accepted reading per category and applies the
// anomaly policy to new snapshots.
type History struct {
	mu     sync.RWMutex
	states map[kocom.Category]*State
}

// NewHistory creates an empty history
func NewHistory() *History {
	h := &History{states: make(map[kocom.Category]*State)}
	for _, c := range kocom.Categories {
		h.states[c] = &State{Descriptor: DescriptorFor(c)}
	}
	return h
}

// Observed returns the billing label last accepted as "this month" per
// category. Categories without an accepted reading are absent.
func (h *History) Observed() map[kocom.Category]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.observedLocked()
}

func (h *History) observedLocked() map[kocom.Category]string {
	out := make(map[kocom.Category]string)
	for c, s := range h.states {
		if s.Known {
			out[c] = s.Label
		}
	}
	return out
}

// Apply validates snap against the history and updates every category whose
// this-month reading is not anomalous. Anomalous readings leave the previous
// state in place. The update is atomic.
func (h *History) Apply(snap *kocom.Snapshot) []kocom.Anomaly {
	h.mu.Lock()
	defer h.mu.Unlock()

	anomalies := kocom.ValidateSnapshot(snap, h.observedLocked())
	suppressed := make(map[kocom.Category]bool)
	for _, a := range anomalies {
		if a.Period == kocom.ThisMonth {
			suppressed[a.Category] = true
		}
	}

	for _, c := range kocom.Categories {
		r, ok := snap.Reading(c, kocom.ThisMonth)
		if !ok {
			continue
		}
		s := h.states[c]
		if suppressed[c] {
			s.Suppressed = true
			continue
		}
		s.Value = r.Value
		s.Label = snap.Label(kocom.ThisMonth)
		s.Known = true
		s.Suppressed = false
		s.UpdatedAt = snap.FetchedAt
	}
	return anomalies
}

// Restore seeds the history from a persisted snapshot without validation.
func (h *History) Restore(snap *kocom.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range kocom.Categories {
		r, ok := snap.Reading(c, kocom.ThisMonth)
		if !ok {
			continue
		}
		s := h.states[c]
		s.Value = r.Value
		s.Label = snap.Label(kocom.ThisMonth)
		s.Known = true
		s.UpdatedAt = snap.FetchedAt
	}
}

// State returns the state of category c.
func (h *History) State(c kocom.Category) (State, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.states[c]
	if !ok {
		return State{}, false
	}
	return *s, true
}

// States returns every category state in wire order.
func (h *History) States() []State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]State, 0, len(kocom.Categories))
	for _, c := range kocom.Categories {
		out = append(out, *h.states[c])
	}
	return out
}
