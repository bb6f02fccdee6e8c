// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

import (
	"fmt"

	"github.com/pkg/errors"
)

// Usage is the decoded content of an energy response.
type Usage struct {
	Labels   map[Period]string
	Readings []UsageReading
}

// DecodeEnergy extracts every usage value of the layout selected by d from a
// hex encoded energy response.
//
// A value field outside the payload or holding invalid hex is an error.
// Labels are optional: a label that is out of bounds, empty or not ASCII is
// left out and the readings of that period carry no YearMonth.
func DecodeEnergy(payload string, d DisplayType) (*Usage, error) {
	layout, ok := LayoutFor(d)
	if !ok {
		return nil, errors.Errorf("no layout for display type %s", d)
	}

	u := &Usage{Labels: make(map[Period]string)}
	for _, f := range layout.Fields {
		if f.LabelWidth == 0 {
			continue
		}
		if label, ok := decodeLabel(payload, f); ok {
			u.Labels[f.Period] = label
		}
	}

	u.Readings = make([]UsageReading, 0, len(layout.Fields))
	for _, f := range layout.Fields {
		v, err := decodeValue(payload, f)
		if err != nil {
			return nil, err
		}
		u.Readings = append(u.Readings, UsageReading{
			Category:  f.Category,
			Period:    f.Period,
			YearMonth: u.Labels[f.Period],
			Value:     v,
		})
	}
	return u, nil
}

func decodeLabel(payload string, f Field) (string, bool) {
	end := f.LabelOffset + f.LabelWidth
	if end > len(payload) {
		return "", false
	}
	label, err := HexToASCII(payload[f.LabelOffset:end])
	if err != nil || label == "" {
		return "", false
	}
	return label, true
}

func decodeValue(payload string, f Field) (float64, error) {
	name := ReadingKey(f.Category, f.Period)
	end := f.ValueOffset + f.ValueWidth
	if end > len(payload) {
		return 0, &MalformedFieldError{
			Field:  name,
			Offset: f.ValueOffset,
			Reason: fmt.Sprintf("value ends at %d, payload has %d hex characters", end, len(payload)),
		}
	}
	raw := payload[f.ValueOffset:end]
	v, err := HexToDouble(raw)
	if err != nil {
		var mf *MalformedFieldError
		if errors.As(err, &mf) {
			return 0, &MalformedFieldError{Field: name, Offset: f.ValueOffset, Value: raw, Reason: mf.Reason}
		}
		return 0, err
	}
	return v, nil
}

// ParseAddress extracts the town, dong and ho codes of an address response.
func ParseAddress(payload string) (SiteAddress, error) {
	fields := []struct {
		name   string
		offset int
	}{
		{"town", addressTownOffset},
		{"dong", addressDongOffset},
		{"ho", addressHoOffset},
	}
	codes := make([]string, len(fields))
	for i, f := range fields {
		end := f.offset + addressCodeWidth
		if end > len(payload) {
			return SiteAddress{}, &MalformedFieldError{
				Field:  f.name,
				Offset: f.offset,
				Reason: fmt.Sprintf("field ends at %d, payload has %d hex characters", end, len(payload)),
			}
		}
		codes[i] = payload[f.offset:end]
	}
	return SiteAddress{Town: codes[0], Dong: codes[1], Ho: codes[2]}, nil
}

// ParseMenu extracts the display type of a menu response. A payload too short
// to hold the code yields DisplayUnknown.
func ParseMenu(payload string) (DisplayType, string) {
	end := menuDisplayOffset + menuDisplayWidth
	if end > len(payload) {
		return DisplayUnknown, ""
	}
	code := payload[menuDisplayOffset:end]
	return ParseDisplayType(code), code
}
