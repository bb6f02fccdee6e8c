// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

// DisplayType selects the layout of the energy response.
type DisplayType int

// Display types
const (
	DisplayUnknown DisplayType = iota
	DisplayLayout1             // 5 categories x 3 billing periods
	DisplayLayout3             // 5 categories x this month only
)

func (d DisplayType) String() string {
	switch d {
	case DisplayLayout1:
		return "LAYOUT_1"
	case DisplayLayout3:
		return "LAYOUT_3"
	default:
		return "UNKNOWN"
	}
}

// Menu response geometry, in hex characters. Placeholder values: no menu
// capture has been checked against them yet.
const (
	menuDisplayOffset = 56
	menuDisplayWidth  = 4
)

// Address response geometry, in hex characters
const (
	addressTownOffset = 24
	addressDongOffset = 32
	addressHoOffset   = 40
)

// ParseDisplayType maps the 4 hex digit code of a menu response to a
// DisplayType. Unrecognized codes map to DisplayUnknown.
//
// TODO: confirm the 0100 and 0300 codes against a menu capture from a
// current-generation wallpad.
func ParseDisplayType(code string) DisplayType {
	switch code {
	case "0100":
		return DisplayLayout1
	case "0300":
		return DisplayLayout3
	default:
		return DisplayUnknown
	}
}

// Field locates one (category, period) usage value in an energy response.
// Offsets and widths are in hex characters. LabelWidth is zero when the field
// carries no year-month label.
type Field struct {
	Category    Category
	Period      Period
	LabelOffset int
	LabelWidth  int
	ValueOffset int
	ValueWidth  int
}

// Layout is the offset table of one display type.
type Layout struct {
	Type   DisplayType
	Fields []Field
}

// Layout1 records are 28 bytes (label, reserved, value, reserved), five per
// period block, blocks of 140 bytes starting at byte 36. The period label is
// read from the electricity record of each block.
var layout1 = Layout{
	Type: DisplayLayout1,
	Fields: []Field{
		{Electricity, TwoMonthsAgo, 72, 16, 104, 16},
		{Gas, TwoMonthsAgo, 128, 0, 160, 16},
		{Water, TwoMonthsAgo, 184, 0, 216, 16},
		{HotWater, TwoMonthsAgo, 240, 0, 272, 16},
		{Heating, TwoMonthsAgo, 296, 0, 328, 16},

		{Electricity, LastMonth, 352, 16, 384, 16},
		{Gas, LastMonth, 408, 0, 440, 16},
		{Water, LastMonth, 464, 0, 496, 16},
		{HotWater, LastMonth, 520, 0, 552, 16},
		{Heating, LastMonth, 576, 0, 608, 16},

		{Electricity, ThisMonth, 632, 16, 664, 16},
		{Gas, ThisMonth, 688, 0, 720, 16},
		{Water, ThisMonth, 744, 0, 776, 16},
		{HotWater, ThisMonth, 800, 0, 832, 16},
		{Heating, ThisMonth, 856, 0, 888, 16},
	},
}

// Layout3 carries one 8 byte label at byte 36 followed by five 24 byte
// records (category id, reserved, value, reserved) starting at byte 44.
// The geometry is a placeholder until a Layout3 capture is available.
var layout3 = Layout{
	Type: DisplayLayout3,
	Fields: []Field{
		{Electricity, ThisMonth, 72, 16, 104, 16},
		{Gas, ThisMonth, 0, 0, 152, 16},
		{Water, ThisMonth, 0, 0, 200, 16},
		{HotWater, ThisMonth, 0, 0, 248, 16},
		{Heating, ThisMonth, 0, 0, 296, 16},
	},
}

// LayoutFor returns the offset table of d. It reports false for DisplayUnknown.
func LayoutFor(d DisplayType) (*Layout, bool) {
	switch d {
	case DisplayLayout1:
		return &layout1, true
	case DisplayLayout3:
		return &layout3, true
	default:
		return nil, false
	}
}

// MinLength returns the smallest response, in bytes, that holds every value
// field of the layout.
func (l *Layout) MinLength() int {
	end := 0
	for _, f := range l.Fields {
		if e := f.ValueOffset + f.ValueWidth; e > end {
			end = e
		}
	}
	return end / 2
}

// Periods returns the periods the layout reports.
func (l *Layout) Periods() []Period {
	seen := map[Period]bool{}
	var out []Period
	for _, f := range l.Fields {
		if !seen[f.Period] {
			seen[f.Period] = true
			out = append(out, f.Period)
		}
	}
	return out
}
