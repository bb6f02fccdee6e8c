// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

// Package kocom implements the client side of the Kocom wallpad energy protocol.
//
// The wallpad listens on TCP port 15000 and answers fixed-length binary frames.
// A poll authenticates, optionally asks for the display type (which selects the
// energy response layout), asks for the site address, and finally requests the
// monthly usage of electricity, gas, water, hot water and heating.
//
// Frames are handled as lower-case hex strings because every field offset of
// the wire format is expressed in hex characters.
package kocom

import "time"

// Connection defaults
const (
	DefaultPort        = 15000
	DefaultStepTimeout = 10 * time.Second
	readBufferSize     = 1024
)

// Frame layout
const (
	frameMagic = "78563412"
	headerSize = 28 // bytes, including the 16 byte address block
)

// Credential blob widths in hex characters
const (
	UsernameWidth  = 80
	PasswordWidth  = 80
	PushTokenWidth = 512
	PhoneWidth     = 32
)

// Address code width in hex characters (town, dong, ho)
const addressCodeWidth = 4

// Category is a metered utility.
type Category int

// Utility categories, in wire order
const (
	Electricity Category = iota
	Gas
	Water
	HotWater
	Heating
)

// Categories lists every category in wire order.
var Categories = []Category{Electricity, Gas, Water, HotWater, Heating}

func (c Category) String() string {
	switch c {
	case Electricity:
		return "electricity"
	case Gas:
		return "gas"
	case Water:
		return "water"
	case HotWater:
		return "hot_water"
	case Heating:
		return "heating"
	default:
		return "unknown"
	}
}

// Period is a billing month relative to the poll date.
type Period int

// Billing periods, oldest first
const (
	TwoMonthsAgo Period = iota
	LastMonth
	ThisMonth
)

// Periods lists every period, oldest first.
var Periods = []Period{TwoMonthsAgo, LastMonth, ThisMonth}

func (p Period) String() string {
	switch p {
	case TwoMonthsAgo:
		return "two_months_ago"
	case LastMonth:
		return "last_month"
	case ThisMonth:
		return "this_month"
	default:
		return "unknown"
	}
}

// Step identifies one request/response exchange of a session.
type Step int

// Session steps
const (
	StepNone Step = iota
	StepConnect
	StepAuth
	StepMenu
	StepAddress
	StepEnergy
)

func (s Step) String() string {
	switch s {
	case StepConnect:
		return "connect"
	case StepAuth:
		return "auth"
	case StepMenu:
		return "menu"
	case StepAddress:
		return "address"
	case StepEnergy:
		return "energy"
	default:
		return "none"
	}
}

// State is the protocol state of a session.
type State int

// Session states
const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
	StateMenuKnown
	StateAddressKnown
	StateEnergyReceived
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateMenuKnown:
		return "MENU_KNOWN"
	case StateAddressKnown:
		return "ADDRESS_KNOWN"
	case StateEnergyReceived:
		return "ENERGY_RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// Protocol selects the device generation.
type Protocol int

// Protocol generations
const (
	// ProtocolCurrent queries the menu for the display type before the energy request.
	ProtocolCurrent Protocol = iota
	// ProtocolLegacy skips the menu query and always uses Layout1.
	ProtocolLegacy
)

func (p Protocol) String() string {
	if p == ProtocolLegacy {
		return "legacy"
	}
	return "current"
}

// ParseProtocol maps a config value to a Protocol.
func ParseProtocol(s string) (Protocol, bool) {
	switch s {
	case "", "current":
		return ProtocolCurrent, true
	case "legacy":
		return ProtocolLegacy, true
	}
	return ProtocolCurrent, false
}
