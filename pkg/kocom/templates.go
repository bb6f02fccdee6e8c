// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Frame is an assembled request, hex encoded.
type Frame struct {
	Name string
	Hex  string
}

// Bytes returns the wire bytes of the frame.
func (f Frame) Bytes() ([]byte, error) {
	return hex.DecodeString(f.Hex)
}

// Len returns the frame length in bytes.
func (f Frame) Len() int {
	return len(f.Hex) / 2
}

// template is a fixed request with named substitution slots.
// Slots are written as {name} in format; widths are in hex characters.
type template struct {
	name   string
	format string
	slots  map[string]int
	size   int // total bytes
}

func zeroHex(n int) string {
	return strings.Repeat("00", n)
}

// header builds the 12 byte frame header: magic, command, version, payload length.
func header(command string, payload int) string {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(payload))
	return frameMagic + command + "1001" + hex.EncodeToString(b)
}

// addressBlock is the 16 byte block following the header.
const addressBlock = "{town}0000{dong}0000{ho}000000000000"

var (
	authTemplate = template{
		name: "auth",
		format: header("0000", 380) + zeroHex(16) + zeroHex(24) +
			"{username}{password}" + "02000000" + "{push}{phone}",
		slots: map[string]int{
			"username": UsernameWidth,
			"password": PasswordWidth,
			"push":     PushTokenWidth,
			"phone":    PhoneWidth,
		},
		size: 408,
	}

	// The menu and Layout3 requests are placeholders; unlike the auth, address
	// and Layout1 requests they have not been matched against captured traffic.
	menuTemplate = template{
		name:   "menu",
		format: header("0600", 16) + zeroHex(16) + "01000000" + zeroHex(12),
		size:   44,
	}

	addressTemplate = template{
		name:   "address",
		format: header("0200", 32) + zeroHex(20) + "18000000" + "f0000000" + zeroHex(20),
		size:   60,
	}

	energyLayout1Template = template{
		name:   "energy/layout1",
		format: header("7800", 32) + addressBlock + "{months}" + zeroHex(12),
		slots: map[string]int{
			"town":   addressCodeWidth,
			"dong":   addressCodeWidth,
			"ho":     addressCodeWidth,
			"months": 40,
		},
		size: 60,
	}

	energyLayout3Template = template{
		name:   "energy/layout3",
		format: header("7800", 48) + addressBlock + "{date}00" + "{categories}000000" + zeroHex(16),
		slots: map[string]int{
			"town":       addressCodeWidth,
			"dong":       addressCodeWidth,
			"ho":         addressCodeWidth,
			"date":       38,
			"categories": 18,
		},
		size: 76,
	}
)

// layout3Categories is the category order marker of a Layout3 request.
const layout3Categories = "1,2,3,4,5"

// authResponseChecker is the only response accepted for an authentication request.
var authResponseChecker = header("0100", 4) + zeroHex(16) + zeroHex(4)

// errorHeaderPrefix starts every error frame the wallpad sends instead of data.
var errorHeaderPrefix = frameMagic + "ffff"

// render substitutes values into the template and validates the result.
func (t template) render(values map[string]string) (Frame, error) {
	pairs := make([]string, 0, len(t.slots)*2)
	for slot, width := range t.slots {
		v, ok := values[slot]
		if !ok {
			return Frame{}, errors.Errorf("%s frame: missing slot %s", t.name, slot)
		}
		if len(v) != width {
			return Frame{}, errors.Errorf("%s frame: slot %s is %d hex characters, want %d", t.name, slot, len(v), width)
		}
		pairs = append(pairs, "{"+slot+"}", strings.ToLower(v))
	}
	out := t.format
	if len(pairs) > 0 {
		out = strings.NewReplacer(pairs...).Replace(t.format)
	}
	f := Frame{Name: t.name, Hex: out}
	if err := validateFrame(f, t.size); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// validateFrame checks the total length, the hex alphabet and the declared
// payload length of an assembled frame.
func validateFrame(f Frame, size int) error {
	if len(f.Hex) != size*2 {
		return &FrameLengthError{Frame: f.Name, Want: size, Got: len(f.Hex)}
	}
	b, err := f.Bytes()
	if err != nil {
		return errors.Wrapf(err, "%s frame", f.Name)
	}
	if declared := int(binary.LittleEndian.Uint32(b[8:12])); declared != size-headerSize {
		return errors.Errorf("%s frame: header declares %d payload bytes, frame carries %d", f.Name, declared, size-headerSize)
	}
	return nil
}

// BuildAuthRequest assembles the authentication request for c.
func BuildAuthRequest(c Credentials) (Frame, error) {
	return authTemplate.render(map[string]string{
		"username": c.username,
		"password": c.password,
		"push":     c.pushToken,
		"phone":    c.phone,
	})
}

// MenuRequest returns the constant menu (display type) query.
func MenuRequest() Frame {
	f, err := menuTemplate.render(nil)
	if err != nil {
		panic(err)
	}
	return f
}

// AddressRequest returns the constant site address query.
func AddressRequest() Frame {
	f, err := addressTemplate.render(nil)
	if err != nil {
		panic(err)
	}
	return f
}

// BuildEnergyRequest assembles the energy query for the given layout, address
// and poll date.
func BuildEnergyRequest(d DisplayType, addr SiteAddress, now time.Time) (Frame, error) {
	values := map[string]string{
		"town": addr.Town,
		"dong": addr.Dong,
		"ho":   addr.Ho,
	}
	switch d {
	case DisplayLayout1:
		values["months"] = TextToHex(layout1DateField(now))
		return energyLayout1Template.render(values)
	case DisplayLayout3:
		values["date"] = TextToHex(layout3DateField(now))
		values["categories"] = TextToHex(layout3Categories)
		return energyLayout3Template.render(values)
	default:
		return Frame{}, errors.Errorf("no energy request for display type %s", d)
	}
}
