// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// doubleHexWidth is the hex width of an IEEE-754 double
const doubleHexWidth = 16

// OversizeInputError is returned by PaddedHex when the encoded input does not
// fit in the requested width.
type OversizeInputError struct {
	Input  string
	Size   int // requested width in hex characters
	Length int // encoded width in hex characters
}

func (e *OversizeInputError) Error() string {
	return fmt.Sprintf("input %q encodes to %d hex characters (max %d)", e.Input, e.Length, e.Size)
}

// MalformedFieldError reports a field that could not be decoded.
type MalformedFieldError struct {
	Field  string
	Offset int // offset in hex characters, -1 when not applicable
	Value  string
	Reason string
}

func (e *MalformedFieldError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("malformed field %s at offset %d: %s", e.Field, e.Offset, e.Reason)
	}
	return fmt.Sprintf("malformed field %s: %s", e.Field, e.Reason)
}

// TextToHex returns the hex encoding of the UTF-8 bytes of s.
func TextToHex(s string) string {
	return hex.EncodeToString([]byte(s))
}

// PaddedHex hex-encodes s and right-pads it with '0' to exactly size characters.
func PaddedHex(s string, size int) (string, error) {
	h := TextToHex(s)
	if len(h) > size {
		return "", &OversizeInputError{Input: s, Size: size, Length: len(h)}
	}
	return h + strings.Repeat("0", size-len(h)), nil
}

// HexToASCII decodes hex to ASCII text and strips trailing NUL bytes.
func HexToASCII(h string) (string, error) {
	b, err := hex.DecodeString(h)
	if err != nil {
		return "", &MalformedFieldError{Field: "text", Offset: -1, Value: h, Reason: err.Error()}
	}
	for i, c := range b {
		if c > 0x7F {
			return "", &MalformedFieldError{Field: "text", Offset: i * 2, Value: h, Reason: fmt.Sprintf("non-ASCII byte 0x%02X", c)}
		}
	}
	return strings.TrimRight(string(b), "\x00"), nil
}

// HexToDouble decodes exactly 16 hex characters as a little-endian float64.
func HexToDouble(h string) (float64, error) {
	if len(h) != doubleHexWidth {
		return 0, &MalformedFieldError{Field: "double", Offset: -1, Value: h, Reason: fmt.Sprintf("expected %d hex characters, got %d", doubleHexWidth, len(h))}
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return 0, &MalformedFieldError{Field: "double", Offset: -1, Value: h, Reason: err.Error()}
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// DoubleToHex encodes f as 16 hex characters, little-endian.
func DoubleToHex(f float64) string {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(f))
	return hex.EncodeToString(b)
}

// MD5Hex returns the lower-case hex MD5 digest of s.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
