// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The kocomstat Authors

package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kocomstat/kocomstat/pkg/kocom"
)

func TestRequestFrames(t *testing.T) {
	addr := kocom.SiteAddress{Town: "0a00", Dong: "6500", Ho: "f503"}
	frames, err := requestFrames(addr, time.Date(2024, time.July, 15, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	require.Len(t, frames, 5)

	want := []struct {
		name string
		size int
	}{
		{"auth", 408},
		{"menu", 44},
		{"address", 60},
		{"energy/layout1", 60},
		{"energy/layout3", 76},
	}
	for i, w := range want {
		assert.Equal(t, w.name, frames[i].Name)
		assert.Equal(t, w.size, frames[i].Len(), w.name)
	}

	// No credential material leaks into the auth dump
	auth, err := frames[0].Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, auth[:4])
	assert.NotContains(t, frames[0].Hex, testUserHash)
}

func TestRequestFrames_BadAddress(t *testing.T) {
	_, err := requestFrames(kocom.SiteAddress{Town: "0a", Dong: "6500", Ho: "f503"}, time.Now())
	assert.Error(t, err)
}

func TestPrintFrames(t *testing.T) {
	frames, err := requestFrames(kocom.SiteAddress{Town: "0000", Dong: "0000", Ho: "0000"}, time.Now())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printFrames(&out, frames))

	s := out.String()
	assert.Contains(t, s, "AUTH (408 bytes)\n0000  78 56 34 12")
	assert.Contains(t, s, "MENU (44 bytes)")
	assert.Contains(t, s, "ADDRESS (60 bytes)")
	assert.Contains(t, s, "ENERGY/LAYOUT1 (60 bytes)")
	assert.Contains(t, s, "ENERGY/LAYOUT3 (76 bytes)")
	assert.Equal(t, 5, strings.Count(s, " bytes)\n"))
}
