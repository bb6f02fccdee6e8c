// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

import (
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func TestTextToHex(t *testing.T) {
	assert.Equal(t, "3230323430372c", TextToHex("202407,"))
	assert.Equal(t, "", TextToHex(""))
	assert.Equal(t, "312c322c332c342c35", TextToHex("1,2,3,4,5"))
}

func TestPaddedHex(t *testing.T) {
	tests := []struct {
		name  string
		input string
		size  int
		want  string
	}{
		{"empty", "", 8, "00000000"},
		{"short", "ab", 8, "61620000"},
		{"exact", "abcd", 8, "61626364"},
		{"md5 digest", MD5Hex("user"), UsernameWidth, TextToHex(MD5Hex("user")) + strings.Repeat("0", 16)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PaddedHex(tt.input, tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, tt.size)
		})
	}
}

func TestPaddedHex_Oversize(t *testing.T) {
	_, err := PaddedHex("abcde", 8)
	require.Error(t, err)

	var oe *OversizeInputError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 8, oe.Size)
	assert.Equal(t, 10, oe.Length)
}

func TestPaddedHex_AlwaysExactWidth(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		n := rng.Intn(40)
		b := make([]byte, n)
		for j := range b {
			b[j] = byte(0x20 + rng.Intn(0x5F))
		}
		size := 2*n + 2*rng.Intn(20)
		got, err := PaddedHex(string(b), size)
		require.NoError(t, err)
		require.Len(t, got, size)
	}
}

func TestHexToASCII(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		want string
	}{
		{"plain", "323032343037", "202407"},
		{"trailing nul stripped", "3230323430370000", "202407"},
		{"interior nul kept", "3200300000", "2\x000"},
		{"all nul", "00000000", ""},
		{"uppercase hex", "4142", "AB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HexToASCII(tt.hex)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHexToASCII_Errors(t *testing.T) {
	_, err := HexToASCII("zz")
	var mf *MalformedFieldError
	require.ErrorAs(t, err, &mf)

	_, err = HexToASCII("41c3a9")
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, 2, mf.Offset)
}

func TestHexToDouble(t *testing.T) {
	v, err := HexToDouble("0000000000286240")
	require.NoError(t, err)
	assert.Equal(t, 145.25, v)

	v, err = HexToDouble("0000000000000000")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestHexToDouble_BadLength(t *testing.T) {
	for _, h := range []string{"", "00", "000000000000000000"} {
		_, err := HexToDouble(h)
		var mf *MalformedFieldError
		require.ErrorAs(t, err, &mf, "input %q", h)
	}

	_, err := HexToDouble("zz00000000000000")
	var mf *MalformedFieldError
	require.ErrorAs(t, err, &mf)
}

func TestDoubleRoundTrip(t *testing.T) {
	values := []float64{
		0, math.Copysign(0, -1), 1, -1, 0.1, 145.25, -3.375,
		1e300, -1e300, math.SmallestNonzeroFloat64, math.MaxFloat64,
		math.Inf(1), math.Inf(-1),
	}
	for _, x := range values {
		got, err := HexToDouble(DoubleToHex(x))
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(x), math.Float64bits(got), "value %v", x)
	}

	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		x := math.Float64frombits(rng.Uint64())
		if math.IsNaN(x) {
			continue
		}
		got, err := HexToDouble(DoubleToHex(x))
		require.NoError(t, err)
		require.Equal(t, x, got)
	}
}

func TestMD5Hex(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", MD5Hex(""))
	assert.Equal(t, "5f4dcc3b5aa765d61d8327deb882cf99", MD5Hex("password"))
}
