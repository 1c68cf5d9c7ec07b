package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloats(t *testing.T) {
	tests := []struct {
		name    string
		seed    string
		salt    string
		nonce   uint64
		cursor  uint64
		count   int
		wantLen int
	}{
		{
			name:    "single float",
			seed:    "round-seed",
			salt:    "jackpot-lottery",
			nonce:   1,
			count:   1,
			wantLen: 1,
		},
		{
			name:    "spans a block",
			seed:    "round-seed",
			salt:    "jackpot-lottery",
			nonce:   1,
			count:   12,
			wantLen: 12,
		},
		{
			name:    "cursor on block boundary",
			seed:    "round-seed",
			salt:    "jackpot-lottery",
			nonce:   1,
			cursor:  31,
			count:   2,
			wantLen: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			floats := Floats(tt.seed, tt.salt, tt.nonce, tt.cursor, tt.count)
			require.Len(t, floats, tt.wantLen)
			for i, f := range floats {
				assert.GreaterOrEqual(t, f, 0.0, "float %d", i)
				assert.Less(t, f, 1.0, "float %d", i)
			}
		})
	}
}

func TestFloatsDeterministic(t *testing.T) {
	a := Floats("deterministic", "salt", 42, 0, 5)
	b := Floats("deterministic", "salt", 42, 0, 5)
	assert.Equal(t, a, b)

	c := Floats("deterministic", "salt", 43, 0, 5)
	assert.NotEqual(t, a, c, "different nonces produced identical streams")
}

func TestFloatStreamCursorContinuity(t *testing.T) {
	all := Floats("seed", "salt", 7, 0, 16)
	// cursor is in bytes, four per float
	tail := Floats("seed", "salt", 7, 32, 8)
	assert.Equal(t, all[8:], tail)
}

func TestBytesToFloat(t *testing.T) {
	tests := []struct {
		name     string
		bytes    [4]byte
		expected float64
	}{
		{"all zeros", [4]byte{0, 0, 0, 0}, 0.0},
		{"first byte only", [4]byte{1, 0, 0, 0}, 1.0 / 256.0},
		{"last byte only", [4]byte{0, 0, 0, 1}, 1.0 / (256.0 * 256.0 * 256.0 * 256.0)},
		{
			"pattern",
			[4]byte{128, 64, 32, 16},
			128.0/256.0 + 64.0/(256.0*256.0) + 32.0/(256.0*256.0*256.0) + 16.0/(256.0*256.0*256.0*256.0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, bytesToFloat(tt.bytes))
		})
	}

	assert.Less(t, bytesToFloat([4]byte{255, 255, 255, 255}), 1.0)
}
