package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDecimal(t *testing.T) {
	tests := []struct {
		value    string
		decimals int
		want     string
	}{
		{"12345", 2, "123.45"},
		{"5", 3, "0.005"},
		{"0", 2, "0.00"},
		{"12345", 0, "12345"},
		{"1000000000", 9, "1.000000000"},
		{"123", 3, "0.123"},
		{"340282366920938463463374607431768211455", 9, "340282366920938463463374607431.768211455"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := FormatDecimal(tt.value, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			back, err := ParseDecimal(got, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.value, back)
		})
	}
}

func TestFormatDecimalRejects(t *testing.T) {
	for _, v := range []string{"", "-5", "+5", "1.5", "abc"} {
		_, err := FormatDecimal(v, 2)
		assert.ErrorIs(t, err, ErrInvalidInput, "value %q", v)
	}
	for _, d := range []int{-1, MaxDecimals + 1, 1 << 31} {
		_, err := FormatDecimal("5", d)
		assert.ErrorIs(t, err, ErrInvalidInput, "decimals %d", d)
		_, err = ParseDecimal("5", d)
		assert.ErrorIs(t, err, ErrInvalidInput, "decimals %d", d)
	}

	got, err := FormatDecimal("5", MaxDecimals)
	require.NoError(t, err)
	assert.Len(t, got, MaxDecimals+2)
}

func TestParseDecimalRejectsExtraPrecision(t *testing.T) {
	_, err := ParseDecimal("1.234", 2)
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := ParseDecimal("1.2", 2)
	require.NoError(t, err)
	assert.Equal(t, "120", got)
}

func TestFixed(t *testing.T) {
	f, err := ParseFixed("43.1234", 4)
	require.NoError(t, err)
	assert.Equal(t, "431234", f.Value.String())
	assert.Equal(t, 43.1234, f.Float64())
	assert.Equal(t, "43.1234", f.String())

	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `"43.1234"`, string(b))

	var back Fixed
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, f.Decimals, back.Decimals)
	assert.Zero(t, f.Value.Cmp(back.Value))

	assert.Equal(t, 0.0, Fixed{}.Float64())
	assert.Equal(t, "0.005", NewFixed(5, 3).String())
}
