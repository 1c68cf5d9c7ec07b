package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamas-finance/round-settler/internal/engine"
)

type constSource float64

func (c constSource) Float64() float64 { return float64(c) }

func TestGenerateWalk(t *testing.T) {
	tests := []struct {
		name      string
		r         float64
		maxNumber int
		length    int
		want      []int
	}{
		{"minimum strides", 0, 36, 4, []int{2, 3, 4, 5, 0, 0}},
		{"maximum strides", 0.9999, 36, 4, []int{9, 17, 25, 33, 0, 0}},
		{"full length", 0, 36, 6, []int{2, 3, 4, 5, 6, 7}},
		{"walk leaves pool", 0.99, 2, 1, []int{0, 0, 0, 0, 0, 0}},
		{"walk stops midway", 0.9999, 10, 4, []int{4, 7, 10, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewTicketGenerator(constSource(tt.r)).Generate(tt.maxNumber, tt.length)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateRejectsBadParams(t *testing.T) {
	g := NewTicketGenerator(constSource(0))
	for _, p := range [][2]int{{0, 4}, {36, 0}, {36, 7}} {
		_, err := g.Generate(p[0], p[1])
		assert.ErrorIs(t, err, ErrInvalidTicketParams, "Generate(%d, %d)", p[0], p[1])
	}
	_, err := g.GenerateN(-1, 36, 4)
	assert.ErrorIs(t, err, ErrInvalidTicketParams)
}

func TestReproducibleTicketsAreStableAndValid(t *testing.T) {
	a, err := NewTicketGenerator(ReproducibleSource("seed", 11)).GenerateN(50, 36, 4)
	require.NoError(t, err)
	b, err := NewTicketGenerator(ReproducibleSource("seed", 11)).GenerateN(50, 36, 4)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	for i := range a {
		assert.NoError(t, engine.ValidateNumbers(a[i], 36), "ticket %d %v", i, a[i])
	}
}

func TestEntropyTickets(t *testing.T) {
	g := NewTicketGenerator(EntropySource())
	for i := 0; i < 100; i++ {
		tk, err := g.Generate(36, 4)
		require.NoError(t, err)
		require.Len(t, tk, engine.MaxTicketLen)
		assert.NoError(t, engine.ValidateNumbers(tk, 36), "ticket %v", tk)
	}
}
