package engine

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountMatches(t *testing.T) {
	tests := []struct {
		name   string
		drawn  []int
		picked []int
		want   int
	}{
		{"both empty", nil, nil, 0},
		{"drawn empty", nil, []int{1, 2}, 0},
		{"picked empty", []int{1, 2}, nil, 0},
		{"identical", []int{1, 5, 10, 15}, []int{1, 5, 10, 15}, 4},
		{"disjoint", []int{1, 5, 10, 15}, []int{2, 3, 4, 6}, 0},
		{"partial", []int{1, 5, 10, 15}, []int{5, 10, 20, 30}, 2},
		{"different lengths", []int{1, 2, 3, 4, 5, 6}, []int{2, 6}, 2},
		{"duplicate in picked matches once", []int{3, 7}, []int{3, 3, 7}, 2},
		{"duplicates on both sides", []int{3, 3, 7}, []int{3, 3, 3}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountMatches(tt.drawn, tt.picked))
		})
	}
}

func TestCountMatchesEqualsSetIntersection(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 500; iter++ {
		a := uniqueSorted(rng, 1+rng.Intn(8), 40)
		b := uniqueSorted(rng, 1+rng.Intn(8), 40)

		set := make(map[int]bool, len(a))
		for _, v := range a {
			set[v] = true
		}
		want := 0
		for _, v := range b {
			if set[v] {
				want++
			}
		}
		require.Equal(t, want, CountMatches(a, b), "a=%v b=%v", a, b)
		require.Equal(t, want, CountMatches(b, a), "a=%v b=%v", a, b)
	}
}

func TestCountMatchesWithDuplicatesBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for iter := 0; iter < 500; iter++ {
		a := sortedWithDupes(rng, rng.Intn(8), 10)
		b := sortedWithDupes(rng, rng.Intn(8), 10)

		ca, cb := counts(a), counts(b)
		bound := 0
		for v, n := range ca {
			bound += min(n, cb[v])
		}
		assert.LessOrEqual(t, CountMatches(a, b), bound, "a=%v b=%v", a, b)
	}
}

func TestBuildHistogramRoundScenario(t *testing.T) {
	drawn := []int{1, 5, 10, 15}
	tickets := [][]int{
		{1, 2, 3, 4},
		{5, 10, 20, 30},
		{1, 5, 10, 15},
	}

	h, matches, err := BuildHistogram(drawn, tickets, 4, 36)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4}, matches)
	assert.Equal(t, Histogram{0, 1, 1, 0, 1, 0, 0}, h)
	assert.Equal(t, uint64(3), h.Total())
}

func TestMatchTicketTruncatesToLength(t *testing.T) {
	drawn := []int{2, 4, 6, 8, 10, 12}
	ticket := []int{2, 4, 6, 8, 10, 12}
	assert.Equal(t, 4, MatchTicket(drawn, ticket, 4))
	assert.Equal(t, 6, MatchTicket(drawn, ticket, 6))
}

func TestMatchTicketIgnoresPadding(t *testing.T) {
	drawn := []int{1, 9, 17, 33}
	ticket := []int{9, 17, 0, 0, 0, 0}
	assert.Equal(t, 2, MatchTicket(drawn, ticket, 4))
}

func TestValidateNumbers(t *testing.T) {
	tests := []struct {
		name    string
		numbers []int
		wantErr bool
	}{
		{"ascending", []int{1, 5, 10, 15}, false},
		{"padded", []int{4, 9, 0, 0, 0, 0}, false},
		{"duplicates allowed", []int{4, 4, 9}, false},
		{"descending", []int{10, 5}, true},
		{"number after padding", []int{4, 0, 9}, true},
		{"above max", []int{1, 37}, true},
		{"negative", []int{-1, 3}, true},
		{"too long", []int{1, 2, 3, 4, 5, 6, 7}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNumbers(tt.numbers, 36)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildHistogramRejectsMalformedTicket(t *testing.T) {
	_, _, err := BuildHistogram([]int{1, 2, 3, 4}, [][]int{{1, 2, 3, 4}, {9, 3}}, 4, 36)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "ticket 1")
}

func uniqueSorted(rng *rand.Rand, n, limit int) []int {
	perm := rng.Perm(limit)
	out := make([]int, n)
	for i := range out {
		out[i] = perm[i] + 1
	}
	sort.Ints(out)
	return out
}

func sortedWithDupes(rng *rand.Rand, n, limit int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = rng.Intn(limit) + 1
	}
	sort.Ints(out)
	return out
}

func counts(s []int) map[int]int {
	m := make(map[int]int)
	for _, v := range s {
		m[v]++
	}
	return m
}
