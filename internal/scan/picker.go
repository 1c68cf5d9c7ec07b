package scan

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"

	"github.com/lamas-finance/round-settler/internal/engine"
)

// PickerMode defines where ticket randomness comes from.
type PickerMode string

const (
	// PickerModeReproducible draws from the HMAC float stream keyed by a seed
	// and nonce, so the same inputs give the same tickets.
	PickerModeReproducible PickerMode = "reproducible"

	// PickerModeEntropy draws from crypto/rand.
	PickerModeEntropy PickerMode = "entropy"
)

// RandomSource yields floats in [0, 1).
type RandomSource interface {
	Float64() float64
}

// ReproducibleSource returns the float stream for seed and nonce.
func ReproducibleSource(seed string, nonce uint64) RandomSource {
	return engine.NewFloatStream(seed, "ticket", nonce, 0)
}

// EntropySource returns a crypto/rand backed source.
func EntropySource() RandomSource {
	return entropySource{}
}

type entropySource struct{}

var twoPow53 = new(big.Int).Lsh(big.NewInt(1), 53)

func (entropySource) Float64() float64 {
	n, err := rand.Int(rand.Reader, twoPow53)
	if err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return float64(n.Int64()) / (1 << 53)
}

// TicketGenerator produces lottery tickets by walking an ascending pool of
// 1..maxNumber with random strides.
//
// Each step advances the pool index by round(r*maxNumber/(length+1))+1 and
// takes the number there. Numbers are not guaranteed unique across tickets and
// are never deduplicated. If a stride leaves the pool the walk stops and the
// remaining slots are zero. Output is always padded with zeros to
// engine.MaxTicketLen.
type TicketGenerator struct {
	src RandomSource
}

// NewTicketGenerator creates a generator reading from src.
func NewTicketGenerator(src RandomSource) *TicketGenerator {
	return &TicketGenerator{src: src}
}

// Generate returns one ticket.
func (g *TicketGenerator) Generate(maxNumber, length int) ([]int, error) {
	if maxNumber < 1 {
		return nil, fmt.Errorf("%w: max number %d", ErrInvalidTicketParams, maxNumber)
	}
	if length < 1 || length > engine.MaxTicketLen {
		return nil, fmt.Errorf("%w: length %d outside 1..%d", ErrInvalidTicketParams, length, engine.MaxTicketLen)
	}

	out := make([]int, 0, engine.MaxTicketLen)
	idx := 0
	for i := 0; i < length; i++ {
		idx += int(math.Round(g.src.Float64()*float64(maxNumber)/float64(length+1))) + 1
		if idx >= maxNumber {
			break
		}
		// pool[idx] of the ascending pool 1..maxNumber
		out = append(out, idx+1)
	}
	for len(out) < engine.MaxTicketLen {
		out = append(out, 0)
	}
	return out, nil
}

// GenerateN returns count tickets.
func (g *TicketGenerator) GenerateN(count, maxNumber, length int) ([][]int, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: count %d", ErrInvalidTicketParams, count)
	}
	tickets := make([][]int, 0, count)
	for i := 0; i < count; i++ {
		t, err := g.Generate(maxNumber, length)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}
