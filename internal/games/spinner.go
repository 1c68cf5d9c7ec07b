package games

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/round"
)

// MultiplierScale is the fixed-point scale of spinner multipliers on the ledger.
const MultiplierScale = 1_000_000

// SpinnerSlot is one wheel segment: how likely it is and what it pays, with
// the multiplier scaled by MultiplierScale.
type SpinnerSlot struct {
	Weight     uint64 `json:"weight"`
	Multiplier uint64 `json:"multiplier"`
}

// SpinnerGame is the lucky spinner.
type SpinnerGame struct {
	Slots []SpinnerSlot
	// TaxRate is scaled by MultiplierScale, 10_000 is 1%.
	TaxRate uint64
}

// DefaultSpinner returns the deployed spinner table.
func DefaultSpinner() SpinnerGame {
	const m = MultiplierScale
	return SpinnerGame{
		Slots: []SpinnerSlot{
			{15, 35 * m},
			{40, 20 * m},
			{100, 7 * m},
			{220, 5 * m},
			{440, 3 * m},
			{600, 2 * m},
			{2485, 1 * m},
			{3000, m / 2},
			{3000, 0},
		},
		TaxRate: m / 100,
	}
}

// Spec returns metadata about the spinner.
func (g SpinnerGame) Spec() GameSpec {
	return GameSpec{
		ID:          round.GameSpinner,
		Name:        "Lucky Spinner",
		Lifecycle:   round.OpenFinalCycle.Name,
		EntryKind:   EntrySpin,
		SettleStage: round.StageSelling,
		MetricLabel: "multiplier",
	}
}

// TotalWeight sums the slot weights.
func (g SpinnerGame) TotalWeight() uint64 {
	var total uint64
	for _, s := range g.Slots {
		total += s.Weight
	}
	return total
}

// Validate checks the table can be spun.
func (g SpinnerGame) Validate() error {
	if len(g.Slots) == 0 {
		return fmt.Errorf("spinner table is empty")
	}
	if g.TotalWeight() == 0 {
		return fmt.Errorf("spinner table has zero total weight")
	}
	if g.TaxRate > MultiplierScale {
		return fmt.Errorf("spinner tax rate %d exceeds %d", g.TaxRate, MultiplierScale)
	}
	return nil
}

// SpinResult is the outcome of one spin.
type SpinResult struct {
	Index      int             `json:"index"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Bet        uint64          `json:"bet"`
	Tax        uint64          `json:"tax"`
	Payout     uint64          `json:"payout"`
	RawFloat   float64         `json:"raw_float"`
}

// Spin maps a float in [0, 1) onto the cumulative weights. The tax is taken
// from the bet and the rest pays at the slot's multiplier, both rounded down.
// A payout that does not fit in 64 bits is engine.ErrArithmeticOverflow.
func (g SpinnerGame) Spin(f float64, bet uint64) (SpinResult, error) {
	if math.IsNaN(f) || f < 0 || f >= 1 {
		return SpinResult{}, fmt.Errorf("spin float %v outside [0, 1)", f)
	}
	total := g.TotalWeight()
	if total == 0 {
		return SpinResult{}, fmt.Errorf("spinner table has zero total weight")
	}

	target := uint64(math.Floor(f * float64(total)))
	if target >= total {
		target = total - 1
	}

	index := len(g.Slots) - 1
	var cumulative uint64
	for i, s := range g.Slots {
		cumulative += s.Weight
		if target < cumulative {
			index = i
			break
		}
	}

	scale := big.NewInt(MultiplierScale)
	tax := new(big.Int).SetUint64(bet)
	tax.Mul(tax, new(big.Int).SetUint64(g.TaxRate)).Quo(tax, scale)
	net := new(big.Int).Sub(new(big.Int).SetUint64(bet), tax)

	slot := g.Slots[index]
	payout := net.Mul(net, new(big.Int).SetUint64(slot.Multiplier))
	payout.Quo(payout, scale)
	if !payout.IsUint64() {
		return SpinResult{}, fmt.Errorf("%w: spin payout %s exceeds 64 bits", engine.ErrArithmeticOverflow, payout)
	}

	return SpinResult{
		Index:      index,
		Multiplier: fromUint64(slot.Multiplier).Shift(-6),
		Bet:        bet,
		Tax:        tax.Uint64(),
		Payout:     payout.Uint64(),
		RawFloat:   f,
	}, nil
}

// Replay recomputes a spin from the reproducible float stream of seed and
// nonce, so a recorded spin can be checked.
func (g SpinnerGame) Replay(seed string, nonce, bet uint64) (SpinResult, error) {
	return g.Spin(engine.Floats(seed, "spin", nonce, 0, 1)[0], bet)
}

// RTP is the expected return per unit bet before tax.
func (g SpinnerGame) RTP() decimal.Decimal {
	total := g.TotalWeight()
	if total == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, s := range g.Slots {
		sum = sum.Add(fromUint64(s.Weight).Mul(fromUint64(s.Multiplier)))
	}
	return sum.Div(fromUint64(total).Mul(decimal.NewFromInt(MultiplierScale)))
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
