package engine

import (
	"fmt"
	"math/big"
)

// Limits are the bit widths of the ledger fields the sums are written into.
type Limits struct {
	SumStakeBits    uint
	WeightedSumBits uint
}

// DefaultLimits match a u64 stake total and a u128 weighted total.
func DefaultLimits() Limits {
	return Limits{SumStakeBits: 64, WeightedSumBits: 128}
}

// AggregateResult holds the two sums a prediction round is settled with.
type AggregateResult struct {
	SumStake              *big.Int `json:"sum_stake"`
	SumStakeWeightedScore *big.Int `json:"sum_stake_weighted_score"`
}

// Check reports ErrArithmeticOverflow if either sum does not fit its field.
func (r AggregateResult) Check(l Limits) error {
	if l.SumStakeBits > 0 && r.SumStake.BitLen() > int(l.SumStakeBits) {
		return fmt.Errorf("%w: sum stake needs %d bits, field has %d",
			ErrArithmeticOverflow, r.SumStake.BitLen(), l.SumStakeBits)
	}
	if l.WeightedSumBits > 0 && r.SumStakeWeightedScore.BitLen() > int(l.WeightedSumBits) {
		return fmt.Errorf("%w: weighted sum needs %d bits, field has %d",
			ErrArithmeticOverflow, r.SumStakeWeightedScore.BitLen(), l.WeightedSumBits)
	}
	return nil
}

// Accumulator sums stakes and stake*score with arbitrary precision. Addition
// commutes, so the result does not depend on the order entries arrive in.
// The zero value is ready to use.
type Accumulator struct {
	sumStake    big.Int
	sumWeighted big.Int
	count       int
}

// Add folds one entry into the sums. Negative scores are rejected.
func (a *Accumulator) Add(stake uint64, score int64) error {
	if score < 0 {
		return fmt.Errorf("%w: negative score %d", ErrInvalidInput, score)
	}
	s := new(big.Int).SetUint64(stake)
	a.sumStake.Add(&a.sumStake, s)
	a.sumWeighted.Add(&a.sumWeighted, s.Mul(s, big.NewInt(score)))
	a.count++
	return nil
}

// Count returns the number of entries added.
func (a *Accumulator) Count() int {
	return a.count
}

// Result returns copies of the current sums.
func (a *Accumulator) Result() AggregateResult {
	return AggregateResult{
		SumStake:              new(big.Int).Set(&a.sumStake),
		SumStakeWeightedScore: new(big.Int).Set(&a.sumWeighted),
	}
}
