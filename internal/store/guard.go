package store

import (
	"math/big"
	"slices"

	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/round"
)

// mergeRound lays an incoming write over the stored round. Stages only move
// forward, a terminal round never changes, and outcome fields are write-once.
// Outcome fields the write leaves empty keep their stored value.
func mergeRound(prev, in *round.Round) (*round.Round, error) {
	reject := func(field string) error {
		return &ImmutableError{Game: prev.Game, RoundID: prev.ID, Record: "round", Field: field}
	}
	if in.Stage < prev.Stage || (prev.Stage.Terminal() && in.Stage != prev.Stage) {
		return nil, reject("stage " + prev.Stage.String())
	}

	next := *in
	var ok bool
	if next.PriceStart, ok = once(prev.PriceStart, in.PriceStart); !ok {
		return nil, reject("price_start")
	}
	if next.PriceEnd, ok = once(prev.PriceEnd, in.PriceEnd); !ok {
		return nil, reject("price_end")
	}
	if prev.PriceStart != nil || prev.PriceEnd != nil {
		switch {
		case in.PriceDecimals == 0:
			next.PriceDecimals = prev.PriceDecimals
		case in.PriceDecimals != prev.PriceDecimals:
			return nil, reject("price_decimals")
		}
	}
	if prev.ResultShare != nil {
		switch {
		case in.ResultShare == nil:
			next.ResultShare = prev.ResultShare
		case !sameFixed(prev.ResultShare, in.ResultShare):
			return nil, reject("result_share")
		}
	}
	if len(prev.LotteryResult) > 0 {
		switch {
		case len(in.LotteryResult) == 0:
			next.LotteryResult, next.LotteryLen = prev.LotteryResult, prev.LotteryLen
		case !slices.Equal(prev.LotteryResult, in.LotteryResult) || in.LotteryLen != prev.LotteryLen:
			return nil, reject("lottery_result")
		}
	}
	if in.PoolBalance == nil {
		next.PoolBalance = prev.PoolBalance
	}

	if prev.Stage.Terminal() && !sameRound(prev, &next) {
		return nil, reject("round " + prev.Stage.String())
	}
	return &next, nil
}

// once returns the value to store for a write-once field.
func once(prev, in *big.Int) (*big.Int, bool) {
	switch {
	case prev == nil:
		return in, true
	case in == nil:
		return prev, true
	default:
		return prev, prev.Cmp(in) == 0
	}
}

func sameRound(a, b *round.Round) bool {
	return a.Stage == b.Stage &&
		a.UnixTimeStart == b.UnixTimeStart &&
		a.UnixTimeEnd == b.UnixTimeEnd &&
		a.Pool == b.Pool &&
		a.Mint == b.Mint &&
		sameBig(a.PoolBalance, b.PoolBalance) &&
		sameBig(a.PriceStart, b.PriceStart) &&
		sameBig(a.PriceEnd, b.PriceEnd) &&
		a.PriceDecimals == b.PriceDecimals &&
		sameFixed(a.ResultShare, b.ResultShare) &&
		slices.Equal(a.LotteryResult, b.LotteryResult) &&
		a.LotteryLen == b.LotteryLen
}

func sameBig(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}

func sameFixed(a, b *engine.Fixed) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Decimal().Equal(b.Decimal())
}
