package games

import (
	"fmt"
	"math/big"

	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/round"
)

// ShareDecimals is the precision of price-predict shares.
const ShareDecimals = 4

// PricePredictGame scores predicted price shares by vector angle and
// aggregates stake-weighted scores.
type PricePredictGame struct {
	Limits engine.Limits
}

// Spec returns metadata about price-predict.
func (g PricePredictGame) Spec() GameSpec {
	return GameSpec{
		ID:          round.GamePricePredict,
		Name:        "Price Predict",
		Lifecycle:   round.FullCycle.Name,
		EntryKind:   EntryPrediction,
		SettleStage: round.StageLive,
		MetricLabel: "score",
	}
}

// ShareFromPrices returns end/(end+start) as a percentage with four decimals,
// computed as floor(end*1_000_000 / (end+start)) scaled by 10^-4.
func ShareFromPrices(start, end *big.Int) (engine.Fixed, error) {
	if start == nil || end == nil || start.Sign() < 0 || end.Sign() < 0 {
		return engine.Fixed{}, fmt.Errorf("%w: prices must be recorded and non-negative", engine.ErrInvalidInput)
	}
	sum := new(big.Int).Add(start, end)
	if sum.Sign() == 0 {
		return engine.Fixed{}, fmt.Errorf("%w: start and end price are both zero", engine.ErrInvalidInput)
	}
	v := new(big.Int).Mul(end, big.NewInt(1_000_000))
	v.Quo(v, sum)
	return engine.Fixed{Value: v, Decimals: ShareDecimals}, nil
}

// ActualShare is the round's recorded result share, or the share derived from
// its prices when none was recorded.
func ActualShare(r *round.Round) (engine.Fixed, error) {
	if r.ResultShare != nil && r.ResultShare.Value != nil {
		return *r.ResultShare, nil
	}
	if !r.HasPrices() {
		return engine.Fixed{}, fmt.Errorf("%w: round %d has no result share or prices", engine.ErrInvalidInput, r.ID)
	}
	return ShareFromPrices(r.PriceStart, r.PriceEnd)
}

// PredictionResult is what a price-predict round is settled with.
type PredictionResult struct {
	ActualShare engine.Fixed           `json:"actual_share"`
	Aggregate   engine.AggregateResult `json:"aggregate"`
	Entries     []engine.ScoreEntry    `json:"entries"`
}

// Settle scores every prediction against the round's actual share and sums
// stake and stake*score. Any malformed prediction fails the whole round.
func (g PricePredictGame) Settle(r *round.Round, preds []round.Prediction, bonus engine.BonusTable) (PredictionResult, error) {
	actual, err := ActualShare(r)
	if err != nil {
		return PredictionResult{}, err
	}
	a := actual.Float64()

	var acc engine.Accumulator
	entries := make([]engine.ScoreEntry, 0, len(preds))
	for _, p := range preds {
		score, err := engine.Score(p.PredictedShare.Float64(), a, p.TimeRemaining(r), bonus)
		if err != nil {
			return PredictionResult{}, fmt.Errorf("prediction %s: %w", p.ID, err)
		}
		if err := acc.Add(p.Stake, score); err != nil {
			return PredictionResult{}, fmt.Errorf("prediction %s: %w", p.ID, err)
		}
		entries = append(entries, engine.ScoreEntry{EntryID: p.ID, Score: score})
	}

	res := acc.Result()
	if err := res.Check(g.Limits); err != nil {
		return PredictionResult{}, fmt.Errorf("round %d: %w", r.ID, err)
	}
	return PredictionResult{ActualShare: actual, Aggregate: res, Entries: entries}, nil
}
