package games

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/round"
)

// PayoutShareDecimals is the precision payout shares are reported with.
const PayoutShareDecimals = 18

// Direction is the price movement over a round's live stage.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// UpOrDownGame pays predictions that called the price direction correctly.
type UpOrDownGame struct{}

// Spec returns metadata about up-or-down.
func (g UpOrDownGame) Spec() GameSpec {
	return GameSpec{
		ID:          round.GameUpOrDown,
		Name:        "Up or Down",
		Lifecycle:   round.FullCycle.Name,
		EntryKind:   EntryPrediction,
		SettleStage: round.StageEnded,
		MetricLabel: "payout_share",
	}
}

// RoundDirection compares the price at the end of the prediction stage with
// the price at the end of the live stage.
func RoundDirection(r *round.Round) (Direction, error) {
	if !r.HasPrices() {
		return "", fmt.Errorf("%w: round %d has no recorded prices", engine.ErrInvalidInput, r.ID)
	}
	switch r.PriceEnd.Cmp(r.PriceStart) {
	case 1:
		return DirectionUp, nil
	case -1:
		return DirectionDown, nil
	default:
		return DirectionFlat, nil
	}
}

// ClaimOutcome is the resolution of one prediction.
type ClaimOutcome struct {
	PredictionID string          `json:"prediction_id"`
	Owner        string          `json:"owner"`
	Stake        uint64          `json:"stake"`
	IsWinner     bool            `json:"is_winner"`
	Refund       bool            `json:"refund"`
	PayoutShare  decimal.Decimal `json:"payout_share"`
}

// Resolve decides every claim of an ended round. Winners split the winning
// side by stake: PayoutShare is stake / total winning stake. A flat round has
// no winners and every prediction is refunded.
func (g UpOrDownGame) Resolve(r *round.Round, preds []round.Prediction) (Direction, []ClaimOutcome, error) {
	dir, err := RoundDirection(r)
	if err != nil {
		return "", nil, err
	}

	winningStake := decimal.Zero
	for _, p := range preds {
		if wins(dir, p.IsUp) {
			winningStake = winningStake.Add(fromUint64(p.Stake))
		}
	}

	out := make([]ClaimOutcome, 0, len(preds))
	for _, p := range preds {
		c := ClaimOutcome{PredictionID: p.ID, Owner: p.Owner, Stake: p.Stake, PayoutShare: decimal.Zero}
		switch {
		case dir == DirectionFlat:
			c.Refund = true
		case wins(dir, p.IsUp):
			c.IsWinner = true
			if winningStake.IsPositive() {
				c.PayoutShare = fromUint64(p.Stake).DivRound(winningStake, PayoutShareDecimals)
			}
		}
		out = append(out, c)
	}
	return dir, out, nil
}

func wins(dir Direction, isUp bool) bool {
	return (dir == DirectionUp && isUp) || (dir == DirectionDown && !isUp)
}
