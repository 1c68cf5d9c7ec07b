package round

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/lamas-finance/round-settler/internal/engine"
)

// Game identifies one of the ledger programs the settler drives.
type Game string

const (
	GameLottery      Game = "jackpot-lottery"
	GameSpinner      Game = "lucky-spinner"
	GamePricePredict Game = "price-predict"
	GameUpOrDown     Game = "up-or-down"
)

// Games lists every known game in a stable order.
func Games() []Game {
	return []Game{GameLottery, GameSpinner, GamePricePredict, GameUpOrDown}
}

// ParseGame resolves a game name.
func ParseGame(v string) (Game, error) {
	if g := Game(v); slices.Contains(Games(), g) {
		return g, nil
	}
	return "", fmt.Errorf("unknown game %q", v)
}

// Round mirrors a round account. Outcome fields (prices, share, lottery
// result) are written once when the round is finalized.
type Round struct {
	ID            int64  `json:"id"`
	Game          Game   `json:"game"`
	Stage         Stage  `json:"stage"`
	UnixTimeStart int64  `json:"unix_time_start"`
	UnixTimeEnd   int64  `json:"unix_time_end"`
	Pool          string `json:"pool"`
	Mint          string `json:"mint"`

	// PoolBalance is the round pool's token balance when known.
	PoolBalance *big.Int `json:"pool_balance,omitempty"`

	// PriceStart is the price at the end of the prediction stage, PriceEnd at
	// the end of the live stage. Both are integers scaled by PriceDecimals.
	PriceStart    *big.Int `json:"price_start,omitempty"`
	PriceEnd      *big.Int `json:"price_end,omitempty"`
	PriceDecimals int32    `json:"price_decimals,omitempty"`

	// ResultShare is the realized share for price-predict rounds.
	ResultShare *engine.Fixed `json:"result_share,omitempty"`

	LotteryResult []int `json:"lottery_result,omitempty"`
	LotteryLen    int   `json:"lottery_len,omitempty"`
}

// HasPrices reports whether both prices have been recorded.
func (r *Round) HasPrices() bool {
	return r.PriceStart != nil && r.PriceEnd != nil
}

// HasLotteryResult reports whether the draw has been written.
func (r *Round) HasLotteryResult() bool {
	for _, n := range r.LotteryResult {
		if n != 0 {
			return true
		}
	}
	return false
}

// Ticket is a lottery entry.
type Ticket struct {
	ID      string `json:"id"`
	Owner   string `json:"owner"`
	RoundID int64  `json:"round_id"`
	Numbers []int  `json:"numbers"`
}

// Prediction is a price-predict or up-or-down entry. PredictedShare is used by
// price-predict, IsUp by up-or-down.
type Prediction struct {
	ID             string       `json:"id"`
	Owner          string       `json:"owner"`
	RoundID        int64        `json:"round_id"`
	Stake          uint64       `json:"stake"`
	PredictedShare engine.Fixed `json:"predicted_share"`
	IsUp           bool         `json:"is_up"`
	Timestamp      int64        `json:"timestamp"`
}

// TimeRemaining is how many seconds before the round's end the prediction was placed.
func (p Prediction) TimeRemaining(r *Round) int64 {
	return r.UnixTimeEnd - p.Timestamp
}

// ProgramState mirrors a game's program state account.
type ProgramState struct {
	Game         Game              `json:"game"`
	RoundCounter int64             `json:"round_counter"`
	CurrentRound int64             `json:"current_round"`
	BonusTable   engine.BonusTable `json:"bonus_table,omitempty"`
	Mint         string            `json:"mint"`
	Treasury     string            `json:"treasury"`

	TaxPercentage  int `json:"tax_percentage"`
	BurnPercentage int `json:"burn_percentage"`

	LotteryMaxNumber   int   `json:"lottery_max_number,omitempty"`
	LotteryLen         int   `json:"lottery_len,omitempty"`
	RewardDistribution []int `json:"reward_distribution,omitempty"`
}
