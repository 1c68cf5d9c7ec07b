package ledger

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/round"
)

// --- Wire types ---
//
// The gateway encodes big integers and u64 amounts as decimal strings.

// Price is an oracle price as stored on a round account.
type Price struct {
	Value    string `json:"value"`
	Decimals int32  `json:"decimals"`
}

// Page is the envelope of every list endpoint.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// RoundAccount is a round as served by the gateway.
type RoundAccount struct {
	ID                   int64  `json:"id"`
	Stage                uint8  `json:"stage"`
	UnixTimeStart        int64  `json:"unix_time_start"`
	UnixTimeEnd          int64  `json:"unix_time_end"`
	Pool                 string `json:"pool"`
	Mint                 string `json:"mint"`
	PoolBalance          string `json:"pool_balance,omitempty"`
	PriceEndPredictStage *Price `json:"price_end_predict_stage,omitempty"`
	PriceEndLiveStage    *Price `json:"price_end_live_stage,omitempty"`
	ResultShare          string `json:"result_share,omitempty"`
	LotteryResult        []int  `json:"lottery_result,omitempty"`
	LotteryLen           int    `json:"lottery_len,omitempty"`
}

// TicketAccount is a lottery ticket.
type TicketAccount struct {
	ID      string `json:"id"`
	Owner   string `json:"owner"`
	RoundID int64  `json:"round_id"`
	Numbers []int  `json:"numbers"`
}

// PredictionAccount is a price-predict or up-or-down prediction.
type PredictionAccount struct {
	ID             string `json:"id"`
	Owner          string `json:"owner"`
	RoundID        int64  `json:"round_id"`
	Stake          string `json:"stake"`
	PredictedShare string `json:"predicted_share,omitempty"`
	IsUp           bool   `json:"is_up"`
	Timestamp      int64  `json:"timestamp"`
}

// ProgramStateAccount is a game's global state. BonusTable holds
// [threshold, points] pairs in stored order.
type ProgramStateAccount struct {
	RoundCounter       int64      `json:"round_counter"`
	CurrentRound       int64      `json:"current_round"`
	BonusTable         [][2]int64 `json:"bonus_table,omitempty"`
	Mint               string     `json:"mint"`
	Treasury           string     `json:"treasury"`
	TaxPercentage      int        `json:"tax_percentage"`
	BurnPercentage     int        `json:"burn_percentage"`
	LotteryMaxNumber   int        `json:"lottery_max_number,omitempty"`
	LotteryLen         int        `json:"lottery_len,omitempty"`
	RewardDistribution []int      `json:"reward_distribution,omitempty"`
}

// SubmitResponse is returned by the instructions endpoint.
type SubmitResponse struct {
	Ref string `json:"ref"`
}

// --- Conversion ---

func (a RoundAccount) toRound(game round.Game) (*round.Round, error) {
	r := &round.Round{
		ID:            a.ID,
		Game:          game,
		Stage:         round.Stage(a.Stage),
		UnixTimeStart: a.UnixTimeStart,
		UnixTimeEnd:   a.UnixTimeEnd,
		Pool:          a.Pool,
		Mint:          a.Mint,
		LotteryResult: a.LotteryResult,
		LotteryLen:    a.LotteryLen,
	}
	if !r.Stage.Valid() {
		return nil, fmt.Errorf("%w: round %d has stage code %d", engine.ErrInvalidInput, a.ID, a.Stage)
	}

	if a.PoolBalance != "" {
		v, err := parseAmount(a.PoolBalance)
		if err != nil {
			return nil, fmt.Errorf("round %d pool balance: %w", a.ID, err)
		}
		r.PoolBalance = v
	}
	if p := a.PriceEndPredictStage; p != nil {
		v, err := parseAmount(p.Value)
		if err != nil {
			return nil, fmt.Errorf("round %d start price: %w", a.ID, err)
		}
		r.PriceStart, r.PriceDecimals = v, p.Decimals
	}
	if p := a.PriceEndLiveStage; p != nil {
		v, err := parseAmount(p.Value)
		if err != nil {
			return nil, fmt.Errorf("round %d end price: %w", a.ID, err)
		}
		r.PriceEnd, r.PriceDecimals = v, p.Decimals
	}
	if a.ResultShare != "" {
		share, err := engine.ParseFixed(a.ResultShare, shareDecimals(a.ResultShare))
		if err != nil {
			return nil, fmt.Errorf("round %d result share: %w", a.ID, err)
		}
		r.ResultShare = &share
	}
	return r, nil
}

func (a TicketAccount) toTicket() round.Ticket {
	return round.Ticket{ID: a.ID, Owner: a.Owner, RoundID: a.RoundID, Numbers: a.Numbers}
}

func (a PredictionAccount) toPrediction() (round.Prediction, error) {
	stake, err := strconv.ParseUint(a.Stake, 10, 64)
	if err != nil {
		return round.Prediction{}, fmt.Errorf("%w: prediction %s stake %q", engine.ErrInvalidInput, a.ID, a.Stake)
	}
	p := round.Prediction{
		ID:        a.ID,
		Owner:     a.Owner,
		RoundID:   a.RoundID,
		Stake:     stake,
		IsUp:      a.IsUp,
		Timestamp: a.Timestamp,
	}
	if a.PredictedShare != "" {
		if p.PredictedShare, err = engine.ParseFixed(a.PredictedShare, shareDecimals(a.PredictedShare)); err != nil {
			return round.Prediction{}, fmt.Errorf("prediction %s share: %w", a.ID, err)
		}
	}
	return p, nil
}

func (a ProgramStateAccount) toState(game round.Game) (*round.ProgramState, error) {
	st := &round.ProgramState{
		Game:               game,
		RoundCounter:       a.RoundCounter,
		CurrentRound:       a.CurrentRound,
		Mint:               a.Mint,
		Treasury:           a.Treasury,
		TaxPercentage:      a.TaxPercentage,
		BurnPercentage:     a.BurnPercentage,
		LotteryMaxNumber:   a.LotteryMaxNumber,
		LotteryLen:         a.LotteryLen,
		RewardDistribution: a.RewardDistribution,
	}
	for _, b := range a.BonusTable {
		st.BonusTable = append(st.BonusTable, engine.Bonus{Threshold: b[0], Points: b[1]})
	}
	if err := st.BonusTable.Validate(); err != nil {
		return nil, fmt.Errorf("%s bonus table: %w", game, err)
	}
	return st, nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is not an unsigned integer", engine.ErrInvalidInput, s)
	}
	return v, nil
}

// shareDecimals keeps every fractional digit the gateway sent.
func shareDecimals(s string) int32 {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return int32(len(s) - i - 1)
		}
	}
	return 0
}
