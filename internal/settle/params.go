package settle

import (
	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/games"
	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/store"
)

// LotteryParams finalizes a lottery round: how many tickets hit each match
// count.
type LotteryParams struct {
	RoundID   int64                `json:"round_id"`
	Histogram engine.Histogram     `json:"histogram"`
	Entries   []engine.ScoreEntry  `json:"entries,omitempty"`
	Payouts   *games.PayoutPreview `json:"payouts,omitempty"`
}

// PredictionParams ends a price-predict round. Sums are decimal strings.
type PredictionParams struct {
	RoundID               int64               `json:"round_id"`
	ActualShare           engine.Fixed        `json:"actual_share"`
	SumStake              string              `json:"sum_stake"`
	SumStakeWeightedScore string              `json:"sum_stake_weighted_score"`
	Entries               []engine.ScoreEntry `json:"entries"`
}

// ClaimsParams resolves the claims of an ended up-or-down round.
type ClaimsParams struct {
	RoundID   int64                `json:"round_id"`
	Direction games.Direction      `json:"direction"`
	Claims    []games.ClaimOutcome `json:"claims"`
}

// RoundParams names the round an instruction closes.
type RoundParams struct {
	RoundID int64 `json:"round_id"`
}

// Plan is one settlement step ready to submit.
type Plan struct {
	Game    round.Game    `json:"game"`
	Kind    store.RunKind `json:"kind"`
	RoundID int64         `json:"round_id"`
	Params  any           `json:"params"`
	Entries int           `json:"entries"`
}

// Outcome of executing a Plan.
const (
	StatusPlanned   = "planned"
	StatusSkipped   = "skipped"
	StatusSubmitted = "submitted"
)

// Result reports what Run did with one Plan.
type Result struct {
	Plan
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
	Ref    string `json:"ref,omitempty"`
}
