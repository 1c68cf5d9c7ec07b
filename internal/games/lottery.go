package games

import (
	"fmt"
	"math/big"

	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/round"
)

// LotteryGame is the jackpot lottery: tickets of TicketLen numbers drawn from
// 1..MaxNumber, paid out per match tier.
type LotteryGame struct {
	MaxNumber int
	TicketLen int
	// RewardDistribution is the percentage of the taxed pool paid to each
	// match level, indexed by match count.
	RewardDistribution [engine.MaxTicketLen + 1]int
	TaxPercentage      int
	BurnPercentage     int
}

// DefaultLottery returns the deployed lottery parameters.
func DefaultLottery() LotteryGame {
	return LotteryGame{
		MaxNumber:          36,
		TicketLen:          4,
		RewardDistribution: [engine.MaxTicketLen + 1]int{0, 0, 10, 20, 50, 0, 0},
		TaxPercentage:      2,
		BurnPercentage:     50,
	}
}

// Spec returns metadata about the lottery.
func (g LotteryGame) Spec() GameSpec {
	return GameSpec{
		ID:          round.GameLottery,
		Name:        "Jackpot Lottery",
		Lifecycle:   round.OpenFinalCycle.Name,
		EntryKind:   EntryTicket,
		SettleStage: round.StageSelling,
		MetricLabel: "matches",
	}
}

// Validate checks the parameters are usable.
func (g LotteryGame) Validate() error {
	if g.MaxNumber < 1 {
		return fmt.Errorf("lottery max number must be positive, got %d", g.MaxNumber)
	}
	if g.TicketLen < 1 || g.TicketLen > engine.MaxTicketLen {
		return fmt.Errorf("lottery ticket length must be between 1 and %d, got %d", engine.MaxTicketLen, g.TicketLen)
	}
	if g.TaxPercentage < 0 || g.TaxPercentage > 100 || g.BurnPercentage < 0 || g.BurnPercentage > 100 {
		return fmt.Errorf("lottery tax %d%% / burn %d%% outside 0..100", g.TaxPercentage, g.BurnPercentage)
	}
	total := 0
	for i, p := range g.RewardDistribution {
		if p < 0 {
			return fmt.Errorf("lottery reward distribution %d is negative", i)
		}
		total += p
	}
	if total > 100 {
		return fmt.Errorf("lottery reward distribution sums to %d%%", total)
	}
	return nil
}

// Finalize matches every ticket against the round's drawn result. Both are cut
// to the round's lottery length first. The round must hold a drawn result.
func (g LotteryGame) Finalize(r *round.Round, tickets []round.Ticket) (engine.Histogram, []engine.ScoreEntry, error) {
	if !r.HasLotteryResult() {
		return engine.Histogram{}, nil, fmt.Errorf("%w: lottery round %d has no drawn result", engine.ErrInvalidInput, r.ID)
	}
	length := r.LotteryLen
	if length <= 0 {
		length = g.TicketLen
	}

	numbers := make([][]int, len(tickets))
	for i, t := range tickets {
		numbers[i] = t.Numbers
	}
	h, matches, err := engine.BuildHistogram(r.LotteryResult, numbers, length, g.MaxNumber)
	if err != nil {
		return engine.Histogram{}, nil, fmt.Errorf("lottery round %d: %w", r.ID, err)
	}

	entries := make([]engine.ScoreEntry, len(tickets))
	for i, t := range tickets {
		entries[i] = engine.ScoreEntry{EntryID: t.ID, MatchCount: matches[i]}
	}
	return h, entries, nil
}

// TierPayout previews what one ticket at a match level receives.
type TierPayout struct {
	Matches   int      `json:"matches"`
	Winners   uint64   `json:"winners"`
	TierPool  *big.Int `json:"tier_pool"`
	PerTicket *big.Int `json:"per_ticket"`
}

// PayoutPreview is the split of a round's pool across match tiers.
type PayoutPreview struct {
	Pool  *big.Int     `json:"pool"`
	Tax   *big.Int     `json:"tax"`
	Burn  *big.Int     `json:"burn"`
	Tiers []TierPayout `json:"tiers"`
}

// Payouts splits pool after tax by RewardDistribution and divides each tier by
// its winner count. Tiers with no winners report a zero per-ticket amount.
// Amounts are in the token's smallest unit and round down.
func (g LotteryGame) Payouts(pool *big.Int, h engine.Histogram) PayoutPreview {
	hundred := big.NewInt(100)
	tax := percentOf(pool, g.TaxPercentage)
	burn := percentOf(tax, g.BurnPercentage)
	net := new(big.Int).Sub(pool, tax)

	p := PayoutPreview{Pool: new(big.Int).Set(pool), Tax: tax, Burn: burn}
	for m, pct := range g.RewardDistribution {
		if pct == 0 {
			continue
		}
		tier := new(big.Int).Mul(net, big.NewInt(int64(pct)))
		tier.Quo(tier, hundred)
		per := new(big.Int)
		if h[m] > 0 {
			per.Quo(tier, new(big.Int).SetUint64(h[m]))
		}
		p.Tiers = append(p.Tiers, TierPayout{Matches: m, Winners: h[m], TierPool: tier, PerTicket: per})
	}
	return p
}

func percentOf(v *big.Int, pct int) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(int64(pct)))
	return out.Quo(out, big.NewInt(100))
}
