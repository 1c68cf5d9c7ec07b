package settle

import (
	"context"
	"time"

	"github.com/lamas-finance/round-settler/internal/round"
)

// Maintenance lists the rounds a game can close or cancel.
type Maintenance struct {
	Game    round.Game `json:"game"`
	Cleanup []int64    `json:"cleanup"`
	Cancel  []int64    `json:"cancel"`
}

// PlanCleanup returns the ids of game's rounds that can be closed at now.
func (s *Settler) PlanCleanup(ctx context.Context, game round.Game, now time.Time) ([]int64, error) {
	state, err := s.reader.FetchProgramState(ctx, game)
	if err != nil {
		return nil, err
	}
	rounds, err := s.reader.ListRounds(ctx, game)
	if err != nil {
		return nil, err
	}
	return round.PlanCleanup(state, rounds, now, s.cfg.ClearAfter), nil
}

// PlanCancel returns the ids of game's rounds that are not yet finished.
func (s *Settler) PlanCancel(ctx context.Context, game round.Game) ([]int64, error) {
	rounds, err := s.reader.ListRounds(ctx, game)
	if err != nil {
		return nil, err
	}
	return round.PlanCancel(rounds), nil
}

// PlanMaintenance combines PlanCleanup at the settler's clock and PlanCancel.
func (s *Settler) PlanMaintenance(ctx context.Context, game round.Game) (*Maintenance, error) {
	cleanup, err := s.PlanCleanup(ctx, game, s.now())
	if err != nil {
		return nil, err
	}
	cancel, err := s.PlanCancel(ctx, game)
	if err != nil {
		return nil, err
	}
	return &Maintenance{Game: game, Cleanup: nonNil(cleanup), Cancel: nonNil(cancel)}, nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
