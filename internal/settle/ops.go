package settle

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/lamas-finance/round-settler/internal/games"
	"github.com/lamas-finance/round-settler/internal/metrics"
	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/store"
)

// Op is a lifecycle write other than settlement.
type Op string

const (
	// OpStart opens the waiting round in the finder window for predictions.
	OpStart Op = "start"
	// OpGoLive closes predictions and starts the live stage.
	OpGoLive Op = "go-live"
	// OpEndLive ends the live stage.
	OpEndLive Op = "end-live"
	// OpCleanup closes finished rounds older than ClearAfter.
	OpCleanup Op = "cleanup"
	// OpCancel cancels every unfinished round.
	OpCancel Op = "cancel"
)

// Ops lists every operation in a stable order.
func Ops() []Op {
	return []Op{OpStart, OpGoLive, OpEndLive, OpCleanup, OpCancel}
}

// ParseOp resolves an operation name.
func ParseOp(v string) (Op, error) {
	for _, op := range Ops() {
		if string(op) == v {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: unknown operation %q", games.ErrUnsupported, v)
}

type advance struct {
	from, to round.Stage
	kind     store.RunKind
}

var advances = map[Op]advance{
	OpStart:   {round.StageWaitStartRound, round.StagePrediction, store.KindStartRound},
	OpGoLive:  {round.StagePrediction, round.StageLive, store.KindStartLive},
	OpEndLive: {round.StageLive, round.StageEnded, store.KindEndLive},
}

// StageParams moves one round from one stage to the next.
type StageParams struct {
	RoundID int64       `json:"round_id"`
	From    round.Stage `json:"from"`
	To      round.Stage `json:"to"`
}

// PlanOp builds the instructions op needs for game now without submitting
// anything. Stage advances target the single round the finder locates in the
// source stage; cleanup and cancel produce one step per round.
func (s *Settler) PlanOp(ctx context.Context, game round.Game, op Op) ([]Plan, error) {
	switch op {
	case OpCleanup:
		return s.planCleanup(ctx, game)
	case OpCancel:
		return s.planCancel(ctx, game)
	}

	a, ok := advances[op]
	if !ok {
		return nil, fmt.Errorf("%w: unknown operation %q", games.ErrUnsupported, op)
	}
	if round.LifecycleFor(game).Name != round.FullCycle.Name {
		return nil, fmt.Errorf("%w: %s rounds have no %s stage", games.ErrUnsupported, game, a.from)
	}
	if game == round.GamePricePredict && op == OpEndLive {
		return nil, fmt.Errorf("%w: %s ends its live stage through %s", games.ErrUnsupported, game, store.KindPredictionEnd)
	}

	r, err := s.FindRound(ctx, game, a.from)
	if err != nil {
		return nil, err
	}
	if err := round.RequireTransition(r, a.to); err != nil {
		return nil, err
	}
	return []Plan{{
		Game: game, Kind: a.kind, RoundID: r.ID,
		Params: StageParams{RoundID: r.ID, From: r.Stage, To: a.to},
	}}, nil
}

func (s *Settler) planCleanup(ctx context.Context, game round.Game) ([]Plan, error) {
	ids, err := s.PlanCleanup(ctx, game, s.now())
	if err != nil {
		return nil, err
	}
	plans := make([]Plan, 0, len(ids))
	for _, id := range ids {
		plans = append(plans, Plan{Game: game, Kind: store.KindCleanup, RoundID: id, Params: RoundParams{RoundID: id}})
	}
	return plans, nil
}

func (s *Settler) planCancel(ctx context.Context, game round.Game) ([]Plan, error) {
	rounds, err := s.reader.ListRounds(ctx, game)
	if err != nil {
		return nil, err
	}
	open := round.PlanCancel(rounds)
	plans := make([]Plan, 0, len(open))
	for i := range rounds {
		r := &rounds[i]
		if !slices.Contains(open, r.ID) {
			continue
		}
		if err := round.RequireTransition(r, round.StageCanceled); err != nil {
			return nil, err
		}
		plans = append(plans, Plan{
			Game: game, Kind: store.KindCancel, RoundID: r.ID,
			Params: StageParams{RoundID: r.ID, From: r.Stage, To: round.StageCanceled},
		})
	}
	slices.SortFunc(plans, func(a, b Plan) int { return cmp.Compare(a.RoundID, b.RoundID) })
	return plans, nil
}

// RunOp plans op for game and submits each step through the journal, the
// same way Run does for settlement.
func (s *Settler) RunOp(ctx context.Context, game round.Game, op Op) ([]Result, error) {
	start := s.now()
	plans, err := s.PlanOp(ctx, game, op)
	if err != nil {
		s.observe(game, metrics.StatusFailed, start)
		return nil, err
	}
	return s.runPlans(ctx, game, plans, start)
}
