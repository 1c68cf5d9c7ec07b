package settle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lamas-finance/round-settler/internal/games"
	"github.com/lamas-finance/round-settler/internal/metrics"
	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/store"
)

// Plan builds the settlement steps game needs now without submitting
// anything. Lottery and price-predict settle their current round;
// up-or-down resolves every ended round in the finder window.
func (s *Settler) Plan(ctx context.Context, game round.Game) ([]Plan, error) {
	switch game {
	case round.GameLottery:
		p, err := s.FinalizeLottery(ctx)
		if err != nil {
			return nil, err
		}
		return []Plan{{Game: game, Kind: store.KindFinalizeLottery, RoundID: p.RoundID, Params: p, Entries: len(p.Entries)}}, nil

	case round.GamePricePredict:
		p, err := s.ComputePredictionEnd(ctx)
		if err != nil {
			return nil, err
		}
		return []Plan{{Game: game, Kind: store.KindPredictionEnd, RoundID: p.RoundID, Params: p, Entries: len(p.Entries)}}, nil

	case round.GameUpOrDown:
		state, err := s.reader.FetchProgramState(ctx, game)
		if err != nil {
			return nil, err
		}
		ended, err := s.finder.FindAll(ctx, game, state.RoundCounter, round.StageEnded)
		if err != nil {
			return nil, err
		}
		if len(ended) == 0 {
			first, last := s.finder.Bounds(state.RoundCounter)
			return nil, fmt.Errorf("%w: no ended %s round within %d..%d", round.ErrNotFound, game, first, last)
		}
		plans := make([]Plan, 0, len(ended))
		for _, r := range ended {
			p, err := s.resolve(ctx, r)
			if err != nil {
				return nil, err
			}
			plans = append(plans, Plan{Game: game, Kind: store.KindResolveClaims, RoundID: r.ID, Params: p, Entries: len(p.Claims)})
		}
		return plans, nil
	}
	return nil, fmt.Errorf("%w: %s has no settlement pass", games.ErrUnsupported, game)
}

// Run plans game's settlement and submits each step. Steps already
// processed according to the journal are skipped. In dry mode the plans are
// returned with status planned.
func (s *Settler) Run(ctx context.Context, game round.Game) ([]Result, error) {
	start := s.now()
	plans, err := s.Plan(ctx, game)
	if err != nil {
		s.observe(game, metrics.StatusFailed, start)
		return nil, err
	}

	return s.runPlans(ctx, game, plans, start)
}

func (s *Settler) runPlans(ctx context.Context, game round.Game, plans []Plan, start time.Time) ([]Result, error) {
	log := s.log.With(zap.String("game", string(game)))
	results := make([]Result, 0, len(plans))
	for _, p := range plans {
		res, err := s.execute(ctx, p)
		if err != nil {
			s.observe(game, metrics.StatusFailed, start)
			log.Error("submission failed", zap.Int64("round", p.RoundID), zap.String("kind", string(p.Kind)), zap.Error(err))
			return results, err
		}
		if res.Status != StatusSkipped {
			s.metrics.AddEntries(string(game), p.Entries)
		}
		log.Info(string(p.Kind)+" "+res.Status,
			zap.Int64("round", p.RoundID),
			zap.Int("entries", p.Entries),
			zap.String("ref", res.Ref))
		results = append(results, res)
	}

	s.observe(game, summarize(results), start)
	return results, nil
}

func (s *Settler) execute(ctx context.Context, p Plan) (Result, error) {
	res := Result{Plan: p, Status: StatusPlanned}
	if s.Dry() {
		return res, nil
	}

	params, err := json.Marshal(p.Params)
	if err != nil {
		return res, fmt.Errorf("encode %s params for round %d: %w", p.Kind, p.RoundID, err)
	}

	var run *store.Run
	if s.journal != nil {
		var started bool
		run, started, err = s.journal.BeginRun(ctx, store.RunRequest{
			Game: p.Game, RoundID: p.RoundID, Kind: p.Kind, ParamsJSON: string(params),
		})
		if err != nil {
			return res, err
		}
		res.RunID = run.ID
		if !started {
			res.Status, res.Ref = StatusSkipped, run.SubmitRef
			return res, nil
		}
	}

	ref, err := s.submit.Submit(ctx, Instruction{Game: p.Game, Kind: p.Kind, RoundID: p.RoundID, RunID: res.RunID, Params: params})
	if err != nil {
		if run != nil {
			// record the failure even if ctx is what failed
			if ferr := s.journal.FailRun(context.WithoutCancel(ctx), run.ID, err, isFatal(err)); ferr != nil {
				err = multierr.Append(err, ferr)
			}
		}
		return res, err
	}

	if run != nil {
		if err := s.journal.CompleteRun(context.WithoutCancel(ctx), run.ID, ref); err != nil {
			return res, fmt.Errorf("submitted as %s but journal failed: %w", ref, err)
		}
	}
	res.Status, res.Ref = StatusSubmitted, ref
	return res, nil
}

// SettleAll runs every game concurrently. Games without a settlement pass are
// skipped. A failing game does not stop the others; all failures are
// returned combined.
func (s *Settler) SettleAll(ctx context.Context, gs []round.Game) (map[round.Game][]Result, error) {
	var (
		mu   sync.Mutex
		out  = make(map[round.Game][]Result, len(gs))
		errs error
		g    errgroup.Group
	)
	for _, game := range gs {
		g.Go(func() error {
			res, err := s.Run(ctx, game)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, games.ErrUnsupported):
				s.log.Debug("no settlement pass", zap.String("game", string(game)))
			case err != nil:
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", game, err))
			}
			if len(res) > 0 {
				out[game] = res
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, errs
}

// Idle reports whether err only means there is nothing to settle right now.
func Idle(err error) bool {
	return errors.Is(err, round.ErrNotFound) ||
		errors.Is(err, round.ErrStageMismatch) ||
		errors.Is(err, ErrOutcomePending) ||
		errors.Is(err, games.ErrUnsupported)
}

// IdleErrors returns the parts of a combined error that Idle accepts.
func IdleErrors(err error) []error {
	var idle []error
	for _, e := range multierr.Errors(err) {
		if Idle(e) {
			idle = append(idle, e)
		}
	}
	return idle
}

// Significant drops the idle parts of a combined error such as the one
// SettleAll returns. It is nil when every part was idle.
func Significant(err error) error {
	var out error
	for _, e := range multierr.Errors(err) {
		if !Idle(e) {
			out = multierr.Append(out, e)
		}
	}
	return out
}

func (s *Settler) observe(game round.Game, status string, start time.Time) {
	s.metrics.ObserveSettlement(string(game), status, s.now().Sub(start))
}

func summarize(results []Result) string {
	status := metrics.StatusSkipped
	for _, r := range results {
		switch r.Status {
		case StatusSubmitted:
			return metrics.StatusSubmitted
		case StatusPlanned:
			status = metrics.StatusPlanned
		}
	}
	return status
}

// isFatal reports whether retrying the same submission cannot succeed.
// Unclassified errors are treated as retryable.
func isFatal(err error) bool {
	var f interface{ IsFatal() bool }
	if errors.As(err, &f) {
		return f.IsFatal()
	}
	return false
}
