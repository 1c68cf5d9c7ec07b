// Package settle runs settlement passes: it locates the round a game needs
// settled, scores that round's entries and submits the resulting parameters
// through the ledger.
package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/games"
	"github.com/lamas-finance/round-settler/internal/metrics"
	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/scan"
)

// ErrOutcomePending is returned when a round is in the right stage but its
// outcome (drawn numbers, end price) has not been written yet.
var ErrOutcomePending = errors.New("round outcome not recorded yet")

// Config is the settler's immutable configuration.
type Config struct {
	// Window is how many trailing rounds the finder probes.
	Window int

	// BonusTable is used when a program state carries none.
	BonusTable engine.BonusTable

	// ClearAfter is how old a finished round must be before cleanup.
	ClearAfter time.Duration

	// Submit enables submitting; otherwise Run only plans.
	Submit bool
}

// Settler runs settlement passes. It holds no mutable state and is safe for
// concurrent use.
type Settler struct {
	cfg      Config
	reader   Reader
	submit   Submitter
	journal  Journal
	registry *games.Registry
	finder   *scan.RoundFinder
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Settler.
type Option func(*Settler)

// WithSubmitter sets where instructions are sent.
func WithSubmitter(s Submitter) Option {
	return func(st *Settler) { st.submit = s }
}

// WithJournal records runs so processed rounds are not resubmitted.
func WithJournal(j Journal) Option {
	return func(st *Settler) { st.journal = j }
}

// WithRegistry overrides the default game parameters.
func WithRegistry(r *games.Registry) Option {
	return func(st *Settler) { st.registry = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(st *Settler) { st.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(st *Settler) { st.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(st *Settler) { st.now = now }
}

// New creates a Settler reading through reader.
func New(cfg Config, reader Reader, opts ...Option) (*Settler, error) {
	if reader == nil {
		return nil, errors.New("settle: reader is required")
	}
	if cfg.Window == 0 {
		cfg.Window = scan.DefaultWindow
	}
	if cfg.BonusTable == nil {
		cfg.BonusTable = engine.DefaultBonusTable()
	}
	if err := cfg.BonusTable.Validate(); err != nil {
		return nil, fmt.Errorf("settle: bonus table: %w", err)
	}
	if cfg.ClearAfter == 0 {
		cfg.ClearAfter = round.DefaultClearAfter
	}

	s := &Settler{
		cfg:      cfg,
		reader:   reader,
		registry: games.DefaultRegistry(),
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("settle")

	finder, err := scan.NewRoundFinder(reader, cfg.Window, scan.WithProbeObserver(
		func(g round.Game, id int64, r scan.ProbeResult) {
			s.metrics.ObserveProbe(string(g), string(r))
			s.log.Debug("probed round", zap.String("game", string(g)), zap.Int64("round", id), zap.String("result", string(r)))
		}))
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	s.finder = finder
	return s, nil
}

// Registry returns the games the settler knows.
func (s *Settler) Registry() *games.Registry {
	return s.registry
}

// Dry reports whether Run only plans.
func (s *Settler) Dry() bool {
	return !s.cfg.Submit || s.submit == nil
}

// FindRound locates the round of game in stage within the window ending at the
// program's round counter.
func (s *Settler) FindRound(ctx context.Context, game round.Game, stage round.Stage) (*round.Round, error) {
	state, err := s.reader.FetchProgramState(ctx, game)
	if err != nil {
		return nil, err
	}
	return s.finder.Find(ctx, game, state.RoundCounter, stage)
}

// FinalizeLottery builds the histogram for the lottery's current round. The
// round must be selling and have its numbers drawn.
func (s *Settler) FinalizeLottery(ctx context.Context) (*LotteryParams, error) {
	state, err := s.reader.FetchProgramState(ctx, round.GameLottery)
	if err != nil {
		return nil, err
	}
	r, err := s.reader.FetchRound(ctx, round.GameLottery, state.CurrentRound)
	if err != nil {
		return nil, err
	}
	if err := round.Require(r, round.StageSelling); err != nil {
		return nil, err
	}
	if !r.HasLotteryResult() {
		return nil, fmt.Errorf("%w: lottery round %d", ErrOutcomePending, r.ID)
	}

	g, err := s.lottery(state)
	if err != nil {
		return nil, err
	}
	tickets, err := s.reader.ListTickets(ctx, round.GameLottery, r.ID)
	if err != nil {
		return nil, err
	}
	h, entries, err := g.Finalize(r, tickets)
	if err != nil {
		return nil, err
	}

	params := &LotteryParams{RoundID: r.ID, Histogram: h, Entries: entries}
	if r.PoolBalance != nil {
		preview := g.Payouts(r.PoolBalance, h)
		params.Payouts = &preview
	}
	return params, nil
}

// ComputePredictionEnd scores every prediction of price-predict's current
// round against its realized share. The round must be live with its end price
// recorded.
func (s *Settler) ComputePredictionEnd(ctx context.Context) (*PredictionParams, error) {
	state, err := s.reader.FetchProgramState(ctx, round.GamePricePredict)
	if err != nil {
		return nil, err
	}
	r, err := s.reader.FetchRound(ctx, round.GamePricePredict, state.CurrentRound)
	if err != nil {
		return nil, err
	}
	if err := round.Require(r, round.StageLive); err != nil {
		return nil, err
	}
	if r.ResultShare == nil && !r.HasPrices() {
		return nil, fmt.Errorf("%w: price-predict round %d", ErrOutcomePending, r.ID)
	}

	g, ok := s.registry.PricePredict()
	if !ok {
		return nil, fmt.Errorf("%w: price-predict is not registered", games.ErrUnsupported)
	}
	preds, err := s.reader.ListPredictions(ctx, round.GamePricePredict, r.ID)
	if err != nil {
		return nil, err
	}

	bonus := state.BonusTable
	if len(bonus) == 0 {
		bonus = s.cfg.BonusTable
	}
	res, err := g.Settle(r, preds, bonus)
	if err != nil {
		return nil, err
	}
	return &PredictionParams{
		RoundID:               r.ID,
		ActualShare:           res.ActualShare,
		SumStake:              res.Aggregate.SumStake.String(),
		SumStakeWeightedScore: res.Aggregate.SumStakeWeightedScore.String(),
		Entries:               res.Entries,
	}, nil
}

// ResolveUpOrDown decides every claim of an ended up-or-down round.
func (s *Settler) ResolveUpOrDown(ctx context.Context, roundID int64) (*ClaimsParams, error) {
	r, err := s.reader.FetchRound(ctx, round.GameUpOrDown, roundID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, r)
}

func (s *Settler) resolve(ctx context.Context, r *round.Round) (*ClaimsParams, error) {
	if err := round.Require(r, round.StageEnded); err != nil {
		return nil, err
	}
	g, ok := s.registry.UpOrDown()
	if !ok {
		return nil, fmt.Errorf("%w: up-or-down is not registered", games.ErrUnsupported)
	}
	preds, err := s.reader.ListPredictions(ctx, round.GameUpOrDown, r.ID)
	if err != nil {
		return nil, err
	}
	dir, claims, err := g.Resolve(r, preds)
	if err != nil {
		return nil, err
	}
	return &ClaimsParams{RoundID: r.ID, Direction: dir, Claims: claims}, nil
}

// lottery is the registered lottery with any parameters the program state
// carries taking precedence.
func (s *Settler) lottery(state *round.ProgramState) (games.LotteryGame, error) {
	g, ok := s.registry.Lottery()
	if !ok {
		return games.LotteryGame{}, fmt.Errorf("%w: jackpot-lottery is not registered", games.ErrUnsupported)
	}
	if state.LotteryMaxNumber > 0 {
		g.MaxNumber = state.LotteryMaxNumber
	}
	if state.LotteryLen > 0 {
		g.TicketLen = state.LotteryLen
	}
	if len(state.RewardDistribution) == len(g.RewardDistribution) {
		copy(g.RewardDistribution[:], state.RewardDistribution)
	}
	if state.TaxPercentage > 0 {
		g.TaxPercentage = state.TaxPercentage
	}
	if state.BurnPercentage > 0 {
		g.BurnPercentage = state.BurnPercentage
	}
	if err := g.Validate(); err != nil {
		return games.LotteryGame{}, fmt.Errorf("lottery parameters: %w", err)
	}
	return g, nil
}
