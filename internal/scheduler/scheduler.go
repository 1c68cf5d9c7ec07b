// Package scheduler triggers settlement passes on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/settle"
)

// Runner runs one game's settlement pass.
type Runner interface {
	Run(ctx context.Context, game round.Game) ([]settle.Result, error)
}

// Parser accepts standard five-field specs, an optional leading seconds field
// and descriptors such as @every 30s.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Entry describes a scheduled game.
type Entry struct {
	Game round.Game `json:"game"`
	Spec string     `json:"spec"`
	Next time.Time  `json:"next"`
	Prev time.Time  `json:"prev,omitempty"`
}

// Scheduler runs settlement passes for each scheduled game. A pass for a
// game is skipped while the previous one is still running.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	log     *zap.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	specs map[round.Game]scheduled
}

type scheduled struct {
	id   cron.EntryID
	spec string
}

// New creates a stopped scheduler. timeout bounds a single pass; zero means
// no bound.
func New(runner Runner, log *zap.Logger, timeout time.Duration) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("scheduler")
	cl := cronLogger{log.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		log:     log,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		specs:   make(map[round.Game]scheduled),
	}
}

// Add schedules game on spec, replacing any earlier schedule for it.
func (s *Scheduler) Add(game round.Game, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.pass(game) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", game, err)
	}
	if prev, ok := s.specs[game]; ok {
		s.cron.Remove(prev.id)
	}
	s.specs[game] = scheduled{id: id, spec: spec}
	s.log.Info("scheduled settlement", zap.String("game", string(game)), zap.String("spec", spec))
	return nil
}

// Start begins running scheduled passes in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops new passes, cancels running ones and waits for them to return
// or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries lists the scheduled games ordered by game.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.specs))
	for g, sc := range s.specs {
		e := s.cron.Entry(sc.id)
		out = append(out, Entry{Game: g, Spec: sc.spec, Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Game < out[j].Game })
	return out
}

func (s *Scheduler) pass(game round.Game) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log := s.log.With(zap.String("game", string(game)))
	results, err := s.runner.Run(ctx, game)
	switch {
	case err != nil && settle.Idle(err):
		log.Debug("nothing to settle", zap.Error(err))
	case err != nil:
		log.Error("settlement pass failed", zap.Error(err))
	default:
		log.Info("settlement pass done", zap.Int("steps", len(results)))
	}
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
