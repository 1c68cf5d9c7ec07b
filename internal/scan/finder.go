package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/lamas-finance/round-settler/internal/round"
)

// DefaultWindow is how many trailing rounds are probed. Only the newest few
// rounds can still be waiting on a stage transition.
const DefaultWindow = 6

// RoundFetcher reads one round. A missing round is reported as round.ErrNotFound.
type RoundFetcher interface {
	FetchRound(ctx context.Context, game round.Game, id int64) (*round.Round, error)
}

// ProbeResult classifies one probe for observers.
type ProbeResult string

const (
	ProbeMatch    ProbeResult = "match"
	ProbeMismatch ProbeResult = "mismatch"
	ProbeAbsent   ProbeResult = "absent"
	ProbeError    ProbeResult = "error"
)

// FinderOption configures a RoundFinder.
type FinderOption func(*RoundFinder)

// WithProbeObserver registers a callback invoked once per probed index.
func WithProbeObserver(fn func(game round.Game, id int64, result ProbeResult)) FinderOption {
	return func(f *RoundFinder) {
		f.observe = fn
	}
}

// RoundFinder locates the round in a required stage within a trailing window
// of round indices.
type RoundFinder struct {
	fetcher RoundFetcher
	window  int
	observe func(round.Game, int64, ProbeResult)
}

// NewRoundFinder creates a finder probing window rounds.
func NewRoundFinder(fetcher RoundFetcher, window int, opts ...FinderOption) (*RoundFinder, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, window)
	}
	f := &RoundFinder{fetcher: fetcher, window: window}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Window returns the number of indices probed.
func (f *RoundFinder) Window() int {
	return f.window
}

// Bounds returns the inclusive index range probed for counter, with negative
// indices clamped out. first > last means nothing is probed.
func (f *RoundFinder) Bounds(counter int64) (first, last int64) {
	first = counter - int64(f.window) + 1
	if first < 0 {
		first = 0
	}
	return first, counter
}

// Find probes counter-window+1 .. counter in ascending order and returns the
// first round whose stage is required. Absent rounds are skipped. Any other
// fetch error is returned unchanged. When nothing matches the error wraps
// round.ErrNotFound.
func (f *RoundFinder) Find(ctx context.Context, game round.Game, counter int64, required round.Stage) (*round.Round, error) {
	first, last := f.Bounds(counter)
	for id := first; id <= last; id++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r, err := f.fetcher.FetchRound(ctx, game, id)
		if errors.Is(err, round.ErrNotFound) {
			f.report(game, id, ProbeAbsent)
			continue
		}
		if err != nil {
			f.report(game, id, ProbeError)
			return nil, err
		}
		if r.Stage == required {
			f.report(game, id, ProbeMatch)
			return r, nil
		}
		f.report(game, id, ProbeMismatch)
	}
	return nil, fmt.Errorf("%w: no %s round in stage %s within %d..%d", round.ErrNotFound, game, required, first, last)
}

// FindAll probes the same window as Find and returns every round in stage
// required, ascending. An empty result is not an error.
func (f *RoundFinder) FindAll(ctx context.Context, game round.Game, counter int64, required round.Stage) ([]*round.Round, error) {
	var out []*round.Round
	first, last := f.Bounds(counter)
	for id := first; id <= last; id++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r, err := f.fetcher.FetchRound(ctx, game, id)
		if errors.Is(err, round.ErrNotFound) {
			f.report(game, id, ProbeAbsent)
			continue
		}
		if err != nil {
			f.report(game, id, ProbeError)
			return nil, err
		}
		if r.Stage != required {
			f.report(game, id, ProbeMismatch)
			continue
		}
		f.report(game, id, ProbeMatch)
		out = append(out, r)
	}
	return out, nil
}

func (f *RoundFinder) report(game round.Game, id int64, result ProbeResult) {
	if f.observe != nil {
		f.observe(game, id, result)
	}
}
