package round

import "fmt"

// Lifecycle is the ordered list of forward stages a game's rounds move through.
// Canceled is reachable from every non-terminal stage of every lifecycle.
type Lifecycle struct {
	Name   string
	stages []Stage
}

var (
	// FullCycle is used by price-predict and up-or-down.
	FullCycle = Lifecycle{
		Name:   "full",
		stages: []Stage{StageWaitStartRound, StagePrediction, StageLive, StageEnded},
	}
	// OpenFinalCycle is used by the lottery and the spinner: selling, then finalized.
	OpenFinalCycle = Lifecycle{
		Name:   "open-final",
		stages: []Stage{StageSelling, StageEnded},
	}
)

// LifecycleFor returns the lifecycle a game's rounds follow.
func LifecycleFor(g Game) Lifecycle {
	switch g {
	case GameLottery, GameSpinner:
		return OpenFinalCycle
	default:
		return FullCycle
	}
}

// Stages returns the forward stages in order.
func (l Lifecycle) Stages() []Stage {
	return append([]Stage(nil), l.stages...)
}

// Contains reports whether s is used by this lifecycle.
func (l Lifecycle) Contains(s Stage) bool {
	if s == StageCanceled {
		return true
	}
	for _, st := range l.stages {
		if st == s {
			return true
		}
	}
	return false
}

// Next returns the stage that follows s, or false when s is terminal or unknown.
func (l Lifecycle) Next(s Stage) (Stage, bool) {
	for i, st := range l.stages {
		if st == s && i+1 < len(l.stages) {
			return l.stages[i+1], true
		}
	}
	return 0, false
}

// CheckTransition validates from -> to without performing it.
func (l Lifecycle) CheckTransition(from, to Stage) error {
	if !l.Contains(from) || !l.Contains(to) {
		return fmt.Errorf("%w: %s -> %s not in %s lifecycle", ErrIllegalTransition, from, to, l.Name)
	}
	if from.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrIllegalTransition, from)
	}
	if to == StageCanceled {
		return nil
	}
	if next, ok := l.Next(from); !ok || next != to {
		return fmt.Errorf("%w: %s -> %s skips or reverses a stage", ErrIllegalTransition, from, to)
	}
	return nil
}

// Require returns a *StageMismatchError unless r is in stage want.
func Require(r *Round, want Stage) error {
	if r.Stage != want {
		return &StageMismatchError{Game: r.Game, RoundID: r.ID, Want: want, Got: r.Stage}
	}
	return nil
}

// RequireTransition checks that r sits in the predecessor of to, so that an
// external write moving it to `to` would be accepted.
func RequireTransition(r *Round, to Stage) error {
	l := LifecycleFor(r.Game)
	if err := l.CheckTransition(r.Stage, to); err != nil {
		if to != StageCanceled {
			for i, st := range l.stages {
				if st == to && i > 0 {
					return &StageMismatchError{Game: r.Game, RoundID: r.ID, Want: l.stages[i-1], Got: r.Stage}
				}
			}
		}
		return err
	}
	return nil
}
