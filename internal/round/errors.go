package round

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by readers when a round or entry does not exist.
	ErrNotFound = errors.New("round not found")
	// ErrStageMismatch matches every *StageMismatchError.
	ErrStageMismatch = errors.New("stage mismatch")
	// ErrIllegalTransition is returned for transitions the lifecycle never allows.
	ErrIllegalTransition = errors.New("illegal stage transition")
)

// StageMismatchError reports a round that is not in the stage an operation needs.
type StageMismatchError struct {
	Game    Game
	RoundID int64
	Want    Stage
	Got     Stage
}

func (e *StageMismatchError) Error() string {
	return fmt.Sprintf("%s round %d: stage is %s, want %s", e.Game, e.RoundID, e.Got, e.Want)
}

// Is makes errors.Is(err, ErrStageMismatch) hold.
func (e *StageMismatchError) Is(target error) bool {
	return target == ErrStageMismatch
}
