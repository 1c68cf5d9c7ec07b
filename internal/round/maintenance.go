package round

import (
	"sort"
	"time"
)

// DefaultClearAfter is how old a finished round must be before it is cleared.
const DefaultClearAfter = 48 * time.Hour

// PlanCleanup returns the ids of rounds whose accounts can be closed, ascending.
//
// Lottery rounds are cleared as soon as they are not the current round. Other
// games clear rounds that are Ended or Canceled and started at or before
// now-clearAfter.
func PlanCleanup(state *ProgramState, rounds []Round, now time.Time, clearAfter time.Duration) []int64 {
	cutoff := now.Add(-clearAfter).Unix()
	var ids []int64
	for _, r := range rounds {
		if state.Game == GameLottery {
			if r.ID != state.CurrentRound {
				ids = append(ids, r.ID)
			}
			continue
		}
		if r.UnixTimeStart > cutoff || !r.Stage.Terminal() {
			continue
		}
		ids = append(ids, r.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PlanCancel returns the ids of every round that is not yet Ended or Canceled, ascending.
func PlanCancel(rounds []Round) []int64 {
	var ids []int64
	for _, r := range rounds {
		if !r.Stage.Terminal() {
			ids = append(ids, r.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
