package round

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageWireCodes(t *testing.T) {
	assert.Equal(t, Stage(0), StageWaitStartRound)
	assert.Equal(t, Stage(1), StagePrediction)
	assert.Equal(t, Stage(2), StageLive)
	assert.Equal(t, Stage(3), StageEnded)
	assert.Equal(t, Stage(4), StageCanceled)
	assert.Equal(t, StagePrediction, StageSelling)
	assert.False(t, Stage(5).Valid())
}

func TestParseGame(t *testing.T) {
	for _, g := range Games() {
		got, err := ParseGame(string(g))
		require.NoError(t, err)
		assert.Equal(t, g, got)
	}
	_, err := ParseGame("roulette")
	assert.Error(t, err)
	_, err = ParseGame("")
	assert.Error(t, err)
}

func TestParseStage(t *testing.T) {
	tests := map[string]Stage{
		"live":             StageLive,
		"LIVE":             StageLive,
		"selling":          StageSelling,
		"wait_start_round": StageWaitStartRound,
		"3":                StageEnded,
		"canceled":         StageCanceled,
	}
	for in, want := range tests {
		got, err := ParseStage(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "5", "-1", "finished"} {
		_, err := ParseStage(bad)
		assert.Error(t, err, bad)
	}
}

func TestFullCycleTransitions(t *testing.T) {
	tests := []struct {
		from, to Stage
		ok       bool
	}{
		{StageWaitStartRound, StagePrediction, true},
		{StagePrediction, StageLive, true},
		{StageLive, StageEnded, true},
		{StageWaitStartRound, StageCanceled, true},
		{StagePrediction, StageCanceled, true},
		{StageLive, StageCanceled, true},
		{StageWaitStartRound, StageLive, false},
		{StagePrediction, StageEnded, false},
		{StageLive, StagePrediction, false},
		{StageEnded, StageCanceled, false},
		{StageCanceled, StageWaitStartRound, false},
		{StageEnded, StageEnded, false},
	}

	for _, tt := range tests {
		err := FullCycle.CheckTransition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.ErrorIs(t, err, ErrIllegalTransition, "%s -> %s", tt.from, tt.to)
		}
	}
}

func TestOpenFinalCycleTransitions(t *testing.T) {
	assert.NoError(t, OpenFinalCycle.CheckTransition(StageSelling, StageEnded))
	assert.NoError(t, OpenFinalCycle.CheckTransition(StageSelling, StageCanceled))
	assert.ErrorIs(t, OpenFinalCycle.CheckTransition(StageSelling, StageLive), ErrIllegalTransition)
	assert.ErrorIs(t, OpenFinalCycle.CheckTransition(StageWaitStartRound, StageSelling), ErrIllegalTransition)
	assert.ErrorIs(t, OpenFinalCycle.CheckTransition(StageEnded, StageCanceled), ErrIllegalTransition)
}

func TestLifecycleFor(t *testing.T) {
	assert.Equal(t, "open-final", LifecycleFor(GameLottery).Name)
	assert.Equal(t, "open-final", LifecycleFor(GameSpinner).Name)
	assert.Equal(t, "full", LifecycleFor(GamePricePredict).Name)
	assert.Equal(t, "full", LifecycleFor(GameUpOrDown).Name)
}

func TestRequire(t *testing.T) {
	r := &Round{ID: 12, Game: GameUpOrDown, Stage: StageLive}
	assert.NoError(t, Require(r, StageLive))

	err := Require(r, StageEnded)
	require.ErrorIs(t, err, ErrStageMismatch)

	var mismatch *StageMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, int64(12), mismatch.RoundID)
	assert.Equal(t, StageEnded, mismatch.Want)
	assert.Equal(t, StageLive, mismatch.Got)
	assert.Equal(t, "up-or-down round 12: stage is live, want ended", err.Error())
}

func TestRequireTransition(t *testing.T) {
	r := &Round{ID: 3, Game: GameUpOrDown, Stage: StagePrediction}
	assert.NoError(t, RequireTransition(r, StageLive))
	assert.NoError(t, RequireTransition(r, StageCanceled))

	err := RequireTransition(r, StageEnded)
	var mismatch *StageMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, StageLive, mismatch.Want)

	done := &Round{ID: 4, Game: GameUpOrDown, Stage: StageEnded}
	assert.ErrorIs(t, RequireTransition(done, StageCanceled), ErrIllegalTransition)
}

func TestPlanCleanup(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	old := now.Add(-49 * time.Hour).Unix()
	recent := now.Add(-time.Hour).Unix()

	rounds := []Round{
		{ID: 5, Stage: StageEnded, UnixTimeStart: old},
		{ID: 2, Stage: StageCanceled, UnixTimeStart: old},
		{ID: 6, Stage: StageEnded, UnixTimeStart: recent},
		{ID: 7, Stage: StageLive, UnixTimeStart: old},
		{ID: 8, Stage: StagePrediction, UnixTimeStart: recent},
	}

	state := &ProgramState{Game: GameUpOrDown, RoundCounter: 9}
	assert.Equal(t, []int64{2, 5}, PlanCleanup(state, rounds, now, DefaultClearAfter))

	lottery := &ProgramState{Game: GameLottery, CurrentRound: 7}
	assert.Equal(t, []int64{2, 5, 6, 8}, PlanCleanup(lottery, rounds, now, DefaultClearAfter))
}

func TestPlanCancel(t *testing.T) {
	rounds := []Round{
		{ID: 3, Stage: StageLive},
		{ID: 1, Stage: StageWaitStartRound},
		{ID: 2, Stage: StageEnded},
		{ID: 4, Stage: StageCanceled},
		{ID: 5, Stage: StagePrediction},
	}
	assert.Equal(t, []int64{1, 3, 5}, PlanCancel(rounds))
	assert.Empty(t, PlanCancel(nil))
}
