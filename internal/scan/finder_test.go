package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamas-finance/round-settler/internal/round"
)

type fakeFetcher struct {
	rounds map[int64]round.Stage
	errAt  map[int64]error
	probed []int64
}

func (f *fakeFetcher) FetchRound(_ context.Context, game round.Game, id int64) (*round.Round, error) {
	f.probed = append(f.probed, id)
	if err, ok := f.errAt[id]; ok {
		return nil, err
	}
	stage, ok := f.rounds[id]
	if !ok {
		return nil, round.ErrNotFound
	}
	return &round.Round{ID: id, Game: game, Stage: stage}, nil
}

func TestFindReturnsNotFoundWhenWindowHasNoMatch(t *testing.T) {
	f := &fakeFetcher{rounds: map[int64]round.Stage{
		5: round.StageEnded, 6: round.StageEnded, 7: round.StageCanceled,
		8: round.StageEnded, 9: round.StageEnded, 10: round.StageEnded,
		// outside the window
		4: round.StageLive,
	}}
	finder, err := NewRoundFinder(f, DefaultWindow)
	require.NoError(t, err)

	_, err = finder.Find(context.Background(), round.GameUpOrDown, 10, round.StageLive)
	require.ErrorIs(t, err, round.ErrNotFound)
	assert.Equal(t, []int64{5, 6, 7, 8, 9, 10}, f.probed)
}

func TestFindReturnsCounterWhenItAloneMatches(t *testing.T) {
	f := &fakeFetcher{rounds: map[int64]round.Stage{
		5: round.StageEnded, 6: round.StageEnded, 7: round.StageEnded,
		8: round.StageEnded, 9: round.StageEnded, 10: round.StageWaitStartRound,
	}}
	finder, err := NewRoundFinder(f, DefaultWindow)
	require.NoError(t, err)

	r, err := finder.Find(context.Background(), round.GameUpOrDown, 10, round.StageWaitStartRound)
	require.NoError(t, err)
	assert.Equal(t, int64(10), r.ID)
}

func TestFindFirstAscendingMatchWins(t *testing.T) {
	f := &fakeFetcher{rounds: map[int64]round.Stage{
		8: round.StageLive, 9: round.StageLive, 10: round.StagePrediction,
	}}
	finder, err := NewRoundFinder(f, DefaultWindow)
	require.NoError(t, err)

	r, err := finder.Find(context.Background(), round.GameUpOrDown, 10, round.StageLive)
	require.NoError(t, err)
	assert.Equal(t, int64(8), r.ID)
	assert.Equal(t, []int64{5, 6, 7, 8}, f.probed)
}

func TestFindClampsNegativeIndices(t *testing.T) {
	f := &fakeFetcher{rounds: map[int64]round.Stage{0: round.StageEnded, 1: round.StageLive}}
	finder, err := NewRoundFinder(f, DefaultWindow)
	require.NoError(t, err)

	r, err := finder.Find(context.Background(), round.GameUpOrDown, 2, round.StageLive)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.ID)
	assert.Equal(t, []int64{0, 1}, f.probed)

	first, last := finder.Bounds(-1)
	assert.Greater(t, first, last)
}

func TestFindPropagatesTransportErrorUnchanged(t *testing.T) {
	transport := errors.New("connection reset")
	f := &fakeFetcher{
		rounds: map[int64]round.Stage{9: round.StageLive},
		errAt:  map[int64]error{7: transport},
	}
	finder, err := NewRoundFinder(f, DefaultWindow)
	require.NoError(t, err)

	_, err = finder.Find(context.Background(), round.GameUpOrDown, 10, round.StageLive)
	assert.Same(t, transport, err)
	assert.Equal(t, []int64{5, 6, 7}, f.probed)
}

func TestFindHonoursConfiguredWindow(t *testing.T) {
	f := &fakeFetcher{rounds: map[int64]round.Stage{7: round.StageLive}}
	finder, err := NewRoundFinder(f, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, finder.Window())

	_, err = finder.Find(context.Background(), round.GameUpOrDown, 10, round.StageLive)
	assert.ErrorIs(t, err, round.ErrNotFound)
	assert.Equal(t, []int64{8, 9, 10}, f.probed)
}

func TestFindReportsProbes(t *testing.T) {
	f := &fakeFetcher{rounds: map[int64]round.Stage{1: round.StageEnded, 2: round.StageLive}}
	var got []ProbeResult
	finder, err := NewRoundFinder(f, 3, WithProbeObserver(func(_ round.Game, _ int64, r ProbeResult) {
		got = append(got, r)
	}))
	require.NoError(t, err)

	_, err = finder.Find(context.Background(), round.GamePricePredict, 2, round.StageLive)
	require.NoError(t, err)
	assert.Equal(t, []ProbeResult{ProbeAbsent, ProbeMismatch, ProbeMatch}, got)
}

func TestFindStopsOnCanceledContext(t *testing.T) {
	f := &fakeFetcher{rounds: map[int64]round.Stage{}}
	finder, err := NewRoundFinder(f, DefaultWindow)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = finder.Find(ctx, round.GameUpOrDown, 10, round.StageLive)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.probed)
}

func TestNewRoundFinderRejectsEmptyWindow(t *testing.T) {
	_, err := NewRoundFinder(&fakeFetcher{}, 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestFindAllCollectsEveryMatch(t *testing.T) {
	f := &fakeFetcher{rounds: map[int64]round.Stage{
		4: round.StageEnded, 5: round.StageEnded, 6: round.StageCanceled,
		8: round.StageEnded, 9: round.StageLive, 10: round.StagePrediction,
	}}
	finder, err := NewRoundFinder(f, DefaultWindow)
	require.NoError(t, err)

	rs, err := finder.FindAll(context.Background(), round.GameUpOrDown, 10, round.StageEnded)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, int64(5), rs[0].ID)
	assert.Equal(t, int64(8), rs[1].ID)

	none, err := finder.FindAll(context.Background(), round.GameUpOrDown, 10, round.StageWaitStartRound)
	require.NoError(t, err)
	assert.Empty(t, none)
}
