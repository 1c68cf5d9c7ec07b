package store

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/round"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "settler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestMigrationIdempotency(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Migrate(ctx), "migrate pass %d", i+1)
	}
	require.NoError(t, db.Ping(ctx))

	_, err := db.FetchRound(ctx, round.GameLottery, 1)
	assert.ErrorIs(t, err, round.ErrNotFound)
}

func TestProgramStateRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	st := &round.ProgramState{
		Game:               round.GameLottery,
		RoundCounter:       12,
		CurrentRound:       12,
		BonusTable:         engine.DefaultBonusTable(),
		Mint:               "mint",
		Treasury:           "treasury",
		TaxPercentage:      2,
		BurnPercentage:     50,
		LotteryMaxNumber:   36,
		LotteryLen:         4,
		RewardDistribution: []int{0, 0, 10, 20, 50, 0, 0},
	}
	require.NoError(t, db.UpsertProgramState(ctx, st))

	got, err := db.FetchProgramState(ctx, round.GameLottery)
	require.NoError(t, err)
	assert.Equal(t, st, got)

	st.RoundCounter = 13
	require.NoError(t, db.UpsertProgramState(ctx, st))
	got, err = db.FetchProgramState(ctx, round.GameLottery)
	require.NoError(t, err)
	assert.Equal(t, int64(13), got.RoundCounter)

	_, err = db.FetchProgramState(ctx, round.GameSpinner)
	assert.ErrorIs(t, err, round.ErrNotFound)
}

func TestRoundRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	share := engine.NewFixed(508724, 4)
	rounds := []round.Round{
		{
			ID: 3, Game: round.GamePricePredict, Stage: round.StageLive,
			UnixTimeStart: 1000, UnixTimeEnd: 2000, Pool: "pool", Mint: "mint",
			PriceStart: big.NewInt(2800654321), PriceEnd: big.NewInt(2900123456), PriceDecimals: 8,
			ResultShare: &share,
		},
		{
			ID: 4, Game: round.GamePricePredict, Stage: round.StageWaitStartRound,
		},
		{
			ID: 1, Game: round.GameLottery, Stage: round.StageSelling,
			LotteryResult: []int{3, 7, 11, 20, 0, 0}, LotteryLen: 4,
		},
	}
	for i := range rounds {
		require.NoError(t, db.UpsertRound(ctx, &rounds[i]))
	}

	got, err := db.FetchRound(ctx, round.GamePricePredict, 3)
	require.NoError(t, err)
	assert.Equal(t, round.StageLive, got.Stage)
	assert.Equal(t, 0, got.PriceStart.Cmp(big.NewInt(2800654321)))
	assert.Equal(t, 0, got.PriceEnd.Cmp(big.NewInt(2900123456)))
	require.NotNil(t, got.ResultShare)
	assert.Equal(t, "50.8724", got.ResultShare.String())

	empty, err := db.FetchRound(ctx, round.GamePricePredict, 4)
	require.NoError(t, err)
	assert.False(t, empty.HasPrices())
	assert.Nil(t, empty.ResultShare)
	assert.Nil(t, empty.LotteryResult)

	lottery, err := db.FetchRound(ctx, round.GameLottery, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 11, 20, 0, 0}, lottery.LotteryResult)
	assert.True(t, lottery.HasLotteryResult())

	list, err := db.ListRounds(ctx, round.GamePricePredict)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(3), list[0].ID)
	assert.Equal(t, int64(4), list[1].ID)

	_, err = db.FetchRound(ctx, round.GamePricePredict, 99)
	assert.ErrorIs(t, err, round.ErrNotFound)
}

func TestEndedRoundIsFrozen(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ended := &round.Round{
		ID: 1, Game: round.GameLottery, Stage: round.StageEnded,
		LotteryResult: []int{1, 5, 10, 15, 0, 0}, LotteryLen: 4,
	}
	require.NoError(t, db.UpsertRound(ctx, ended))

	err := db.UpsertRound(ctx, &round.Round{
		ID: 1, Game: round.GameLottery, Stage: round.StageSelling,
		LotteryResult: []int{2, 3, 4, 6, 0, 0}, LotteryLen: 4,
	})
	require.ErrorIs(t, err, ErrImmutable)
	var immutable *ImmutableError
	require.True(t, errors.As(err, &immutable))
	assert.Equal(t, int64(1), immutable.RoundID)

	assert.ErrorIs(t, db.UpsertRound(ctx, &round.Round{
		ID: 1, Game: round.GameLottery, Stage: round.StageCanceled,
	}), ErrImmutable)

	// repeating the stored round is accepted
	require.NoError(t, db.UpsertRound(ctx, &round.Round{
		ID: 1, Game: round.GameLottery, Stage: round.StageEnded,
		LotteryResult: []int{1, 5, 10, 15, 0, 0}, LotteryLen: 4,
	}))

	got, err := db.FetchRound(ctx, round.GameLottery, 1)
	require.NoError(t, err)
	assert.Equal(t, round.StageEnded, got.Stage)
	assert.Equal(t, []int{1, 5, 10, 15, 0, 0}, got.LotteryResult)
}

func TestOutcomeIsWriteOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	live := &round.Round{
		ID: 2, Game: round.GameUpOrDown, Stage: round.StageLive,
		PriceStart: big.NewInt(100), PriceEnd: big.NewInt(120), PriceDecimals: 2,
	}
	require.NoError(t, db.UpsertRound(ctx, live))

	repriced := *live
	repriced.PriceEnd = big.NewInt(80)
	assert.ErrorIs(t, db.UpsertRound(ctx, &repriced), ErrImmutable)

	regressed := *live
	regressed.Stage = round.StagePrediction
	assert.ErrorIs(t, db.UpsertRound(ctx, &regressed), ErrImmutable)

	// an ending write that omits prices keeps the recorded ones
	require.NoError(t, db.UpsertRound(ctx, &round.Round{
		ID: 2, Game: round.GameUpOrDown, Stage: round.StageEnded, UnixTimeEnd: 500,
	}))
	got, err := db.FetchRound(ctx, round.GameUpOrDown, 2)
	require.NoError(t, err)
	assert.Equal(t, round.StageEnded, got.Stage)
	assert.Equal(t, int64(500), got.UnixTimeEnd)
	assert.Equal(t, 0, got.PriceEnd.Cmp(big.NewInt(120)))
	assert.Equal(t, int32(2), got.PriceDecimals)
}

func TestEntriesAreWriteOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ticket := round.Ticket{ID: "t1", Owner: "alice", RoundID: 1, Numbers: []int{1, 2, 3, 4, 0, 0}}
	require.NoError(t, db.SaveTickets(ctx, round.GameLottery, []round.Ticket{ticket}))
	require.NoError(t, db.SaveTickets(ctx, round.GameLottery, []round.Ticket{ticket}))

	changed := ticket
	changed.Numbers = []int{5, 6, 7, 8, 0, 0}
	err := db.SaveTickets(ctx, round.GameLottery, []round.Ticket{
		{ID: "t2", Owner: "bob", RoundID: 1, Numbers: []int{9, 10, 11, 12, 0, 0}},
		changed,
	})
	require.ErrorIs(t, err, ErrImmutable)

	tickets, err := db.ListTickets(ctx, round.GameLottery, 1)
	require.NoError(t, err)
	require.Len(t, tickets, 1, "a rejected batch stores nothing")
	assert.Equal(t, []int{1, 2, 3, 4, 0, 0}, tickets[0].Numbers)

	pred := round.Prediction{ID: "p1", Owner: "alice", RoundID: 3, Stake: 100, IsUp: true, Timestamp: 7}
	require.NoError(t, db.SavePredictions(ctx, round.GameUpOrDown, []round.Prediction{pred}))
	require.NoError(t, db.SavePredictions(ctx, round.GameUpOrDown, []round.Prediction{pred}))

	flipped := pred
	flipped.IsUp = false
	assert.ErrorIs(t, db.SavePredictions(ctx, round.GameUpOrDown, []round.Prediction{flipped}), ErrImmutable)

	preds, err := db.ListPredictions(ctx, round.GameUpOrDown, 3)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.True(t, preds[0].IsUp)
}

func TestEntriesAreScopedByRound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveTickets(ctx, round.GameLottery, []round.Ticket{
		{ID: "t2", Owner: "bob", RoundID: 1, Numbers: []int{1, 2, 3, 4, 0, 0}},
		{ID: "t1", Owner: "alice", RoundID: 1, Numbers: []int{3, 7, 11, 20, 0, 0}},
		{ID: "t3", Owner: "carol", RoundID: 2, Numbers: []int{5, 6, 7, 8, 0, 0}},
	}))
	tickets, err := db.ListTickets(ctx, round.GameLottery, 1)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "t1", tickets[0].ID)
	assert.Equal(t, []int{3, 7, 11, 20, 0, 0}, tickets[0].Numbers)

	require.NoError(t, db.SavePredictions(ctx, round.GamePricePredict, []round.Prediction{
		{ID: "p1", Owner: "alice", RoundID: 7, Stake: 1<<63 + 5, PredictedShare: engine.NewFixed(450000, 4), Timestamp: 10},
		{ID: "p2", Owner: "bob", RoundID: 7, Stake: 10, IsUp: true, PredictedShare: engine.NewFixed(0, 4), Timestamp: 11},
	}))
	preds, err := db.ListPredictions(ctx, round.GamePricePredict, 7)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, uint64(1<<63+5), preds[0].Stake)
	assert.Equal(t, "45.0000", preds[0].PredictedShare.String())
	assert.True(t, preds[1].IsUp)

	none, err := db.ListPredictions(ctx, round.GameUpOrDown, 7)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBeginRunIsIdempotentOnceProcessed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	req := RunRequest{Game: round.GameLottery, RoundID: 5, Kind: KindFinalizeLottery, ParamsJSON: `{"round_id":5}`}

	run, started, err := db.BeginRun(ctx, req)
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, RunProcessing, run.Status)
	assert.Equal(t, 1, run.Attempts)

	_, _, err = db.BeginRun(ctx, req)
	assert.ErrorIs(t, err, ErrRunInProgress)

	require.NoError(t, db.CompleteRun(ctx, run.ID, "sig-1"))

	again, started, err := db.BeginRun(ctx, req)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, run.ID, again.ID)
	assert.Equal(t, RunProcessed, again.Status)
	assert.Equal(t, "sig-1", again.SubmitRef)

	// a processed run can't be completed twice
	assert.ErrorIs(t, db.CompleteRun(ctx, run.ID, "sig-2"), ErrRunNotFound)
}

func TestRetryableRunIsResumed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	req := RunRequest{Game: round.GamePricePredict, RoundID: 9, Kind: KindPredictionEnd}

	run, _, err := db.BeginRun(ctx, req)
	require.NoError(t, err)
	require.NoError(t, db.FailRun(ctx, run.ID, errors.New("gateway timeout"), false))

	failed, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunRetryableError, failed.Status)
	assert.Equal(t, "gateway timeout", failed.Error)

	resumed, started, err := db.BeginRun(ctx, req)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, run.ID, resumed.ID)
	assert.Equal(t, 2, resumed.Attempts)
	assert.Empty(t, resumed.Error)
}

func TestFatalRunStartsFresh(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	req := RunRequest{Game: round.GameUpOrDown, RoundID: 2, Kind: KindResolveClaims}

	run, _, err := db.BeginRun(ctx, req)
	require.NoError(t, err)
	require.NoError(t, db.FailRun(ctx, run.ID, engine.ErrArithmeticOverflow, true))

	next, started, err := db.BeginRun(ctx, req)
	require.NoError(t, err)
	assert.True(t, started)
	assert.NotEqual(t, run.ID, next.ID)
	assert.Equal(t, 1, next.Attempts)
}

func TestRecoverInterrupted(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run, _, err := db.BeginRun(ctx, RunRequest{Game: round.GameLottery, RoundID: 1, Kind: KindFinalizeLottery})
	require.NoError(t, err)

	n, err := db.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunRetryableError, got.Status)
}

func TestListRuns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		run, _, err := db.BeginRun(ctx, RunRequest{Game: round.GameLottery, RoundID: i, Kind: KindFinalizeLottery})
		require.NoError(t, err)
		require.NoError(t, db.CompleteRun(ctx, run.ID, "ok"))
	}
	run, _, err := db.BeginRun(ctx, RunRequest{Game: round.GameUpOrDown, RoundID: 1, Kind: KindResolveClaims})
	require.NoError(t, err)
	require.NoError(t, db.FailRun(ctx, run.ID, errors.New("boom"), true))

	tests := []struct {
		name          string
		query         RunsQuery
		expectedCount int
		expectedTotal int
		expectedPages int
	}{
		{"all runs", RunsQuery{}, 6, 6, 1},
		{"by game", RunsQuery{Game: string(round.GameLottery)}, 5, 5, 1},
		{"by status", RunsQuery{Status: RunFatalError}, 1, 1, 1},
		{"first page", RunsQuery{Page: 1, PerPage: 4}, 4, 6, 2},
		{"second page", RunsQuery{Page: 2, PerPage: 4}, 2, 6, 2},
		{"past the end", RunsQuery{Page: 3, PerPage: 4}, 0, 6, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := db.ListRuns(ctx, tt.query)
			require.NoError(t, err)
			assert.Len(t, list.Runs, tt.expectedCount)
			assert.Equal(t, tt.expectedTotal, list.TotalCount)
			assert.Equal(t, tt.expectedPages, list.TotalPages)
		})
	}

	list, err := db.ListRuns(ctx, RunsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 50, list.PerPage)
	assert.Equal(t, run.ID, list.Runs[0].ID, "newest first")
}

func TestGetRunNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
