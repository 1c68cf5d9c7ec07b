package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/settle"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []round.Game
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, game round.Game) ([]settle.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, game)
	if f.err != nil {
		return nil, f.err
	}
	return []settle.Result{{Status: settle.StatusSubmitted}}, nil
}

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(&fakeRunner{}, nil, 0)
	err := s.Add(round.GameLottery, "every tuesday")
	assert.Error(t, err)
	assert.Empty(t, s.Entries())
}

func TestAddReplacesSchedule(t *testing.T) {
	s := New(&fakeRunner{}, nil, 0)
	require.NoError(t, s.Add(round.GameUpOrDown, "*/5 * * * *"))
	require.NoError(t, s.Add(round.GameUpOrDown, "30 */5 * * * *"))
	require.NoError(t, s.Add(round.GameLottery, "@every 1m"))

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, round.GameLottery, entries[0].Game)
	assert.Equal(t, round.GameUpOrDown, entries[1].Game)
	assert.Equal(t, "30 */5 * * * *", entries[1].Spec)
}

func TestPassLogging(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level zapcore.Level
		msg   string
	}{
		{"submitted", nil, zapcore.InfoLevel, "settlement pass done"},
		{"pending", fmt.Errorf("wrap: %w", settle.ErrOutcomePending), zapcore.DebugLevel, "nothing to settle"},
		{"wrong stage", round.ErrStageMismatch, zapcore.DebugLevel, "nothing to settle"},
		{"failure", errors.New("ledger down"), zapcore.ErrorLevel, "settlement pass failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			runner := &fakeRunner{err: tt.err}
			s := New(runner, zap.New(core), time.Second)

			s.pass(round.GamePricePredict)

			assert.Equal(t, []round.Game{round.GamePricePredict}, runner.calls)
			got := logs.FilterMessage(tt.msg).All()
			require.Len(t, got, 1)
			assert.Equal(t, tt.level, got[0].Level)
			assert.Equal(t, string(round.GamePricePredict), got[0].ContextMap()["game"])
		})
	}
}

func TestStartStop(t *testing.T) {
	s := New(&fakeRunner{}, nil, 0)
	require.NoError(t, s.Add(round.GameLottery, "@every 1h"))
	s.Start()

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Next.IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
