package settle

import (
	"context"
	"encoding/json"

	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/store"
)

// Reader reads ledger records. A missing round or program state is reported
// as round.ErrNotFound.
type Reader interface {
	FetchRound(ctx context.Context, game round.Game, id int64) (*round.Round, error)
	ListTickets(ctx context.Context, game round.Game, roundID int64) ([]round.Ticket, error)
	ListPredictions(ctx context.Context, game round.Game, roundID int64) ([]round.Prediction, error)
	ListRounds(ctx context.Context, game round.Game) ([]round.Round, error)
	FetchProgramState(ctx context.Context, game round.Game) (*round.ProgramState, error)
}

// Instruction is one settlement write handed to the ledger. RunID is the
// journal run it belongs to and stays the same across attempts; it is empty
// when no journal is attached.
type Instruction struct {
	Game    round.Game      `json:"game"`
	Kind    store.RunKind   `json:"kind"`
	RoundID int64           `json:"round_id"`
	RunID   string          `json:"run_id,omitempty"`
	Params  json.RawMessage `json:"params"`
}

// Submitter sends an instruction and returns the ledger's reference for it.
type Submitter interface {
	Submit(ctx context.Context, ins Instruction) (ref string, err error)
}

// Journal records settlement runs so a processed round is never submitted
// twice.
type Journal interface {
	BeginRun(ctx context.Context, req store.RunRequest) (*store.Run, bool, error)
	CompleteRun(ctx context.Context, id, submitRef string) error
	FailRun(ctx context.Context, id string, cause error, fatal bool) error
}
