package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lamas-finance/round-settler/internal/round"
)

var (
	// ErrRunInProgress is returned by BeginRun when another run for the same
	// round and kind is still processing.
	ErrRunInProgress = errors.New("settlement run already in progress")

	// ErrRunNotFound is returned when a run id is unknown.
	ErrRunNotFound = errors.New("settlement run not found")

	// ErrImmutable matches every *ImmutableError.
	ErrImmutable = errors.New("ledger record is immutable")
)

// ImmutableError rejects a mirror write that would change a finished round, a
// recorded outcome or an existing entry.
type ImmutableError struct {
	Game    round.Game
	RoundID int64
	// Record is "round" or the entry id.
	Record string
	Field  string
}

func (e *ImmutableError) Error() string {
	if e.Record == "round" {
		return fmt.Sprintf("%s round %d: %s is already recorded", e.Game, e.RoundID, e.Field)
	}
	return fmt.Sprintf("%s round %d entry %s: %s is already recorded", e.Game, e.RoundID, e.Record, e.Field)
}

// Is makes errors.Is(err, ErrImmutable) hold.
func (e *ImmutableError) Is(target error) bool {
	return target == ErrImmutable
}

// DB is the settler's local persistence: a mirror of ledger records and the
// settlement journal.
type DB interface {
	Close() error
	Migrate(ctx context.Context) error

	FetchProgramState(ctx context.Context, game round.Game) (*round.ProgramState, error)
	FetchRound(ctx context.Context, game round.Game, id int64) (*round.Round, error)
	ListRounds(ctx context.Context, game round.Game) ([]round.Round, error)
	ListTickets(ctx context.Context, game round.Game, roundID int64) ([]round.Ticket, error)
	ListPredictions(ctx context.Context, game round.Game, roundID int64) ([]round.Prediction, error)

	UpsertProgramState(ctx context.Context, st *round.ProgramState) error
	UpsertRound(ctx context.Context, r *round.Round) error
	SaveTickets(ctx context.Context, game round.Game, tickets []round.Ticket) error
	SavePredictions(ctx context.Context, game round.Game, preds []round.Prediction) error

	BeginRun(ctx context.Context, req RunRequest) (*Run, bool, error)
	CompleteRun(ctx context.Context, id, submitRef string) error
	FailRun(ctx context.Context, id string, cause error, fatal bool) error
	RecoverInterrupted(ctx context.Context) (int64, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, query RunsQuery) (*RunsList, error)
}

// RunStatus is the state of a settlement run.
type RunStatus string

const (
	RunNew            RunStatus = "new"
	RunProcessing     RunStatus = "processing"
	RunProcessed      RunStatus = "processed"
	RunFatalError     RunStatus = "fatal_error"
	RunRetryableError RunStatus = "retryable_error"
)

// RunKind names the pass a run belongs to.
type RunKind string

const (
	KindFinalizeLottery RunKind = "finalize_lottery"
	KindPredictionEnd   RunKind = "prediction_end"
	KindResolveClaims   RunKind = "resolve_claims"
	KindStartRound      RunKind = "start_round"
	KindStartLive       RunKind = "start_live"
	KindEndLive         RunKind = "end_live"
	KindCleanup         RunKind = "cleanup"
	KindCancel          RunKind = "cancel"
)

// RunRequest opens a run.
type RunRequest struct {
	Game       round.Game
	RoundID    int64
	Kind       RunKind
	ParamsJSON string
}

// RunsQuery represents query parameters for listing runs
type RunsQuery struct {
	Game    string    `json:"game,omitempty"`
	Status  RunStatus `json:"status,omitempty"`
	Page    int       `json:"page"`
	PerPage int       `json:"perPage"`
}

// RunsList represents paginated runs response
type RunsList struct {
	Runs       []Run `json:"runs"`
	TotalCount int   `json:"totalCount"`
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	TotalPages int   `json:"totalPages"`
}

// Run is one journaled settlement attempt for a round.
type Run struct {
	ID         string    `json:"id" db:"id"`
	Game       string    `json:"game" db:"game"`
	RoundID    int64     `json:"round_id" db:"round_id"`
	Kind       RunKind   `json:"kind" db:"kind"`
	Status     RunStatus `json:"status" db:"status"`
	ParamsJSON string    `json:"params_json" db:"params_json"` // settlement parameters as submitted
	SubmitRef  string    `json:"submit_ref,omitempty" db:"submit_ref"`
	Error      string    `json:"error,omitempty" db:"error"`
	Attempts   int       `json:"attempts" db:"attempts"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
