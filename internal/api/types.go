package api

import (
	"github.com/lamas-finance/round-settler/internal/games"
	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/scheduler"
	"github.com/lamas-finance/round-settler/internal/settle"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeValidation    = "validation_error"
	ErrTypeInvalidInput  = "invalid_input"
	ErrTypeUnauthorized  = "unauthorized"

	// Round and game errors
	ErrTypeGameNotFound   = "game_not_found"
	ErrTypeRoundNotFound  = "round_not_found"
	ErrTypeStageMismatch  = "stage_mismatch"
	ErrTypeOutcomePending = "outcome_pending"
	ErrTypeUnsupported    = "unsupported"
	ErrTypeOverflow       = "arithmetic_overflow"
	ErrTypeImmutable      = "immutable_record"
	ErrTypeIllegalStage   = "illegal_transition"

	// Settlement journal errors
	ErrTypeRunInProgress = "run_in_progress"
	ErrTypeRunNotFound   = "run_not_found"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeUpstream           = "upstream_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryRound      ErrorCategory = "round"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidParams, ErrTypeValidation, ErrTypeInvalidInput, ErrTypeOverflow, ErrTypeUnauthorized:
		return CategoryValidation
	case ErrTypeGameNotFound, ErrTypeRoundNotFound, ErrTypeStageMismatch, ErrTypeOutcomePending,
		ErrTypeUnsupported, ErrTypeImmutable, ErrTypeIllegalStage, ErrTypeRunInProgress, ErrTypeRunNotFound:
		return CategoryRound
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains build version information
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// GamesResponse lists the configured games
type GamesResponse struct {
	Games   []games.GameSpec `json:"games"`
	Version string           `json:"version"`
}

// RoundResponse is a located round
type RoundResponse struct {
	Round   *round.Round `json:"round"`
	Version string       `json:"version"`
}

// PlanResponse previews a settlement pass
type PlanResponse struct {
	Game    round.Game    `json:"game"`
	Plans   []settle.Plan `json:"plans"`
	Dry     bool          `json:"dry"`
	Version string        `json:"version"`
}

// SettleResponse reports what a settlement pass did
type SettleResponse struct {
	Game    round.Game      `json:"game"`
	Results []settle.Result `json:"results"`
	Version string          `json:"version"`
}

// OpResponse reports a lifecycle operation. Results is empty on a preview.
type OpResponse struct {
	Game    round.Game      `json:"game"`
	Op      settle.Op       `json:"op"`
	Plans   []settle.Plan   `json:"plans,omitempty"`
	Results []settle.Result `json:"results,omitempty"`
	Dry     bool            `json:"dry"`
	Version string          `json:"version"`
}

// ClaimsResponse resolves one up-or-down round
type ClaimsResponse struct {
	*settle.ClaimsParams
	Version string `json:"version"`
}

// SpinnerTableResponse describes the spinner wheel
type SpinnerTableResponse struct {
	Slots       []games.SpinnerSlot `json:"slots"`
	TotalWeight uint64              `json:"total_weight"`
	RTP         string              `json:"rtp"`
	Version     string              `json:"version"`
}

// SpinReplayRequest identifies a spin by the seed and nonce its float was
// drawn from.
type SpinReplayRequest struct {
	Seed  string `json:"seed"`
	Nonce uint64 `json:"nonce"`
	Bet   uint64 `json:"bet"`
}

// SpinReplayResponse is the recomputed spin
type SpinReplayResponse struct {
	games.SpinResult
	Version string `json:"version"`
}

// GenerateTicketsRequest asks for lottery tickets. With a seed the tickets
// are reproducible from seed and nonce; without one they use system entropy.
type GenerateTicketsRequest struct {
	Count     int    `json:"count"`
	MaxNumber int    `json:"max_number,omitempty"`
	Length    int    `json:"length,omitempty"`
	Seed      string `json:"seed,omitempty"`
	Nonce     uint64 `json:"nonce,omitempty"`
}

// GenerateTicketsResponse carries the generated tickets
type GenerateTicketsResponse struct {
	Tickets [][]int                `json:"tickets"`
	Mode    string                 `json:"mode"`
	Echo    GenerateTicketsRequest `json:"echo"`
	Version string                 `json:"version"`
}

// SchedulesResponse lists the cron schedules
type SchedulesResponse struct {
	Schedules []scheduler.Entry `json:"schedules"`
	Version   string            `json:"version"`
}
