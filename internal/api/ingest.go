package api

import (
	"context"
	"crypto/subtle"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/store"
)

// Mirror stores ledger records pushed by an indexer.
type Mirror interface {
	UpsertProgramState(ctx context.Context, st *round.ProgramState) error
	UpsertRound(ctx context.Context, r *round.Round) error
	SaveTickets(ctx context.Context, game round.Game, tickets []round.Ticket) error
	SavePredictions(ctx context.Context, game round.Game, preds []round.Prediction) error
}

// IngestRequest carries ledger records for one game. Every part is optional.
type IngestRequest struct {
	ProgramState *round.ProgramState `json:"program_state,omitempty"`
	Rounds       []round.Round       `json:"rounds,omitempty"`
	Tickets      []round.Ticket      `json:"tickets,omitempty"`
	Predictions  []round.Prediction  `json:"predictions,omitempty"`
}

// IngestResponse counts what was stored.
type IngestResponse struct {
	Game        round.Game `json:"game"`
	State       bool       `json:"state"`
	Rounds      int        `json:"rounds"`
	Tickets     int        `json:"tickets"`
	Predictions int        `json:"predictions"`
}

const maxIngestBody = 8 << 20

// POST /api/v1/ingest/{game}
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.mirror == nil {
		s.writeUnavailable(w, r, "mirror ingest")
		return
	}
	if s.ingestToken != "" {
		got := r.Header.Get("X-Ingest-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.ingestToken)) != 1 {
			engineErr := NewError(ErrTypeUnauthorized, "missing or invalid X-Ingest-Token").
				WithRequestID(middleware.GetReqID(r.Context())).
				Build()
			s.errorHandler.logError(r, engineErr, http.StatusUnauthorized)
			s.errorHandler.writeErrorResponse(w, http.StatusUnauthorized, engineErr)
			return
		}
	}
	game, ok := s.gameParam(w, r)
	if !ok {
		return
	}

	var req IngestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON: "+err.Error())
		return
	}
	if field, msg := validateIngest(game, &req); field != "" {
		s.errorHandler.HandleValidationError(w, r, field, msg)
		return
	}

	ctx := r.Context()
	resp := IngestResponse{Game: game}
	if req.ProgramState != nil {
		if err := s.mirror.UpsertProgramState(ctx, req.ProgramState); err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		resp.State = true
	}
	for i := range req.Rounds {
		if err := s.mirror.UpsertRound(ctx, &req.Rounds[i]); err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
	}
	if err := s.mirror.SaveTickets(ctx, game, req.Tickets); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if err := s.mirror.SavePredictions(ctx, game, req.Predictions); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	resp.Rounds, resp.Tickets, resp.Predictions = len(req.Rounds), len(req.Tickets), len(req.Predictions)

	s.logger.Debug("ingested ledger records",
		zap.String("game", string(game)),
		zap.Bool("state", resp.State),
		zap.Int("rounds", resp.Rounds),
		zap.Int("tickets", resp.Tickets),
		zap.Int("predictions", resp.Predictions))
	s.writeJSON(w, http.StatusOK, resp)
}

// validateIngest stamps game onto the records and returns the first offending
// field, if any.
func validateIngest(game round.Game, req *IngestRequest) (string, string) {
	if st := req.ProgramState; st != nil {
		if st.Game != "" && st.Game != game {
			return "program_state.game", fmt.Sprintf("program state is for %s", st.Game)
		}
		st.Game = game
		if err := st.BonusTable.Validate(); err != nil {
			return "program_state.bonus_table", err.Error()
		}
	}
	for i := range req.Rounds {
		rd := &req.Rounds[i]
		if rd.Game != "" && rd.Game != game {
			return fmt.Sprintf("rounds[%d].game", i), fmt.Sprintf("round is for %s", rd.Game)
		}
		rd.Game = game
		if rd.ID < 0 {
			return fmt.Sprintf("rounds[%d].id", i), "round id must not be negative"
		}
		if !rd.Stage.Valid() {
			return fmt.Sprintf("rounds[%d].stage", i), fmt.Sprintf("unknown stage code %d", rd.Stage)
		}
	}
	for i, t := range req.Tickets {
		if t.ID == "" {
			return fmt.Sprintf("tickets[%d].id", i), "ticket id is required"
		}
	}
	for i, p := range req.Predictions {
		if p.ID == "" {
			return fmt.Sprintf("predictions[%d].id", i), "prediction id is required"
		}
	}
	return "", ""
}

// GET /api/v1/runs/export.csv
func (s *Server) handleExportRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeUnavailable(w, r, "settlement journal")
		return
	}
	query := store.RunsQuery{
		Game:    r.URL.Query().Get("game"),
		Status:  store.RunStatus(r.URL.Query().Get("status")),
		PerPage: 500,
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="settlement_runs.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "game", "round_id", "kind", "status", "attempts", "submit_ref", "error", "created_at", "updated_at"})

	for page := 1; ; page++ {
		query.Page = page
		list, err := s.runs.ListRuns(r.Context(), query)
		if err != nil {
			// headers are gone; the truncated file is all we can signal
			s.logger.Warn("runs export aborted", zap.Error(err))
			break
		}
		for _, run := range list.Runs {
			_ = cw.Write([]string{
				run.ID, run.Game, strconv.FormatInt(run.RoundID, 10), string(run.Kind), string(run.Status),
				strconv.Itoa(run.Attempts), run.SubmitRef, run.Error,
				run.CreatedAt.UTC().Format(time.RFC3339), run.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		if page >= list.TotalPages {
			break
		}
	}
	cw.Flush()
}
