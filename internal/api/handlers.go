package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/scan"
	"github.com/lamas-finance/round-settler/internal/settle"
	"github.com/lamas-finance/round-settler/internal/store"
)

// maxTicketBatch caps one generate request.
const maxTicketBatch = 10_000

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GamesResponse{
		Games:   s.settler.Registry().List(),
		Version: Version,
	})
}

// gameParam resolves the {game} URL parameter against the registry. It writes
// the error response and returns false when the game is unknown.
func (s *Server) gameParam(w http.ResponseWriter, r *http.Request) (round.Game, bool) {
	name := chi.URLParam(r, "game")
	g := round.Game(name)
	if _, ok := s.settler.Registry().Get(g); !ok {
		s.errorHandler.HandleGameNotFound(w, r, name)
		return "", false
	}
	return g, true
}

func (s *Server) handleFindRound(w http.ResponseWriter, r *http.Request) {
	game, ok := s.gameParam(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("stage")
	if raw == "" {
		s.errorHandler.HandleValidationError(w, r, "stage", "stage is required")
		return
	}
	stage, err := round.ParseStage(raw)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "stage", err.Error())
		return
	}

	rd, err := s.settler.FindRound(r.Context(), game, stage)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RoundResponse{Round: rd, Version: Version})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	game, ok := s.gameParam(w, r)
	if !ok {
		return
	}
	plans, err := s.settler.Plan(r.Context(), game)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PlanResponse{Game: game, Plans: plans, Dry: s.settler.Dry(), Version: Version})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	game, ok := s.gameParam(w, r)
	if !ok {
		return
	}
	results, err := s.settler.Run(r.Context(), game)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SettleResponse{Game: game, Results: results, Version: Version})
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	game, ok := s.gameParam(w, r)
	if !ok {
		return
	}
	m, err := s.settler.PlanMaintenance(r.Context(), game)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// opParams resolves the {game} and {op} URL parameters.
func (s *Server) opParams(w http.ResponseWriter, r *http.Request) (round.Game, settle.Op, bool) {
	game, ok := s.gameParam(w, r)
	if !ok {
		return "", "", false
	}
	op, err := settle.ParseOp(chi.URLParam(r, "op"))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "op", err.Error())
		return "", "", false
	}
	return game, op, true
}

func (s *Server) handleOpPlan(w http.ResponseWriter, r *http.Request) {
	game, op, ok := s.opParams(w, r)
	if !ok {
		return
	}
	plans, err := s.settler.PlanOp(r.Context(), game, op)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, OpResponse{Game: game, Op: op, Plans: plans, Dry: s.settler.Dry(), Version: Version})
}

func (s *Server) handleOpRun(w http.ResponseWriter, r *http.Request) {
	game, op, ok := s.opParams(w, r)
	if !ok {
		return
	}
	results, err := s.settler.RunOp(r.Context(), game, op)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, OpResponse{Game: game, Op: op, Results: results, Dry: s.settler.Dry(), Version: Version})
}

func (s *Server) handleClaims(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		s.errorHandler.HandleValidationError(w, r, "id", "round id must be a non-negative integer")
		return
	}
	claims, err := s.settler.ResolveUpOrDown(r.Context(), id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ClaimsResponse{ClaimsParams: claims, Version: Version})
}

func (s *Server) handleSpinnerTable(w http.ResponseWriter, r *http.Request) {
	g, ok := s.settler.Registry().Spinner()
	if !ok {
		s.errorHandler.HandleGameNotFound(w, r, string(round.GameSpinner))
		return
	}
	s.writeJSON(w, http.StatusOK, SpinnerTableResponse{
		Slots:       g.Slots,
		TotalWeight: g.TotalWeight(),
		RTP:         g.RTP().StringFixed(4),
		Version:     Version,
	})
}

func (s *Server) handleSpinReplay(w http.ResponseWriter, r *http.Request) {
	g, ok := s.settler.Registry().Spinner()
	if !ok {
		s.errorHandler.HandleGameNotFound(w, r, string(round.GameSpinner))
		return
	}
	var req SpinReplayRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "Invalid JSON format")
		return
	}
	if req.Seed == "" {
		s.errorHandler.HandleValidationError(w, r, "seed", "seed is required")
		return
	}
	if req.Bet == 0 {
		s.errorHandler.HandleValidationError(w, r, "bet", "bet must be positive")
		return
	}

	res, err := g.Replay(req.Seed, req.Nonce, req.Bet)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SpinReplayResponse{SpinResult: res, Version: Version})
}

func (s *Server) handleGenerateTickets(w http.ResponseWriter, r *http.Request) {
	var req GenerateTicketsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "Invalid JSON format")
		return
	}
	if req.Count < 1 || req.Count > maxTicketBatch {
		s.errorHandler.HandleValidationError(w, r, "count", "count must be between 1 and 10000")
		return
	}
	if req.MaxNumber == 0 {
		req.MaxNumber = s.maxNumber
	}
	if req.Length == 0 {
		req.Length = s.ticketLen
	}
	if req.Length > engine.MaxTicketLen {
		s.errorHandler.HandleValidationError(w, r, "length", "length must be at most 6")
		return
	}

	src, mode := scan.EntropySource(), scan.PickerModeEntropy
	if req.Seed != "" {
		src, mode = scan.ReproducibleSource(req.Seed, req.Nonce), scan.PickerModeReproducible
	}
	tickets, err := scan.NewTicketGenerator(src).GenerateN(req.Count, req.MaxNumber, req.Length)
	if errors.Is(err, scan.ErrInvalidTicketParams) {
		s.errorHandler.HandleValidationError(w, r, "params", err.Error())
		return
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	echo := req
	echo.Seed = ""
	s.writeJSON(w, http.StatusOK, GenerateTicketsResponse{
		Tickets: tickets,
		Mode:    string(mode),
		Echo:    echo,
		Version: Version,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeUnavailable(w, r, "settlement journal")
		return
	}
	q := r.URL.Query()
	query := store.RunsQuery{
		Game:   q.Get("game"),
		Status: store.RunStatus(q.Get("status")),
	}
	var err error
	if v := q.Get("page"); v != "" {
		if query.Page, err = strconv.Atoi(v); err != nil || query.Page < 1 {
			s.errorHandler.HandleValidationError(w, r, "page", "page must be a positive integer")
			return
		}
	}
	if v := q.Get("perPage"); v != "" {
		if query.PerPage, err = strconv.Atoi(v); err != nil || query.PerPage < 1 || query.PerPage > 500 {
			s.errorHandler.HandleValidationError(w, r, "perPage", "perPage must be between 1 and 500")
			return
		}
	}

	list, err := s.runs.ListRuns(r.Context(), query)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeUnavailable(w, r, "settlement journal")
		return
	}
	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	resp := SchedulesResponse{Version: Version}
	if s.scheduler != nil {
		resp.Schedules = s.scheduler.Entries()
	}
	s.writeJSON(w, http.StatusOK, resp)
}
