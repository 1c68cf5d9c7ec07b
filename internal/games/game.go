package games

import (
	"errors"
	"sort"

	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/round"
)

// ErrUnsupported is returned when a game has no settlement step for a request.
var ErrUnsupported = errors.New("operation not supported by game")

// EntryKind names the record type a game's rounds collect.
type EntryKind string

const (
	EntryTicket     EntryKind = "ticket"
	EntryPrediction EntryKind = "prediction"
	EntrySpin       EntryKind = "spin"
)

// GameSpec is the metadata served for a game.
type GameSpec struct {
	ID          round.Game  `json:"id"`
	Name        string      `json:"name"`
	Lifecycle   string      `json:"lifecycle"`
	EntryKind   EntryKind   `json:"entry_kind"`
	SettleStage round.Stage `json:"settle_stage"`
	MetricLabel string      `json:"metric_label"`
}

// Game is implemented by every settled game.
type Game interface {
	Spec() GameSpec
}

// Registry holds the configured games. It is built once and read-only after.
type Registry struct {
	games map[round.Game]Game
}

// NewRegistry registers the given games, later entries replacing earlier ones
// with the same ID.
func NewRegistry(gs ...Game) *Registry {
	r := &Registry{games: make(map[round.Game]Game, len(gs))}
	for _, g := range gs {
		r.games[g.Spec().ID] = g
	}
	return r
}

// DefaultRegistry registers every game with its default parameters.
func DefaultRegistry() *Registry {
	return NewRegistry(
		DefaultLottery(),
		DefaultSpinner(),
		PricePredictGame{Limits: engine.DefaultLimits()},
		UpOrDownGame{},
	)
}

// Get looks a game up by ID.
func (r *Registry) Get(id round.Game) (Game, bool) {
	g, ok := r.games[id]
	return g, ok
}

// List returns the specs of all registered games sorted by ID.
func (r *Registry) List() []GameSpec {
	specs := make([]GameSpec, 0, len(r.games))
	for _, g := range r.games {
		specs = append(specs, g.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

// Lottery returns the registered lottery game.
func (r *Registry) Lottery() (LotteryGame, bool) {
	g, ok := r.games[round.GameLottery].(LotteryGame)
	return g, ok
}

// Spinner returns the registered spinner game.
func (r *Registry) Spinner() (SpinnerGame, bool) {
	g, ok := r.games[round.GameSpinner].(SpinnerGame)
	return g, ok
}

// PricePredict returns the registered price-predict game.
func (r *Registry) PricePredict() (PricePredictGame, bool) {
	g, ok := r.games[round.GamePricePredict].(PricePredictGame)
	return g, ok
}

// UpOrDown returns the registered up-or-down game.
func (r *Registry) UpOrDown() (UpOrDownGame, bool) {
	g, ok := r.games[round.GameUpOrDown].(UpOrDownGame)
	return g, ok
}
