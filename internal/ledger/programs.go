package ledger

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/settle"
)

var (
	_ settle.Reader    = (*Client)(nil)
	_ settle.Submitter = (*Client)(nil)
)

// maxPages bounds cursor walks against a gateway that never ends a listing.
const maxPages = 10_000

// FetchProgramState reads a game's program state.
func (c *Client) FetchProgramState(ctx context.Context, game round.Game) (*round.ProgramState, error) {
	var acc ProgramStateAccount
	if err := c.get(ctx, "fetch program state", programPath(game, "/state"), nil, &acc); err != nil {
		return nil, err
	}
	return acc.toState(game)
}

// FetchRound reads one round.
func (c *Client) FetchRound(ctx context.Context, game round.Game, id int64) (*round.Round, error) {
	var acc RoundAccount
	path := programPath(game, "/rounds/", strconv.FormatInt(id, 10))
	if err := c.get(ctx, fmt.Sprintf("fetch round %d", id), path, nil, &acc); err != nil {
		return nil, err
	}
	return acc.toRound(game)
}

// ListRounds reads every round of a game.
func (c *Client) ListRounds(ctx context.Context, game round.Game) ([]round.Round, error) {
	accs, err := listAll[RoundAccount](ctx, c, "list rounds", programPath(game, "/rounds"))
	if err != nil {
		return nil, err
	}
	out := make([]round.Round, 0, len(accs))
	for _, a := range accs {
		r, err := a.toRound(game)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// ListTickets reads every ticket of a round.
func (c *Client) ListTickets(ctx context.Context, game round.Game, roundID int64) ([]round.Ticket, error) {
	path := programPath(game, "/rounds/", strconv.FormatInt(roundID, 10), "/tickets")
	accs, err := listAll[TicketAccount](ctx, c, fmt.Sprintf("list tickets of round %d", roundID), path)
	if err != nil {
		return nil, err
	}
	out := make([]round.Ticket, 0, len(accs))
	for _, a := range accs {
		out = append(out, a.toTicket())
	}
	return out, nil
}

// ListPredictions reads every prediction of a round.
func (c *Client) ListPredictions(ctx context.Context, game round.Game, roundID int64) ([]round.Prediction, error) {
	path := programPath(game, "/rounds/", strconv.FormatInt(roundID, 10), "/predictions")
	accs, err := listAll[PredictionAccount](ctx, c, fmt.Sprintf("list predictions of round %d", roundID), path)
	if err != nil {
		return nil, err
	}
	out := make([]round.Prediction, 0, len(accs))
	for _, a := range accs {
		p, err := a.toPrediction()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Submit posts a settlement instruction and returns the gateway's reference.
// The journal run id travels as the idempotency key.
func (c *Client) Submit(ctx context.Context, ins settle.Instruction) (string, error) {
	var resp SubmitResponse
	op := fmt.Sprintf("submit %s for round %d", ins.Kind, ins.RoundID)
	if err := c.post(ctx, op, programPath(ins.Game, "/instructions"), ins.RunID, ins, &resp); err != nil {
		return "", err
	}
	return resp.Ref, nil
}

// listAll follows next_cursor until the gateway stops returning one.
func listAll[T any](ctx context.Context, c *Client, op, path string) ([]T, error) {
	var (
		out    []T
		cursor string
	)
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var p Page[T]
		if err := c.get(ctx, op, path, q, &p); err != nil {
			return nil, err
		}
		out = append(out, p.Items...)
		if p.NextCursor == "" {
			return out, nil
		}
		cursor = p.NextCursor
	}
	return nil, &TransportError{Op: op, Err: fmt.Errorf("more than %d pages", maxPages)}
}
