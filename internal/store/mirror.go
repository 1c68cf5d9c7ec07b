package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/round"
)

// FetchProgramState returns the mirrored program state, or round.ErrNotFound.
func (s *SQLiteDB) FetchProgramState(ctx context.Context, game round.Game) (*round.ProgramState, error) {
	var (
		st                 round.ProgramState
		bonus, rewardsJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT game, round_counter, current_round, bonus_table, mint, treasury,
		       tax_percentage, burn_percentage, lottery_max_number, lottery_len, reward_distribution
		FROM program_states WHERE game = ?`, string(game)).Scan(
		&st.Game, &st.RoundCounter, &st.CurrentRound, &bonus, &st.Mint, &st.Treasury,
		&st.TaxPercentage, &st.BurnPercentage, &st.LotteryMaxNumber, &st.LotteryLen, &rewardsJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s program state", round.ErrNotFound, game)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get program state: %w", err)
	}

	if bonus != "" {
		if st.BonusTable, err = engine.ParseBonusTable(bonus); err != nil {
			return nil, fmt.Errorf("%s bonus table: %w", game, err)
		}
	}
	if err := json.Unmarshal([]byte(rewardsJSON), &st.RewardDistribution); err != nil {
		return nil, fmt.Errorf("%s reward distribution: %w", game, err)
	}
	return &st, nil
}

// UpsertProgramState writes or replaces a program state.
func (s *SQLiteDB) UpsertProgramState(ctx context.Context, st *round.ProgramState) error {
	rewards, err := json.Marshal(nonNilInts(st.RewardDistribution))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO program_states (game, round_counter, current_round, bonus_table, mint, treasury,
			tax_percentage, burn_percentage, lottery_max_number, lottery_len, reward_distribution, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(game) DO UPDATE SET
			round_counter = excluded.round_counter,
			current_round = excluded.current_round,
			bonus_table = excluded.bonus_table,
			mint = excluded.mint,
			treasury = excluded.treasury,
			tax_percentage = excluded.tax_percentage,
			burn_percentage = excluded.burn_percentage,
			lottery_max_number = excluded.lottery_max_number,
			lottery_len = excluded.lottery_len,
			reward_distribution = excluded.reward_distribution,
			updated_at = CURRENT_TIMESTAMP`,
		string(st.Game), st.RoundCounter, st.CurrentRound, st.BonusTable.String(), st.Mint, st.Treasury,
		st.TaxPercentage, st.BurnPercentage, st.LotteryMaxNumber, st.LotteryLen, string(rewards),
	)
	if err != nil {
		return fmt.Errorf("failed to save program state: %w", err)
	}
	return nil
}

const roundColumns = `game, id, stage, unix_time_start, unix_time_end, pool, mint, pool_balance,
	price_start, price_end, price_decimals, result_share, result_share_decimals,
	lottery_result, lottery_len`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner) (*round.Round, error) {
	var (
		r                                 round.Round
		poolBalance, priceStart, priceEnd sql.NullString
		share                             sql.NullString
		shareDecimals                     int32
		lotteryJSON                       string
	)
	err := row.Scan(
		&r.Game, &r.ID, &r.Stage, &r.UnixTimeStart, &r.UnixTimeEnd, &r.Pool, &r.Mint, &poolBalance,
		&priceStart, &priceEnd, &r.PriceDecimals, &share, &shareDecimals,
		&lotteryJSON, &r.LotteryLen,
	)
	if err != nil {
		return nil, err
	}

	if r.PoolBalance, err = parseBigInt(poolBalance); err != nil {
		return nil, fmt.Errorf("round %d pool_balance: %w", r.ID, err)
	}
	if r.PriceStart, err = parseBigInt(priceStart); err != nil {
		return nil, fmt.Errorf("round %d price_start: %w", r.ID, err)
	}
	if r.PriceEnd, err = parseBigInt(priceEnd); err != nil {
		return nil, fmt.Errorf("round %d price_end: %w", r.ID, err)
	}
	v, err := parseBigInt(share)
	if err != nil {
		return nil, fmt.Errorf("round %d result_share: %w", r.ID, err)
	}
	if v != nil {
		r.ResultShare = &engine.Fixed{Value: v, Decimals: shareDecimals}
	}
	if err := json.Unmarshal([]byte(lotteryJSON), &r.LotteryResult); err != nil {
		return nil, fmt.Errorf("round %d lottery_result: %w", r.ID, err)
	}
	if len(r.LotteryResult) == 0 {
		r.LotteryResult = nil
	}
	return &r, nil
}

// FetchRound returns one mirrored round, or round.ErrNotFound.
func (s *SQLiteDB) FetchRound(ctx context.Context, game round.Game, id int64) (*round.Round, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE game = ? AND id = ?`, string(game), id)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s round %d", round.ErrNotFound, game, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return r, nil
}

// ListRounds returns every mirrored round of game ordered by id.
func (s *SQLiteDB) ListRounds(ctx context.Context, game round.Game) ([]round.Round, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE game = ? ORDER BY id`, string(game))
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	var out []round.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpsertRound writes a round. Stages only move forward, a terminal round is
// frozen, and prices, result share and lottery result are write-once. A write
// that would break one of these fails with an *ImmutableError.
func (s *SQLiteDB) UpsertRound(ctx context.Context, r *round.Round) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prev, err := scanRound(tx.QueryRowContext(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE game = ? AND id = ?`, string(r.Game), r.ID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to get round: %w", err)
	default:
		next, err := mergeRound(prev, r)
		if err != nil {
			return err
		}
		if sameRound(prev, next) {
			return nil
		}
		r = next
	}

	lottery, err := json.Marshal(nonNilInts(r.LotteryResult))
	if err != nil {
		return err
	}
	var share sql.NullString
	var shareDecimals int32
	if r.ResultShare != nil && r.ResultShare.Value != nil {
		share = sql.NullString{String: r.ResultShare.Value.String(), Valid: true}
		shareDecimals = r.ResultShare.Decimals
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rounds (`+roundColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(game, id) DO UPDATE SET
			stage = excluded.stage,
			unix_time_start = excluded.unix_time_start,
			unix_time_end = excluded.unix_time_end,
			pool = excluded.pool,
			mint = excluded.mint,
			pool_balance = excluded.pool_balance,
			price_start = excluded.price_start,
			price_end = excluded.price_end,
			price_decimals = excluded.price_decimals,
			result_share = excluded.result_share,
			result_share_decimals = excluded.result_share_decimals,
			lottery_result = excluded.lottery_result,
			lottery_len = excluded.lottery_len,
			updated_at = CURRENT_TIMESTAMP
		WHERE rounds.stage NOT IN (?, ?)`,
		string(r.Game), r.ID, r.Stage, r.UnixTimeStart, r.UnixTimeEnd, r.Pool, r.Mint, bigIntString(r.PoolBalance),
		bigIntString(r.PriceStart), bigIntString(r.PriceEnd), r.PriceDecimals, share, shareDecimals,
		string(lottery), r.LotteryLen, round.StageEnded, round.StageCanceled,
	)
	if err != nil {
		return fmt.Errorf("failed to save round: %w", err)
	}
	return tx.Commit()
}

// ListTickets returns the tickets of one round ordered by id.
func (s *SQLiteDB) ListTickets(ctx context.Context, game round.Game, roundID int64) ([]round.Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, round_id, numbers FROM tickets WHERE game = ? AND round_id = ? ORDER BY id`,
		string(game), roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	var out []round.Ticket
	for rows.Next() {
		var t round.Ticket
		var numbers string
		if err := rows.Scan(&t.ID, &t.Owner, &t.RoundID, &numbers); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		if err := json.Unmarshal([]byte(numbers), &t.Numbers); err != nil {
			return nil, fmt.Errorf("ticket %s numbers: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveTickets records tickets in one transaction. Tickets are write-once:
// saving an identical ticket again is a no-op, changing one fails with an
// *ImmutableError and nothing from the batch is stored.
func (s *SQLiteDB) SaveTickets(ctx context.Context, game round.Game, tickets []round.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tickets {
		numbers, err := json.Marshal(nonNilInts(t.Numbers))
		if err != nil {
			return err
		}

		var (
			roundID            int64
			owner, prevNumbers string
		)
		err = tx.QueryRowContext(ctx, `SELECT round_id, owner, numbers FROM tickets WHERE game = ? AND id = ?`,
			string(game), t.ID).Scan(&roundID, &owner, &prevNumbers)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to get ticket %s: %w", t.ID, err)
		case roundID != t.RoundID || owner != t.Owner || prevNumbers != string(numbers):
			return &ImmutableError{Game: game, RoundID: roundID, Record: t.ID, Field: "ticket"}
		default:
			continue
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO tickets (game, id, round_id, owner, numbers) VALUES (?, ?, ?, ?, ?)`,
			string(game), t.ID, t.RoundID, t.Owner, string(numbers)); err != nil {
			return fmt.Errorf("failed to insert ticket %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// ListPredictions returns the predictions of one round ordered by id.
func (s *SQLiteDB) ListPredictions(ctx context.Context, game round.Game, roundID int64) ([]round.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, round_id, stake, predicted_share, predicted_decimals, is_up, timestamp
		FROM predictions WHERE game = ? AND round_id = ? ORDER BY id`, string(game), roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []round.Prediction
	for rows.Next() {
		var (
			p            round.Prediction
			stake, share string
			isUp         int
		)
		if err := rows.Scan(&p.ID, &p.Owner, &p.RoundID, &stake, &share, &p.PredictedShare.Decimals, &isUp, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if p.Stake, err = strconv.ParseUint(stake, 10, 64); err != nil {
			return nil, fmt.Errorf("prediction %s stake: %w", p.ID, err)
		}
		v, ok := new(big.Int).SetString(share, 10)
		if !ok {
			return nil, fmt.Errorf("prediction %s share %q is not an integer", p.ID, share)
		}
		p.PredictedShare.Value = v
		p.IsUp = isUp != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePredictions records predictions in one transaction, write-once like
// SaveTickets.
func (s *SQLiteDB) SavePredictions(ctx context.Context, game round.Game, preds []round.Prediction) error {
	if len(preds) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range preds {
		share := "0"
		if p.PredictedShare.Value != nil {
			share = p.PredictedShare.Value.String()
		}
		isUp := 0
		if p.IsUp {
			isUp = 1
		}
		stake := strconv.FormatUint(p.Stake, 10)

		var (
			prev         round.Prediction
			prevStake    string
			prevShare    string
			prevIsUp     int
			prevDecimals int32
		)
		err = tx.QueryRowContext(ctx, `
			SELECT round_id, owner, stake, predicted_share, predicted_decimals, is_up, timestamp
			FROM predictions WHERE game = ? AND id = ?`, string(game), p.ID).Scan(
			&prev.RoundID, &prev.Owner, &prevStake, &prevShare, &prevDecimals, &prevIsUp, &prev.Timestamp)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to get prediction %s: %w", p.ID, err)
		case prev.RoundID != p.RoundID || prev.Owner != p.Owner || prevStake != stake ||
			prevShare != share || prevDecimals != p.PredictedShare.Decimals ||
			prevIsUp != isUp || prev.Timestamp != p.Timestamp:
			return &ImmutableError{Game: game, RoundID: prev.RoundID, Record: p.ID, Field: "prediction"}
		default:
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO predictions (game, id, round_id, owner, stake, predicted_share, predicted_decimals, is_up, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(game), p.ID, p.RoundID, p.Owner, stake, share, p.PredictedShare.Decimals, isUp, p.Timestamp); err != nil {
			return fmt.Errorf("failed to insert prediction %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func parseBigInt(ns sql.NullString) (*big.Int, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(ns.String, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", ns.String)
	}
	return v, nil
}

func bigIntString(v *big.Int) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
