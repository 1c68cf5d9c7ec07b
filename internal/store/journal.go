package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const runColumns = `id, game, round_id, kind, status, params_json, submit_ref, error, attempts, created_at, updated_at`

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Game, &r.RoundID, &r.Kind, &r.Status, &r.ParamsJSON,
		&r.SubmitRef, &r.Error, &r.Attempts, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// BeginRun opens or resumes the run for a round and kind and marks it
// processing. The boolean is false when the round already has a processed run
// for that kind; the processed run is returned and nothing changes.
//
// A pending (new or retryable_error) run is resumed with its attempt count
// bumped. A run that ended in fatal_error is left alone and a new run starts.
func (s *SQLiteDB) BeginRun(ctx context.Context, req RunRequest) (*Run, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	latest, err := scanRun(tx.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM settlement_runs
		WHERE game = ? AND round_id = ? AND kind = ?
		ORDER BY CASE status WHEN 'processed' THEN 0 ELSE 1 END, created_at DESC, rowid DESC
		LIMIT 1`, string(req.Game), req.RoundID, string(req.Kind)))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to look up run: %w", err)
	}

	now := time.Now().UTC()
	switch {
	case latest != nil && latest.Status == RunProcessed:
		return latest, false, nil
	case latest != nil && latest.Status == RunProcessing:
		return nil, false, fmt.Errorf("%w: %s", ErrRunInProgress, latest.ID)
	case latest != nil && (latest.Status == RunNew || latest.Status == RunRetryableError):
		latest.Status = RunProcessing
		latest.Attempts++
		latest.ParamsJSON = req.ParamsJSON
		latest.Error = ""
		latest.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, `
			UPDATE settlement_runs SET status = ?, attempts = ?, params_json = ?, error = '', updated_at = ?
			WHERE id = ?`, string(latest.Status), latest.Attempts, latest.ParamsJSON, now, latest.ID); err != nil {
			return nil, false, fmt.Errorf("failed to resume run: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, err
		}
		return latest, true, nil
	}

	run := &Run{
		ID:         uuid.New().String(),
		Game:       string(req.Game),
		RoundID:    req.RoundID,
		Kind:       req.Kind,
		Status:     RunProcessing,
		ParamsJSON: req.ParamsJSON,
		Attempts:   1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO settlement_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, '', '', ?, ?, ?)`,
		run.ID, run.Game, run.RoundID, string(run.Kind), string(run.Status), run.ParamsJSON,
		run.Attempts, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return run, true, nil
}

// CompleteRun marks a processing run processed and records the ledger's
// submission reference.
func (s *SQLiteDB) CompleteRun(ctx context.Context, id, submitRef string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE settlement_runs SET status = ?, submit_ref = ?, error = '', updated_at = ?
		WHERE id = ? AND status = ?`,
		string(RunProcessed), submitRef, time.Now().UTC(), id, string(RunProcessing))
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("run %s: round already processed: %w", id, err)
		}
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return expectOne(res, id)
}

// FailRun records why a processing run failed. Fatal failures are not resumed
// by BeginRun.
func (s *SQLiteDB) FailRun(ctx context.Context, id string, cause error, fatal bool) error {
	status := RunRetryableError
	if fatal {
		status = RunFatalError
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE settlement_runs SET status = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status), msg, time.Now().UTC(), id, string(RunProcessing))
	if err != nil {
		return fmt.Errorf("failed to fail run: %w", err)
	}
	return expectOne(res, id)
}

// RecoverInterrupted turns runs left processing by a previous process into
// retryable errors. It returns how many runs were recovered.
func (s *SQLiteDB) RecoverInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE settlement_runs SET status = ?, error = 'interrupted', updated_at = ?
		WHERE status = ?`,
		string(RunRetryableError), time.Now().UTC(), string(RunProcessing))
	if err != nil {
		return 0, fmt.Errorf("failed to recover runs: %w", err)
	}
	return res.RowsAffected()
}

// GetRun retrieves a run by ID
func (s *SQLiteDB) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM settlement_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs with pagination and filtering
func (s *SQLiteDB) ListRuns(ctx context.Context, query RunsQuery) (*RunsList, error) {
	whereClause := "WHERE 1=1"
	args := []any{}
	if query.Game != "" {
		whereClause += " AND game = ?"
		args = append(args, query.Game)
	}
	if query.Status != "" {
		whereClause += " AND status = ?"
		args = append(args, string(query.Status))
	}

	var totalCount int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM settlement_runs "+whereClause, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	if query.PerPage <= 0 {
		query.PerPage = 50 // Default page size
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	totalPages := (totalCount + query.PerPage - 1) / query.PerPage
	offset := (query.Page - 1) * query.PerPage

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM settlement_runs `+whereClause+`
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, append(args, query.PerPage, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &RunsList{
		Runs:       runs,
		TotalCount: totalCount,
		Page:       query.Page,
		PerPage:    query.PerPage,
		TotalPages: totalPages,
	}, nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: no processing run %s", ErrRunNotFound, id)
	}
	return nil
}
