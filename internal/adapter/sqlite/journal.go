package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vertextoedge/safefetch/internal/domain"
)

const transferColumns = `id, url, rel_path, target, state, bytes, resumed_from,
	attempts, error, started_at, finished_at`

// Record inserts a finished Get call
func (s *Store) Record(ctx context.Context, e *domain.JournalEntry) error {
	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.URL, e.RelPath, nullString(e.Target), string(e.State),
		e.Bytes, e.ResumedFrom, e.Attempts, nullString(e.Error),
		e.StartedAt.UnixNano(), nullTime(e.FinishedAt))
	return err
}

// Recent returns the newest entries first
func (s *Store) Recent(ctx context.Context, limit int) ([]*domain.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + transferColumns + ` FROM transfers ORDER BY seq DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LastFor returns the most recent entry for an absolute target path, or nil
func (s *Store) LastFor(ctx context.Context, target string) (*domain.JournalEntry, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE target = ? ORDER BY seq DESC LIMIT 1`

	e, err := scanEntry(s.db.QueryRowContext(ctx, query, target))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// DeleteFinishedBefore removes entries that finished before cutoff
func (s *Store) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM transfers WHERE finished_at IS NOT NULL AND finished_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*domain.JournalEntry, error) {
	e := &domain.JournalEntry{}
	var state string
	var target, lastError sql.NullString
	var startedAt int64
	var finishedAt sql.NullInt64

	err := row.Scan(
		&e.ID, &e.URL, &e.RelPath, &target, &state, &e.Bytes, &e.ResumedFrom,
		&e.Attempts, &lastError, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	e.State = domain.State(state)
	e.StartedAt = time.Unix(0, startedAt)
	if target.Valid {
		e.Target = target.String
	}
	if lastError.Valid {
		e.Error = lastError.String
	}
	if finishedAt.Valid {
		e.FinishedAt = time.Unix(0, finishedAt.Int64)
	}
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
