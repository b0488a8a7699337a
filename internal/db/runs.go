package db

import (
	"database/sql"

	"github.com/hpungsan/stravagpx/internal/errors"
)

// DefaultHistoryLimit is the number of runs ListRuns returns when limit <= 0.
const DefaultHistoryLimit = 20

// Run is one export run in the journal. Timestamps are unix seconds.
type Run struct {
	ID         string  `json:"id"`
	StartedAt  int64   `json:"started_at"`
	FinishedAt *int64  `json:"finished_at,omitempty"`
	Mode       string  `json:"mode"`
	ExportDir  string  `json:"export_dir"`
	Examined   int     `json:"examined"`
	Exported   int     `json:"exported"`
	Skipped    int     `json:"skipped"`
	Empty      int     `json:"empty"`
	Manual     int     `json:"manual"`
	Failed     int     `json:"failed"`
	Stopped    bool    `json:"stopped"`
	Error      *string `json:"error,omitempty"`
}

// InsertRun records the start of a run.
func InsertRun(db *sql.DB, r *Run) error {
	_, err := db.Exec(`
		INSERT INTO export_runs (id, started_at, mode, export_dir)
		VALUES (?, ?, ?, ?)
	`, r.ID, r.StartedAt, r.Mode, r.ExportDir)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// FinishRun stores the final counters of a run.
func FinishRun(db *sql.DB, r *Run) error {
	result, err := db.Exec(`
		UPDATE export_runs
		SET finished_at = ?, examined = ?, exported = ?, skipped = ?, empty = ?,
			manual = ?, failed = ?, stopped = ?, error = ?
		WHERE id = ?
	`,
		r.FinishedAt, r.Examined, r.Exported, r.Skipped, r.Empty,
		r.Manual, r.Failed, r.Stopped, toNullString(r.Error),
		r.ID,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(r.ID)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := db.Query(`
		SELECT id, started_at, finished_at, mode, export_dir,
			examined, exported, skipped, empty, manual, failed, stopped, error
		FROM export_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r          Run
			finishedAt sql.NullInt64
			errText    sql.NullString
		)
		err := rows.Scan(
			&r.ID, &r.StartedAt, &finishedAt, &r.Mode, &r.ExportDir,
			&r.Examined, &r.Exported, &r.Skipped, &r.Empty, &r.Manual, &r.Failed,
			&r.Stopped, &errText,
		)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if finishedAt.Valid {
			r.FinishedAt = &finishedAt.Int64
		}
		r.Error = fromNullString(errText)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return runs, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
