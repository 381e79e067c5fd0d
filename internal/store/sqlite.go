package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	source           TEXT NOT NULL,
	cluster_radius_m REAL NOT NULL,
	boundary_count   INTEGER NOT NULL,
	total            INTEGER NOT NULL DEFAULT 0,
	flagged          INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'running',
	error            TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS submissions (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	idx           INTEGER NOT NULL,
	submission_id TEXT NOT NULL,
	valid         INTEGER NOT NULL,
	flags         TEXT NOT NULL,
	data          TEXT NOT NULL,
	PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_submissions_run_valid ON submissions(run_id, valid);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, source string, clusterRadiusM float64, boundaryCount int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, cluster_radius_m, boundary_count, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, source, clusterRadiusM, boundaryCount, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:             id,
		Source:         source,
		ClusterRadiusM: clusterRadiusM,
		BoundaryCount:  boundaryCount,
		Status:         model.RunStatusRunning,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, total, flagged int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET total = ?, flagged = ?, status = ?, updated_at = ? WHERE id = ?`,
		total, flagged, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, cluster_radius_m, boundary_count, total, flagged, status, error, created_at, updated_at
		 FROM runs WHERE id = ?`, runID)

	var r model.Run
	var status string
	err := row.Scan(&r.ID, &r.Source, &r.ClusterRadiusM, &r.BoundaryCount, &r.Total, &r.Flagged,
		&status, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	r.Status = model.RunStatus(status)
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, cluster_radius_m, boundary_count, total, flagged, status, error, created_at, updated_at
		 FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Run
	for rows.Next() {
		var r model.Run
		var status string
		if err := rows.Scan(&r.ID, &r.Source, &r.ClusterRadiusM, &r.BoundaryCount, &r.Total, &r.Flagged,
			&status, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = model.RunStatus(status)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) SaveProcessed(ctx context.Context, runID string, subs []model.ProcessedSubmission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO submissions (run_id, idx, submission_id, valid, flags, data) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, sub := range subs {
		flagsJSON, err := json.Marshal(sub.Flags)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal flags")
		}
		dataJSON, err := json.Marshal(sub)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal submission")
		}
		if _, err := stmt.ExecContext(ctx, runID, i, sub.SubmissionID, boolToInt(sub.Valid),
			string(flagsJSON), string(dataJSON)); err != nil {
			return eris.Wrapf(err, "sqlite: insert submission %s", sub.SubmissionID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) ListProcessed(ctx context.Context, runID string, filter ProcessedFilter) ([]model.ProcessedSubmission, error) {
	query := `SELECT data FROM submissions WHERE run_id = ?`
	args := []any{runID}
	if filter.FlaggedOnly {
		query += ` AND valid = 0`
	}
	if filter.Flag != "" {
		// Flags are stored as a JSON array of strings.
		query += ` AND flags LIKE ?`
		args = append(args, "%"+jsonStringToken(string(filter.Flag))+"%")
	}
	query += ` ORDER BY idx`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ProcessedSubmission
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		var sub model.ProcessedSubmission
		if err := json.Unmarshal([]byte(data), &sub); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal submission")
		}
		out = append(out, sub)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate submissions")
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// jsonStringToken quotes a flag name the way json.Marshal renders it inside
// the stored array, so LIKE matching cannot hit substrings of other flags.
func jsonStringToken(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
