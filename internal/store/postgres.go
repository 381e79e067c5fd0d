package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs, small enough to mock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id               UUID PRIMARY KEY,
	source           TEXT NOT NULL,
	cluster_radius_m DOUBLE PRECISION NOT NULL,
	boundary_count   INTEGER NOT NULL,
	total            INTEGER NOT NULL DEFAULT 0,
	flagged          INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'running',
	error            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS submissions (
	run_id        UUID NOT NULL REFERENCES runs(id),
	idx           INTEGER NOT NULL,
	submission_id TEXT NOT NULL,
	valid         BOOLEAN NOT NULL,
	flags         JSONB NOT NULL,
	data          JSONB NOT NULL,
	PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_submissions_run_valid ON submissions(run_id, valid);
CREATE INDEX IF NOT EXISTS idx_submissions_flags ON submissions USING GIN (flags);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, source string, clusterRadiusM float64, boundaryCount int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, source, cluster_radius_m, boundary_count, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, source, clusterRadiusM, boundaryCount, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, total, flagged int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET total = $1, flagged = $2, status = $3, updated_at = $4 WHERE id = $5`,
		total, flagged, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, cluster_radius_m, boundary_count, total, flagged, status, error, created_at, updated_at
		 FROM runs WHERE id = $1`, runID)

	var r model.Run
	var status string
	err := row.Scan(&r.ID, &r.Source, &r.ClusterRadiusM, &r.BoundaryCount, &r.Total, &r.Flagged,
		&status, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	r.Status = model.RunStatus(status)
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit, offset int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, cluster_radius_m, boundary_count, total, flagged, status, error, created_at, updated_at
		 FROM runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var r model.Run
		var status string
		if err := rows.Scan(&r.ID, &r.Source, &r.ClusterRadiusM, &r.BoundaryCount, &r.Total, &r.Flagged,
			&status, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// SaveProcessed bulk-inserts the processed submissions via the COPY protocol.
func (s *PostgresStore) SaveProcessed(ctx context.Context, runID string, subs []model.ProcessedSubmission) error {
	if len(subs) == 0 {
		return nil
	}

	copyRows := make([][]any, 0, len(subs))
	for i, sub := range subs {
		flagsJSON, err := json.Marshal(sub.Flags)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal flags")
		}
		dataJSON, err := json.Marshal(sub)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal submission")
		}
		copyRows = append(copyRows, []any{runID, i, sub.SubmissionID, sub.Valid, flagsJSON, dataJSON})
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"submissions"},
		[]string{"run_id", "idx", "submission_id", "valid", "flags", "data"},
		pgx.CopyFromRows(copyRows),
	)
	return eris.Wrap(err, "postgres: copy submissions")
}

func (s *PostgresStore) ListProcessed(ctx context.Context, runID string, filter ProcessedFilter) ([]model.ProcessedSubmission, error) {
	query := `SELECT data FROM submissions WHERE run_id = $1`
	args := []any{runID}
	if filter.FlaggedOnly {
		query += ` AND valid = false`
	}
	if filter.Flag != "" {
		args = append(args, string(filter.Flag))
		query += ` AND flags ? $2`
	}
	query += ` ORDER BY idx`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submissions")
	}
	defer rows.Close()

	var out []model.ProcessedSubmission
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		var sub model.ProcessedSubmission
		if err := json.Unmarshal(data, &sub); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal submission")
		}
		out = append(out, sub)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate submissions")
}
