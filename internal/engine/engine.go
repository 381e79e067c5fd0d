// Package engine implements the submission quality engine: a deterministic,
// single-pass batch computation that derives working records from raw survey
// rows, runs the duplicate/temporal/geofence/clustering checks, and freezes
// each record's flag set into a validity verdict.
package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// Options hold the engine's tunable thresholds.
type Options struct {
	// ClusterRadiusM is the proximity threshold in meters: pairs at or under
	// this great-circle distance cluster.
	ClusterRadiusM float64
	// LowLOIMinutes / HighLOIMinutes bound acceptable interview durations.
	// The bounds are exclusive: exactly-at-threshold durations do not flag.
	LowLOIMinutes  float64
	HighLOIMinutes float64
	// DayStartHour / DayEndHour bound the acceptable start-time local hour.
	// Hours strictly before the start or strictly after the end flag OddHour.
	DayStartHour int
	DayEndHour   int
	// ShortGap is the minimum acceptable gap between adjacent interviews on
	// the same device and day.
	ShortGap time.Duration
	// ClusterWorkers caps the errgroup fan-out across enumerator groups.
	ClusterWorkers int
}

// DefaultOptions returns the production thresholds.
func DefaultOptions() Options {
	return Options{
		ClusterRadiusM: 5,
		LowLOIMinutes:  10,
		HighLOIMinutes: 60,
		DayStartHour:   7,
		DayEndHour:     20,
		ShortGap:       time.Minute,
		ClusterWorkers: 4,
	}
}

// Engine runs the quality-flagging pass.
type Engine struct {
	opts Options
}

// New creates an Engine. Zero-valued options fall back to defaults.
func New(opts Options) *Engine {
	def := DefaultOptions()
	if opts.ClusterRadiusM <= 0 {
		opts.ClusterRadiusM = def.ClusterRadiusM
	}
	if opts.LowLOIMinutes <= 0 {
		opts.LowLOIMinutes = def.LowLOIMinutes
	}
	if opts.HighLOIMinutes <= 0 {
		opts.HighLOIMinutes = def.HighLOIMinutes
	}
	if opts.DayStartHour <= 0 {
		opts.DayStartHour = def.DayStartHour
	}
	if opts.DayEndHour <= 0 {
		opts.DayEndHour = def.DayEndHour
	}
	if opts.ShortGap <= 0 {
		opts.ShortGap = def.ShortGap
	}
	if opts.ClusterWorkers <= 0 {
		opts.ClusterWorkers = def.ClusterWorkers
	}
	return &Engine{opts: opts}
}

// Run executes the full pass over the submission set. The boundary set is
// optional: with no boundaries the geofence checks are skipped for every
// record. The returned slice preserves input order, one result per row.
func (e *Engine) Run(ctx context.Context, rows []model.RawSubmission, boundaries []model.Boundary) ([]model.ProcessedSubmission, error) {
	if rows == nil {
		return nil, eris.New("engine: rows is not a sequence")
	}

	log := zap.L().With(zap.Int("rows", len(rows)))
	start := time.Now()

	// Pass 1: derive working records and side tables.
	records := make([]*model.DerivedRecord, len(rows))
	for i, raw := range rows {
		records[i] = Normalize(raw, i)
	}

	phones := buildPhoneIndex(records)
	flagDuplicatePhones(records, phones)

	groups := groupSessions(records)
	prev := predecessors(groups)

	// Pass 2: per-record temporal and geofence checks.
	for _, rec := range records {
		e.evaluateTemporal(rec, prev[rec.Index])
		e.evaluateGeofence(rec, boundaries)
	}

	// Pass 3: pairwise clustering needs the complete derived set.
	if err := e.detectClusters(ctx, records); err != nil {
		return nil, err
	}

	// Terminal step: freeze flag sets in input order.
	out := make([]model.ProcessedSubmission, len(records))
	var flagged int
	for i, rec := range records {
		out[i] = rec.Quality.Freeze(rec.SubmissionID, rec.Raw)
		if !out[i].Valid {
			flagged++
		}
	}

	log.Info("engine: quality pass complete",
		zap.Int("flagged", flagged),
		zap.Int("boundaries", len(boundaries)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
