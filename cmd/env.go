package main

import (
	"context"
	"time"

	"github.com/meridian-mel/fieldqc-cli/internal/boundary"
	"github.com/meridian-mel/fieldqc-cli/internal/engine"
	"github.com/meridian-mel/fieldqc-cli/internal/ingest"
	"github.com/meridian-mel/fieldqc-cli/internal/store"
)

// engineOptions builds engine thresholds from config, with the optional
// rules file layered on top.
func engineOptions() (engine.Options, error) {
	opts := engine.Options{
		ClusterRadiusM: cfg.Quality.ClusterRadiusM,
		LowLOIMinutes:  cfg.Quality.LowLOIMinutes,
		HighLOIMinutes: cfg.Quality.HighLOIMinutes,
		DayStartHour:   cfg.Quality.DayStartHour,
		DayEndHour:     cfg.Quality.DayEndHour,
		ShortGap:       time.Duration(cfg.Quality.ShortGapSeconds) * time.Second,
		ClusterWorkers: cfg.Quality.ClusterWorkers,
	}

	if cfg.Quality.RulesFile != "" {
		rules, err := engine.LoadRules(cfg.Quality.RulesFile)
		if err != nil {
			return opts, err
		}
		opts = rules.Apply(opts)
	}
	return opts, nil
}

func csvOptions() ingest.CSVOptions {
	opts := ingest.CSVOptions{
		Charset:    cfg.Ingest.Charset,
		LazyQuotes: true,
	}
	if cfg.Ingest.Delimiter != "" {
		opts.Delimiter = rune(cfg.Ingest.Delimiter[0])
	}
	return opts
}

func xlsxOptions() ingest.XLSXOptions {
	return ingest.XLSXOptions{SheetName: cfg.Ingest.SheetName}
}

func boundaryOptions() boundary.Options {
	return boundary.Options{
		StateKey: cfg.Boundary.StateKey,
		AreaKey:  cfg.Boundary.AreaKey,
	}
}

func openStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}
