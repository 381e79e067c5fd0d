package engine

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rules is the optional YAML override file for quality thresholds. Every
// field is optional; unset fields keep the configured value.
type Rules struct {
	ClusterRadiusM  *float64 `yaml:"cluster_radius_m"`
	LowLOIMinutes   *float64 `yaml:"low_loi_minutes"`
	HighLOIMinutes  *float64 `yaml:"high_loi_minutes"`
	DayStartHour    *int     `yaml:"day_start_hour"`
	DayEndHour      *int     `yaml:"day_end_hour"`
	ShortGapSeconds *int     `yaml:"short_gap_seconds"`
	ClusterWorkers  *int     `yaml:"cluster_workers"`
}

// LoadRules reads a quality-rules file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: read rules %s", path)
	}

	// The YAML has a top-level "quality" key.
	var wrapper struct {
		Quality Rules `yaml:"quality"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "engine: parse rules")
	}
	return &wrapper.Quality, nil
}

// Apply overlays the rules onto a set of options.
func (r *Rules) Apply(opts Options) Options {
	if r == nil {
		return opts
	}
	if r.ClusterRadiusM != nil {
		opts.ClusterRadiusM = *r.ClusterRadiusM
	}
	if r.LowLOIMinutes != nil {
		opts.LowLOIMinutes = *r.LowLOIMinutes
	}
	if r.HighLOIMinutes != nil {
		opts.HighLOIMinutes = *r.HighLOIMinutes
	}
	if r.DayStartHour != nil {
		opts.DayStartHour = *r.DayStartHour
	}
	if r.DayEndHour != nil {
		opts.DayEndHour = *r.DayEndHour
	}
	if r.ShortGapSeconds != nil {
		opts.ShortGap = time.Duration(*r.ShortGapSeconds) * time.Second
	}
	if r.ClusterWorkers != nil {
		opts.ClusterWorkers = *r.ClusterWorkers
	}
	return opts
}
