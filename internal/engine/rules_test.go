package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRulesPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
quality:
  cluster_radius_m: 25
  day_end_hour: 21
  short_gap_seconds: 120
`), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)

	opts := rules.Apply(DefaultOptions())
	assert.InDelta(t, 25.0, opts.ClusterRadiusM, 0.001)
	assert.Equal(t, 21, opts.DayEndHour)
	assert.Equal(t, 2*time.Minute, opts.ShortGap)
	// Unset fields keep their values.
	assert.InDelta(t, 10.0, opts.LowLOIMinutes, 0.001)
	assert.Equal(t, 7, opts.DayStartHour)
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRulesBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quality: [broken"), 0o644))

	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestRulesApplyNil(t *testing.T) {
	var rules *Rules
	opts := rules.Apply(DefaultOptions())
	assert.Equal(t, DefaultOptions(), opts)
}
