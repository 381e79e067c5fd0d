package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// cleanRow builds a row that passes every check when evaluated inside the
// lagosSet boundary fixture.
func cleanRow(id, phone string, lat, lng float64) model.RawSubmission {
	return model.RawSubmission{
		"submissionid": id,
		"start":        "2024-03-12 10:00:00",
		"end":          "2024-03-12 10:30:00",
		"latitude":     lat,
		"longitude":    lng,
		"phone":        phone,
		"enumerator":   "enum-" + id,
		"deviceid":     "device-" + id,
		"state":        "Lagos",
		"lga":          "Ikeja",
	}
}

func lagosSet() []model.Boundary {
	return []model.Boundary{square("Lagos", "Ikeja", 6.6, 3.35)}
}

func TestRunNilRows(t *testing.T) {
	_, err := New(Options{}).Run(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestRunEmptyRows(t *testing.T) {
	out, err := New(Options{}).Run(context.Background(), []model.RawSubmission{}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRunCleanSubmission(t *testing.T) {
	out, err := New(Options{}).Run(context.Background(),
		[]model.RawSubmission{cleanRow("s1", "08031110001", 6.6, 3.35)}, lagosSet())
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.True(t, out[0].Valid)
	assert.Empty(t, out[0].Flags)
	assert.Equal(t, "s1", out[0].SubmissionID)
	assert.Equal(t, model.GeoStatusWithinReported, out[0].GeofenceStatus)
}

func TestRunTerminatedOnly(t *testing.T) {
	row := cleanRow("s1", "08031110001", 0, 0)
	delete(row, "latitude")
	delete(row, "longitude")

	out, err := New(Options{}).Run(context.Background(), []model.RawSubmission{row}, lagosSet())
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.False(t, out[0].Valid)
	assert.Equal(t, []model.Flag{model.FlagTerminated}, out[0].Flags)
	assert.Empty(t, out[0].GeofenceStatus)
}

func TestRunOddHourScenario(t *testing.T) {
	row := cleanRow("s1", "08031110001", 6.6, 3.35)
	row["start"] = "2024-03-12 23:00:00"
	row["end"] = "2024-03-12 23:15:00"

	out, err := New(Options{}).Run(context.Background(), []model.RawSubmission{row}, lagosSet())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []model.Flag{model.FlagOddHour}, out[0].Flags)
}

func TestRunDuplicatePhones(t *testing.T) {
	rows := []model.RawSubmission{
		cleanRow("s1", "0803 111 0001", 6.6, 3.35),
		cleanRow("s2", "08031110001", 6.61, 3.36),
		cleanRow("s3", "08031110002", 6.62, 3.34),
	}

	out, err := New(Options{}).Run(context.Background(), rows, lagosSet())
	require.NoError(t, err)
	require.Len(t, out, 3)

	// Different formatting of the same number still collides.
	assert.Contains(t, out[0].Flags, model.FlagDuplicatePhone)
	assert.Contains(t, out[1].Flags, model.FlagDuplicatePhone)
	assert.NotContains(t, out[2].Flags, model.FlagDuplicatePhone)
}

func TestRunMissingPhonesNeverCollide(t *testing.T) {
	a := cleanRow("s1", "", 6.6, 3.35)
	b := cleanRow("s2", "", 6.61, 3.36)
	delete(a, "phone")
	delete(b, "phone")

	out, err := New(Options{}).Run(context.Background(), []model.RawSubmission{a, b}, lagosSet())
	require.NoError(t, err)
	for _, p := range out {
		assert.NotContains(t, p.Flags, model.FlagDuplicatePhone)
	}
}

func TestRunClusteringScenario(t *testing.T) {
	// One enumerator, two fixes ~2 m apart and a third ~50 m away.
	rows := []model.RawSubmission{
		cleanRow("s1", "08031110001", 6.6, 3.35),
		cleanRow("s2", "08031110002", 6.6+1.8e-5, 3.35),
		cleanRow("s3", "08031110003", 6.6+4.5e-4, 3.35),
	}
	for _, r := range rows {
		r["enumerator"] = "enum-1"
	}
	// Separate devices and spaced starts keep the session checks quiet.
	rows[1]["start"] = "2024-03-12 11:00:00"
	rows[1]["end"] = "2024-03-12 11:30:00"
	rows[2]["start"] = "2024-03-12 12:00:00"
	rows[2]["end"] = "2024-03-12 12:30:00"

	out, err := New(Options{}).Run(context.Background(), rows, lagosSet())
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, []model.Flag{model.FlagClusteredInterview}, out[0].Flags)
	assert.Equal(t, []model.Flag{model.FlagClusteredInterview}, out[1].Flags)
	assert.Empty(t, out[2].Flags)

	assert.Equal(t, []string{"s2"}, out[0].ClusterPartners)
	assert.Equal(t, []string{"s1"}, out[1].ClusterPartners)
	require.NotNil(t, out[0].MinClusterDistanceM)
	require.NotNil(t, out[1].MinClusterDistanceM)
	assert.InDelta(t, *out[0].MinClusterDistanceM, *out[1].MinClusterDistanceM, 1e-9)
}

func TestRunSessionGapScenario(t *testing.T) {
	rows := []model.RawSubmission{
		cleanRow("s1", "08031110001", 6.6, 3.35),
		cleanRow("s2", "08031110002", 6.61, 3.36),
		cleanRow("s3", "08031110003", 6.62, 3.34),
	}
	// All on one device and day.
	for _, r := range rows {
		r["deviceid"] = "device-1"
	}
	// s2 starts before s1 ends; s3 starts 30s after s2 ends.
	rows[1]["start"] = "2024-03-12 10:20:00"
	rows[1]["end"] = "2024-03-12 10:45:00"
	rows[2]["start"] = "2024-03-12 10:45:30"
	rows[2]["end"] = "2024-03-12 11:10:00"

	out, err := New(Options{}).Run(context.Background(), rows, lagosSet())
	require.NoError(t, err)

	assert.Empty(t, out[0].Flags)
	assert.Equal(t, []model.Flag{model.FlagInterwoven}, out[1].Flags)
	assert.Equal(t, []model.Flag{model.FlagShortGap}, out[2].Flags)
}

func TestRunPreservesInputOrder(t *testing.T) {
	rows := []model.RawSubmission{
		cleanRow("z", "08031110001", 6.6, 3.35),
		cleanRow("a", "08031110002", 6.61, 3.36),
		cleanRow("m", "08031110003", 6.62, 3.34),
	}
	out, err := New(Options{}).Run(context.Background(), rows, lagosSet())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "z", out[0].SubmissionID)
	assert.Equal(t, "a", out[1].SubmissionID)
	assert.Equal(t, "m", out[2].SubmissionID)
}

func TestRunIdempotent(t *testing.T) {
	rows := []model.RawSubmission{
		cleanRow("s1", "08031110001", 6.6, 3.35),
		cleanRow("s2", "08031110001", 6.6+1.8e-5, 3.35),
	}
	rows[1]["enumerator"] = "enum-s1"

	e := New(Options{})
	first, err := e.Run(context.Background(), rows, lagosSet())
	require.NoError(t, err)
	second, err := e.Run(context.Background(), rows, lagosSet())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunDeterministicUnderPermutation(t *testing.T) {
	rows := []model.RawSubmission{
		cleanRow("s1", "08031110001", 6.6, 3.35),
		cleanRow("s2", "08031110001", 6.6+1.8e-5, 3.35),
		cleanRow("s3", "08031110003", 6.62, 3.34),
	}
	rows[1]["enumerator"] = "enum-s1"
	rows[1]["deviceid"] = "device-s1"

	e := New(Options{})
	forward, err := e.Run(context.Background(), rows, lagosSet())
	require.NoError(t, err)

	reversed := []model.RawSubmission{rows[2], rows[1], rows[0]}
	backward, err := e.Run(context.Background(), reversed, lagosSet())
	require.NoError(t, err)

	byID := func(subs []model.ProcessedSubmission) map[string]model.ProcessedSubmission {
		m := make(map[string]model.ProcessedSubmission, len(subs))
		for _, s := range subs {
			m[s.SubmissionID] = s
		}
		return m
	}
	f, b := byID(forward), byID(backward)
	require.Len(t, b, len(f))
	for id, sub := range f {
		assert.Equal(t, sub.Flags, b[id].Flags, "flags for %s", id)
		assert.Equal(t, sub.Valid, b[id].Valid, "validity for %s", id)
		assert.Equal(t, sub.GeofenceStatus, b[id].GeofenceStatus, "geofence for %s", id)
	}
}

func TestRunFlagOrderIsDetectionOrder(t *testing.T) {
	// Odd hour + short duration + duplicate phone on one record: duplicate
	// phones are indexed before the temporal pass runs.
	rows := []model.RawSubmission{
		cleanRow("s1", "08031110001", 6.6, 3.35),
		cleanRow("s2", "08031110001", 6.61, 3.36),
	}
	rows[0]["start"] = "2024-03-12 23:00:00"
	rows[0]["end"] = "2024-03-12 23:05:00"

	out, err := New(Options{}).Run(context.Background(), rows, lagosSet())
	require.NoError(t, err)
	assert.Equal(t, []model.Flag{
		model.FlagDuplicatePhone,
		model.FlagLowLOI,
		model.FlagOddHour,
	}, out[0].Flags)
}

func TestRunWithoutBoundaries(t *testing.T) {
	out, err := New(Options{}).Run(context.Background(),
		[]model.RawSubmission{cleanRow("s1", "08031110001", 6.6, 3.35)}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Valid)
	assert.Empty(t, out[0].GeofenceStatus)
}
