package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

func TestNormalizeSubmissionID(t *testing.T) {
	tests := []struct {
		name string
		raw  model.RawSubmission
		want string
	}{
		{"explicit id", model.RawSubmission{"submissionid": "abc-1"}, "abc-1"},
		{"underscore alias", model.RawSubmission{"submission_id": "abc-2"}, "abc-2"},
		{"uuid alias", model.RawSubmission{"_uuid": "abc-3"}, "abc-3"},
		{"fallback to position", model.RawSubmission{"q1": "yes"}, "row-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Normalize(tt.raw, 4)
			assert.Equal(t, tt.want, rec.SubmissionID)
		})
	}
}

func TestNormalizeTimestamps(t *testing.T) {
	rec := Normalize(model.RawSubmission{
		"start": "2024-03-12T09:15:00",
		"end":   "2024-03-12T09:45:00",
	}, 0)
	require.NotNil(t, rec.Start)
	require.NotNil(t, rec.End)
	assert.Equal(t, 9, rec.Start.Hour())
	require.NotNil(t, rec.DurationMin)
	assert.InDelta(t, 30.0, *rec.DurationMin, 0.001)
}

func TestNormalizeDateTimeFallback(t *testing.T) {
	rec := Normalize(model.RawSubmission{
		"submissiondate": "12/03/2024",
		"submissiontime": "14:30",
	}, 0)
	require.NotNil(t, rec.Start)
	assert.Equal(t, time.March, rec.Start.Month())
	assert.Equal(t, 12, rec.Start.Day())
	assert.Equal(t, 14, rec.Start.Hour())
	assert.Equal(t, 30, rec.Start.Minute())
}

func TestNormalizeEndFromDuration(t *testing.T) {
	rec := Normalize(model.RawSubmission{
		"start":    "2024-03-12 10:00:00",
		"duration": "25",
	}, 0)
	require.NotNil(t, rec.End)
	assert.Equal(t, 10, rec.End.Hour())
	assert.Equal(t, 25, rec.End.Minute())
}

func TestNormalizeNegativeDurationNoEnd(t *testing.T) {
	rec := Normalize(model.RawSubmission{
		"start":    "2024-03-12 10:00:00",
		"duration": "-5",
	}, 0)
	assert.Nil(t, rec.End)
	require.NotNil(t, rec.DurationMin)
	assert.InDelta(t, -5.0, *rec.DurationMin, 0.001)
}

func TestNormalizeCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		raw     model.RawSubmission
		wantLat float64
		wantLng float64
		hasText bool
		parsed  bool
	}{
		{
			name:    "numeric pair",
			raw:     model.RawSubmission{"latitude": "6.5244", "longitude": "3.3792"},
			wantLat: 6.5244, wantLng: 3.3792, hasText: true, parsed: true,
		},
		{
			name:    "combined gps text",
			raw:     model.RawSubmission{"gps": "6.5244 3.3792 0.0 5.0"},
			wantLat: 6.5244, wantLng: 3.3792, hasText: true, parsed: true,
		},
		{
			name:    "comma separated",
			raw:     model.RawSubmission{"gps": "6.5244,3.3792"},
			wantLat: 6.5244, wantLng: 3.3792, hasText: true, parsed: true,
		},
		{
			name:    "garbage text keeps evidence",
			raw:     model.RawSubmission{"gps": "no fix"},
			hasText: true, parsed: false,
		},
		{
			name: "nothing at all",
			raw:  model.RawSubmission{"q1": "yes"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Normalize(tt.raw, 0)
			assert.Equal(t, tt.hasText, rec.HasCoordText)
			if !tt.parsed {
				assert.False(t, rec.HasCoords())
				return
			}
			require.True(t, rec.HasCoords())
			assert.InDelta(t, tt.wantLat, *rec.Latitude, 1e-9)
			assert.InDelta(t, tt.wantLng, *rec.Longitude, 1e-9)
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0803 111 2222", "08031112222"},
		{"+234 (803) 111-2222", "+2348031112222"},
		{"080.311.122-22", "08031112222"},
		{"", ""},
		{"   ", ""},
		{"+", ""},
		{"n/a", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeDeviceFallback(t *testing.T) {
	tests := []struct {
		name string
		raw  model.RawSubmission
		want string
	}{
		{"device id wins", model.RawSubmission{"deviceid": "d-1", "username": "u-1", "enumerator": "e-1"}, "d-1"},
		{"username next", model.RawSubmission{"username": "u-1", "enumerator": "e-1"}, "u-1"},
		{"enumerator last", model.RawSubmission{"enumerator": "e-1"}, "e-1"},
		{"unknown when empty", model.RawSubmission{"q1": "yes"}, "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Normalize(tt.raw, 0)
			assert.Equal(t, tt.want, rec.DeviceID)
		})
	}
}

func TestNormalizeEnumeratorFallback(t *testing.T) {
	rec := Normalize(model.RawSubmission{"q1": "yes"}, 0)
	assert.Equal(t, "Unknown", rec.EnumeratorID)
}

func TestNormalizeCaseInsensitiveHeaders(t *testing.T) {
	rec := Normalize(model.RawSubmission{
		"Latitude":  "6.5",
		"LONGITUDE": "3.4",
		"Phone":     "08031112222",
	}, 0)
	assert.True(t, rec.HasCoords())
	assert.Equal(t, "08031112222", rec.Phone)
}
