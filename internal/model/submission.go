// Package model holds the submission, quality-metadata, and boundary types
// shared by the quality engine and its collaborators.
package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// RawSubmission is one untyped survey row as handed over by the ingestion
// layer: question label -> value (string, number, or list). It is never
// mutated once inside the engine.
type RawSubmission map[string]any

// First returns the first non-empty value among the given keys.
// Key lookup is case-insensitive to tolerate historical header spellings.
func (r RawSubmission) First(keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := r[key]; ok && !isEmptyValue(v) {
			return v, true
		}
	}
	// Case-insensitive fallback.
	for _, key := range keys {
		for k, v := range r {
			if strings.EqualFold(k, key) && !isEmptyValue(v) {
				return v, true
			}
		}
	}
	return nil, false
}

// Text returns the first non-empty value among the keys, rendered as a
// trimmed string. Returns "" when no key resolves.
func (r RawSubmission) Text(keys ...string) string {
	v, ok := r.First(keys...)
	if !ok {
		return ""
	}
	return valueToString(v)
}

// Number returns the first value among the keys that parses as a float.
func (r RawSubmission) Number(keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := r.First(key)
		if !ok {
			continue
		}
		if f, ok := valueToFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	default:
		return false
	}
}

func valueToString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func valueToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) {
			return 0, false
		}
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// DerivedRecord is the parsed working form of one RawSubmission. It exists
// only for the duration of a single engine run.
type DerivedRecord struct {
	Index        int
	SubmissionID string

	Start       *time.Time
	End         *time.Time
	DurationMin *float64

	Latitude     *float64
	Longitude    *float64
	HasCoordText bool

	Phone        string // digits (optionally +-prefixed), "" when absent
	DeviceID     string
	EnumeratorID string

	ReportedState string
	ReportedLGA   string

	Quality *QualityMetadata
	Raw     RawSubmission
}

// HasCoords reports whether both numeric coordinates resolved.
func (d *DerivedRecord) HasCoords() bool {
	return d.Latitude != nil && d.Longitude != nil
}
