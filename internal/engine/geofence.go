package engine

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/meridian-mel/fieldqc-cli/internal/boundary"
	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// evaluateGeofence tests the record's coordinate against the boundary set
// and classifies state/LGA agreement. Runs only when numeric coordinates and
// a non-empty boundary set are both present.
func (e *Engine) evaluateGeofence(rec *model.DerivedRecord, set []model.Boundary) {
	if !rec.HasCoords() || len(set) == 0 {
		return
	}

	pt := model.Point{Lat: *rec.Latitude, Lng: *rec.Longitude}
	matched, ok := boundary.Match(set, pt)
	if !ok {
		rec.Quality.GeofenceStatus = model.GeoStatusNotOnMap
		rec.Quality.AddFlag(model.FlagOutsideLGABoundary)
		return
	}

	rec.Quality.MatchedState = matched.State
	rec.Quality.MatchedArea = matched.Name

	// Missing text on either side leaves the mismatch unjudgeable: record
	// the location, raise nothing.
	if matched.State == "" || matched.Name == "" ||
		rec.ReportedState == "" || rec.ReportedLGA == "" {
		rec.Quality.GeofenceStatus = model.GeoStatusLocated
		return
	}

	switch {
	case !sameName(matched.State, rec.ReportedState):
		rec.Quality.GeofenceStatus = model.GeoStatusDifferentState
		rec.Quality.AddFlag(model.FlagOutsideLGABoundary)
	case !sameName(matched.Name, rec.ReportedLGA):
		rec.Quality.GeofenceStatus = model.GeoStatusSameState
		rec.Quality.AddFlag(model.FlagOutsideLGABoundary)
	default:
		rec.Quality.GeofenceStatus = model.GeoStatusWithinReported
	}
}

// sameName compares area names case-insensitively after Unicode
// normalization and whitespace collapsing.
func sameName(a, b string) bool {
	return strings.EqualFold(canonicalName(a), canonicalName(b))
}

func canonicalName(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
