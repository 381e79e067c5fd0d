package engine

import "github.com/meridian-mel/fieldqc-cli/internal/model"

// evaluateTemporal runs the duration, time-of-day, and session-gap checks
// for one record against its device/day predecessor (nil when none).
func (e *Engine) evaluateTemporal(rec *model.DerivedRecord, prev *model.DerivedRecord) {
	// Total absence of location evidence means the interview was terminated
	// before GPS capture. Exclusive with the geofence checks, which only run
	// when numeric coordinates exist.
	if !rec.HasCoords() && !rec.HasCoordText {
		rec.Quality.AddFlag(model.FlagTerminated)
	}

	if rec.DurationMin != nil {
		if *rec.DurationMin < e.opts.LowLOIMinutes {
			rec.Quality.AddFlag(model.FlagLowLOI)
		}
		if *rec.DurationMin > e.opts.HighLOIMinutes {
			rec.Quality.AddFlag(model.FlagHighLOI)
		}
	}

	if rec.Start == nil {
		return
	}

	if hour := rec.Start.Hour(); hour < e.opts.DayStartHour || hour > e.opts.DayEndHour {
		rec.Quality.AddFlag(model.FlagOddHour)
	}

	// Gap to the previous session on the same device and day. A negative gap
	// means this interview started before the previous one finished; a small
	// non-negative gap means implausible back-to-back entry.
	if prev == nil || prev.End == nil {
		return
	}
	gap := rec.Start.Sub(*prev.End)
	switch {
	case gap < 0:
		rec.Quality.AddFlag(model.FlagInterwoven)
	case gap < e.opts.ShortGap:
		rec.Quality.AddFlag(model.FlagShortGap)
	}
}
