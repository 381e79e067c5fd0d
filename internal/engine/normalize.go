package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// Field aliases tolerated across historical export header spellings.
var (
	idKeys       = []string{"submissionid", "submission_id", "_id", "instanceid", "_uuid", "key"}
	startKeys    = []string{"start", "interview_start"}
	startTimKeys = []string{"starttime", "start_time"}
	endKeys      = []string{"end", "interview_end"}
	endTimKeys   = []string{"endtime", "end_time"}
	subDateKeys  = []string{"submissiondate", "submission_date", "date"}
	subTimeKeys  = []string{"submissiontime", "submission_time", "time"}
	durationKeys = []string{"duration", "interview_duration", "duration_minutes", "loi", "loi_minutes"}
	latKeys      = []string{"latitude", "gps_latitude", "_gps_latitude", "lat"}
	lngKeys      = []string{"longitude", "gps_longitude", "_gps_longitude", "lng", "lon"}
	gpsTextKeys  = []string{"gps", "gps_coordinates", "geopoint", "_geolocation", "coordinates"}
	phoneKeys    = []string{"phone", "phone_number", "respondent_phone", "a2_phone_number", "telephone"}
	deviceKeys   = []string{"deviceid", "device_id", "imei"}
	userKeys     = []string{"username", "submitted_by", "user"}
	enumKeys     = []string{"enumerator", "enumerator_id", "enumerator_name", "a1_enumerator_id", "interviewer"}
	stateKeys    = []string{"state", "state_name", "a0_state"}
	lgaKeys      = []string{"lga", "lga_name", "a3_select_the_lga", "select_the_lga"}
)

// timestampLayouts are tried in order when parsing timestamp text.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2 Jan 2006"}

var clockLayouts = []string{"15:04:05", "15:04", "3:04:05 PM", "3:04 PM"}

// Normalize converts one raw row into its derived working record with an
// empty quality-metadata builder attached. It never fails: unparsable fields
// are simply absent on the result.
func Normalize(raw model.RawSubmission, index int) *model.DerivedRecord {
	rec := &model.DerivedRecord{
		Index:   index,
		Raw:     raw,
		Quality: model.NewQualityMetadata(),
	}

	rec.SubmissionID = raw.Text(idKeys...)
	if rec.SubmissionID == "" {
		rec.SubmissionID = fmt.Sprintf("row-%d", index+1)
	}

	rec.Start = resolveStart(raw)
	if d, ok := raw.Number(durationKeys...); ok {
		rec.DurationMin = &d
	}
	rec.End = resolveEnd(raw, rec.Start, rec.DurationMin)

	// When no duration was stated, derive it from the resolved span.
	if rec.DurationMin == nil && rec.Start != nil && rec.End != nil {
		d := rec.End.Sub(*rec.Start).Minutes()
		rec.DurationMin = &d
	}

	resolveCoordinates(raw, rec)
	rec.Phone = NormalizePhone(raw.Text(phoneKeys...))

	rec.EnumeratorID = raw.Text(enumKeys...)
	if rec.EnumeratorID == "" {
		rec.EnumeratorID = "Unknown"
	}

	// Device resolution order: explicit device id, submitting user, then the
	// enumerator id so every record has some session key.
	rec.DeviceID = raw.Text(deviceKeys...)
	if rec.DeviceID == "" {
		rec.DeviceID = raw.Text(userKeys...)
	}
	if rec.DeviceID == "" {
		rec.DeviceID = rec.EnumeratorID
	}

	rec.ReportedState = raw.Text(stateKeys...)
	rec.ReportedLGA = raw.Text(lgaKeys...)

	return rec
}

// resolveStart follows the resolution order: explicit start field, explicit
// start-time field, then combined submission date + time.
func resolveStart(raw model.RawSubmission) *time.Time {
	if t := parseTimestamp(raw.Text(startKeys...)); t != nil {
		return t
	}
	if t := parseTimestamp(raw.Text(startTimKeys...)); t != nil {
		return t
	}
	return combineDateTime(raw.Text(subDateKeys...), raw.Text(subTimeKeys...))
}

// resolveEnd follows the order: explicit end field, explicit end-time field,
// then start plus the stated non-negative duration.
func resolveEnd(raw model.RawSubmission, start *time.Time, durationMin *float64) *time.Time {
	if t := parseTimestamp(raw.Text(endKeys...)); t != nil {
		return t
	}
	if t := parseTimestamp(raw.Text(endTimKeys...)); t != nil {
		return t
	}
	if start != nil && durationMin != nil && *durationMin >= 0 {
		t := start.Add(time.Duration(*durationMin * float64(time.Minute)))
		return &t
	}
	return nil
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t
		}
	}
	return nil
}

func combineDateTime(dateText, timeText string) *time.Time {
	if dateText == "" {
		return nil
	}
	var day time.Time
	var ok bool
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, dateText, time.Local); err == nil {
			day, ok = t, true
			break
		}
	}
	if !ok {
		// Some exports put a full timestamp in the date column.
		return parseTimestamp(dateText)
	}
	for _, layout := range clockLayouts {
		if clock, err := time.Parse(layout, timeText); err == nil {
			t := time.Date(day.Year(), day.Month(), day.Day(),
				clock.Hour(), clock.Minute(), clock.Second(), 0, time.Local)
			return &t
		}
	}
	return &day
}

// resolveCoordinates reads the numeric pair, falling back to splitting a
// combined "lat, lng" text field. HasCoordText records whether any raw
// coordinate text existed at all, parsable or not.
func resolveCoordinates(raw model.RawSubmission, rec *model.DerivedRecord) {
	gpsText := raw.Text(gpsTextKeys...)
	rec.HasCoordText = gpsText != "" || raw.Text(latKeys...) != "" || raw.Text(lngKeys...) != ""

	lat, latOK := raw.Number(latKeys...)
	lng, lngOK := raw.Number(lngKeys...)
	if latOK && lngOK {
		rec.Latitude, rec.Longitude = &lat, &lng
		return
	}

	if gpsText == "" {
		return
	}
	parts := strings.FieldsFunc(gpsText, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == ';'
	})
	if len(parts) < 2 {
		return
	}
	pLat, okLat := parseFloatText(parts[0])
	pLng, okLng := parseFloatText(parts[1])
	if okLat && okLng {
		rec.Latitude, rec.Longitude = &pLat, &pLng
	}
}

func parseFloatText(s string) (float64, bool) {
	var f float64
	n, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &f)
	if err != nil || n != 1 {
		return 0, false
	}
	return f, true
}

// NormalizePhone strips every character except digits and a leading plus
// sign. An empty result is treated as absent.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	if s[0] == '+' {
		b.WriteByte('+')
	}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || out == "+" {
		return ""
	}
	return out
}
