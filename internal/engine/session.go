package engine

import (
	"sort"

	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

// sessionKey groups submissions by device and the local calendar day of the
// parsed start timestamp.
type sessionKey struct {
	device string
	day    string
}

// groupSessions buckets records with a start time into device/day groups,
// each sorted ascending by start. Ties break on submission id so the
// ordering is stable under input permutation. Records without a start time
// are not comparable in session terms and are left out.
func groupSessions(records []*model.DerivedRecord) map[sessionKey][]*model.DerivedRecord {
	groups := make(map[sessionKey][]*model.DerivedRecord)
	for _, rec := range records {
		if rec.Start == nil {
			continue
		}
		key := sessionKey{device: rec.DeviceID, day: rec.Start.Format("2006-01-02")}
		groups[key] = append(groups[key], rec)
	}
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			if !group[i].Start.Equal(*group[j].Start) {
				return group[i].Start.Before(*group[j].Start)
			}
			return group[i].SubmissionID < group[j].SubmissionID
		})
	}
	return groups
}

// predecessors maps each record's index to the previous record in its
// session group, where one exists.
func predecessors(groups map[sessionKey][]*model.DerivedRecord) map[int]*model.DerivedRecord {
	prev := make(map[int]*model.DerivedRecord)
	for _, group := range groups {
		for i := 1; i < len(group); i++ {
			prev[group[i].Index] = group[i-1]
		}
	}
	return prev
}
