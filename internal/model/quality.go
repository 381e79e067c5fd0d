package model

import "math"

// QualityMetadata accumulates flags and geofence/cluster evidence for one
// record while the engine runs. Freeze produces the immutable result; the
// builder is never shared across records except through the symmetric
// cluster-partner updates, which always touch exactly two builders inside
// one enumerator's group.
type QualityMetadata struct {
	flags     []Flag
	flagSeen  map[Flag]bool
	partners  []string
	partnSeen map[string]bool

	GeofenceStatus string
	MatchedState   string
	MatchedArea    string

	minClusterM float64
}

// NewQualityMetadata returns an empty builder. The minimum cluster distance
// starts at +Inf and stays there until a partner is recorded.
func NewQualityMetadata() *QualityMetadata {
	return &QualityMetadata{
		flagSeen:    make(map[Flag]bool),
		partnSeen:   make(map[string]bool),
		minClusterM: math.Inf(1),
	}
}

// AddFlag records a flag kind once, preserving first-insertion order.
func (q *QualityMetadata) AddFlag(f Flag) {
	if q.flagSeen[f] {
		return
	}
	q.flagSeen[f] = true
	q.flags = append(q.flags, f)
}

// HasFlag reports whether the flag kind has been raised.
func (q *QualityMetadata) HasFlag(f Flag) bool { return q.flagSeen[f] }

// Flags returns the ordered, de-duplicated flag set.
func (q *QualityMetadata) Flags() []Flag { return q.flags }

// AddPartner records a cluster partner and folds the pair distance into the
// minimum observed clustering distance.
func (q *QualityMetadata) AddPartner(submissionID string, distanceM float64) {
	if !q.partnSeen[submissionID] {
		q.partnSeen[submissionID] = true
		q.partners = append(q.partners, submissionID)
	}
	if distanceM < q.minClusterM {
		q.minClusterM = distanceM
	}
}

// Partners returns the cluster partner ids in insertion order.
func (q *QualityMetadata) Partners() []string { return q.partners }

// MinClusterDistanceM returns the minimum observed pair distance, or false
// when no partner has been recorded.
func (q *QualityMetadata) MinClusterDistanceM() (float64, bool) {
	if math.IsInf(q.minClusterM, 1) {
		return 0, false
	}
	return q.minClusterM, true
}

// ProcessedSubmission is the engine's sole output type: the original row
// plus the frozen quality metadata and the validity verdict.
type ProcessedSubmission struct {
	SubmissionID        string        `json:"submission_id"`
	Raw                 RawSubmission `json:"raw"`
	Flags               []Flag        `json:"flags"`
	Valid               bool          `json:"valid"`
	GeofenceStatus      string        `json:"geofence_status,omitempty"`
	MatchedState        string        `json:"matched_state,omitempty"`
	MatchedArea         string        `json:"matched_area,omitempty"`
	ClusterPartners     []string      `json:"cluster_partners,omitempty"`
	MinClusterDistanceM *float64      `json:"min_cluster_distance_m,omitempty"`
}

// Freeze pairs the raw row with the accumulated metadata. Validity is a pure
// function of the flag set: valid iff no flag was raised.
func (q *QualityMetadata) Freeze(id string, raw RawSubmission) ProcessedSubmission {
	flags := make([]Flag, len(q.flags))
	copy(flags, q.flags)

	partners := make([]string, len(q.partners))
	copy(partners, q.partners)

	p := ProcessedSubmission{
		SubmissionID:    id,
		Raw:             raw,
		Flags:           flags,
		Valid:           len(flags) == 0,
		GeofenceStatus:  q.GeofenceStatus,
		MatchedState:    q.MatchedState,
		MatchedArea:     q.MatchedArea,
		ClusterPartners: partners,
	}
	if min, ok := q.MinClusterDistanceM(); ok {
		p.MinClusterDistanceM = &min
	}
	return p
}
