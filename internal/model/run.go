package model

import "time"

// RunStatus tracks the lifecycle of a quality-check run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one execution of the quality engine over an export.
type Run struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	ClusterRadiusM float64   `json:"cluster_radius_m"`
	BoundaryCount  int       `json:"boundary_count"`
	Total          int       `json:"total"`
	Flagged        int       `json:"flagged"`
	Status         RunStatus `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
