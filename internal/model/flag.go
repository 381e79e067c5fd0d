package model

// Flag identifies one quality problem detected on a submission.
type Flag string

const (
	FlagOddHour            Flag = "OddHour"
	FlagLowLOI             Flag = "Low LOI"
	FlagHighLOI            Flag = "High LOI"
	FlagOutsideLGABoundary Flag = "OutsideLGABoundary"
	FlagDuplicatePhone     Flag = "DuplicatePhone"
	FlagInterwoven         Flag = "Interwoven"
	FlagShortGap           Flag = "ShortGap"
	FlagClusteredInterview Flag = "ClusteredInterview"
	FlagTerminated         Flag = "Terminated"
)

// Geofence status labels recorded on a submission's quality metadata.
const (
	GeoStatusNotOnMap       = "not on map"
	GeoStatusWithinReported = "within reported LGA"
	GeoStatusSameState      = "within same state, different LGA"
	GeoStatusDifferentState = "within different state"
	GeoStatusLocated        = "located"
)
