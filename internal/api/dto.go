package api

import (
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/playback"
	"github.com/starford/raido/internal/session"
)

// FetchRequest is the request body for a bulk fetch. Dates use YYYY-MM-DD.
type FetchRequest struct {
	Countries []string `json:"countries"`
	DateFrom  string   `json:"date_from"`
	DateTo    string   `json:"date_to"`
}

// SelectRequest moves the playback cursor to a specific date.
type SelectRequest struct {
	Date string `json:"date"`
}

// ModeRequest toggles temporal mode.
type ModeRequest struct {
	Temporal bool `json:"temporal"`
}

// FetchResult is the fetch response payload (aliased from the session layer).
type FetchResult = session.FetchResult

// RecordListResponse wraps a (possibly date-filtered) record listing.
type RecordListResponse struct {
	Records models.RecordSet `json:"records"`
	Total   int              `json:"total"`
}

// PlaybackState is the playback snapshot payload (aliased from the controller).
type PlaybackState = playback.Snapshot
