// Package models defines the domain types for Raido.
package models

import (
	"sort"
	"time"
)

// DateLayout is the calendar-date wire format used by the provider
// and by every Raido API surface.
const DateLayout = "2006-01-02"

// Record is one normalized conflict event. Every Record in a working set
// has valid coordinates; EventDate may be zero when the provider sent an
// unparsable date (consumers must handle that).
type Record struct {
	EventID    string    `json:"event_id"`
	EventDate  time.Time `json:"event_date,omitzero"`
	EventType  string    `json:"event_type"`
	SubType    string    `json:"sub_event_type,omitempty"`
	Country    string    `json:"country"`
	Admin1     string    `json:"admin1,omitempty"`
	Admin2     string    `json:"admin2,omitempty"`
	Location   string    `json:"location,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Fatalities int       `json:"fatalities"`
	Actor1     string    `json:"actor1,omitempty"`
	Actor2     string    `json:"actor2,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

// HasDate reports whether the record carries a parsed event date.
func (r Record) HasDate() bool {
	return !r.EventDate.IsZero()
}

// RecordSet is an ordered collection of normalized records. It is replaced
// wholesale on each successful fetch and never mutated in place.
type RecordSet []Record

// UniqueDates returns the sorted distinct event dates present in the set.
// Records without a parsed date do not contribute.
func (rs RecordSet) UniqueDates() []time.Time {
	seen := make(map[time.Time]struct{}, len(rs))
	var out []time.Time
	for _, r := range rs {
		if !r.HasDate() {
			continue
		}
		d := r.EventDate
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// On returns the subset of records whose event date equals day.
func (rs RecordSet) On(day time.Time) RecordSet {
	var out RecordSet
	for _, r := range rs {
		if r.HasDate() && r.EventDate.Equal(day) {
			out = append(out, r)
		}
	}
	return out
}

// Summary holds the dashboard headline metrics derived from a record set.
type Summary struct {
	Events     int `json:"events"`
	Fatalities int `json:"fatalities"`
	Regions    int `json:"regions"`
	SpanDays   int `json:"span_days"`
}

// Summarize computes headline metrics for the set.
func (rs RecordSet) Summarize() Summary {
	s := Summary{Events: len(rs)}
	regions := make(map[string]struct{})
	var first, last time.Time
	for _, r := range rs {
		s.Fatalities += r.Fatalities
		if r.Admin1 != "" {
			regions[r.Admin1] = struct{}{}
		}
		if !r.HasDate() {
			continue
		}
		if first.IsZero() || r.EventDate.Before(first) {
			first = r.EventDate
		}
		if last.IsZero() || r.EventDate.After(last) {
			last = r.EventDate
		}
	}
	s.Regions = len(regions)
	if !first.IsZero() {
		s.SpanDays = int(last.Sub(first).Hours() / 24)
	}
	return s
}

// Credentials is the operator-supplied provider identity. Values are opaque
// and must never be logged.
type Credentials struct {
	Identity string `yaml:"identity"`
	Secret   string `yaml:"secret"`
}

// Empty reports whether either half of the credential pair is missing.
func (c Credentials) Empty() bool {
	return c.Identity == "" || c.Secret == ""
}

// FetchRequest describes one bulk retrieval: a set of sources (countries)
// and an inclusive date interval.
type FetchRequest struct {
	Sources  []string  `json:"countries"`
	DateFrom time.Time `json:"date_from"`
	DateTo   time.Time `json:"date_to"`
}

// SourceWarning records a per-source fetch failure that was recovered locally.
type SourceWarning struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}
