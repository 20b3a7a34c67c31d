// Package normalize converts raw provider records into the typed working set.
//
// Coercion policy: an unparsable event date degrades to a missing value, an
// unparsable fatality count degrades to zero, but a record without valid
// coordinates is excluded outright — the spatial views require both.
package normalize

import (
	"math"
	"strconv"
	"time"

	"github.com/starford/raido/internal/acled"
	"github.com/starford/raido/internal/models"
)

// Stats describes what one normalization pass did.
type Stats struct {
	Input       int `json:"input"`
	Kept        int `json:"kept"`
	DroppedGeo  int `json:"dropped_geo"`
	MissingDate int `json:"missing_date"`
}

// Records coerces every raw record and drops the ones without valid
// coordinates. The output preserves input order.
func Records(raw []acled.RawRecord) (models.RecordSet, Stats) {
	stats := Stats{Input: len(raw)}
	out := make(models.RecordSet, 0, len(raw))
	for _, r := range raw {
		rec, ok := record(r)
		if !ok {
			stats.DroppedGeo++
			continue
		}
		if !rec.HasDate() {
			stats.MissingDate++
		}
		out = append(out, rec)
	}
	stats.Kept = len(out)
	return out, stats
}

func record(r acled.RawRecord) (models.Record, bool) {
	lat, latOK := parseFloat(r.Latitude)
	lon, lonOK := parseFloat(r.Longitude)
	if !latOK || !lonOK {
		return models.Record{}, false
	}
	return models.Record{
		EventID:    r.EventID.String(),
		EventDate:  parseDate(r.EventDate),
		EventType:  r.EventType.String(),
		SubType:    r.SubType.String(),
		Country:    r.Country.String(),
		Admin1:     r.Admin1.String(),
		Admin2:     r.Admin2.String(),
		Location:   r.Location.String(),
		Latitude:   lat,
		Longitude:  lon,
		Fatalities: parseFatalities(r.Fatalities),
		Actor1:     r.Actor1.String(),
		Actor2:     r.Actor2.String(),
		Notes:      r.Notes.String(),
	}, true
}

// parseDate returns the zero time for anything unparsable; the record
// survives with a missing date.
func parseDate(f acled.Field) time.Time {
	s := f.String()
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(models.DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseFloat rejects non-finite values: strconv accepts "NaN" and "Inf"
// spellings, but those are not coordinates and break JSON encoding later.
func parseFloat(f acled.Field) (float64, bool) {
	s := f.String()
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseFatalities treats missing, unparsable, and negative values as zero.
// A fatality count is never "unknown"; zero is the explicit policy.
func parseFatalities(f acled.Field) int {
	s := f.String()
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return int(v)
}
