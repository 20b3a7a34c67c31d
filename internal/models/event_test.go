package models

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestUniqueDates_SortedAndDeduplicated(t *testing.T) {
	rs := RecordSet{
		{EventID: "A", EventDate: day("2024-01-09")},
		{EventID: "B", EventDate: day("2024-01-01")},
		{EventID: "C", EventDate: day("2024-01-09")},
		{EventID: "D"}, // no date
		{EventID: "E", EventDate: day("2024-01-05")},
	}

	got := rs.UniqueDates()
	want := []time.Time{day("2024-01-01"), day("2024-01-05"), day("2024-01-09")}
	if len(got) != len(want) {
		t.Fatalf("got %d dates, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("dates[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestOn_FiltersByDate(t *testing.T) {
	rs := RecordSet{
		{EventID: "A", EventDate: day("2024-01-01")},
		{EventID: "B", EventDate: day("2024-01-02")},
		{EventID: "C"},
	}

	on := rs.On(day("2024-01-02"))
	if len(on) != 1 || on[0].EventID != "B" {
		t.Errorf("On = %v, want only B", on)
	}
	if got := rs.On(day("2024-03-01")); len(got) != 0 {
		t.Errorf("On(absent day) = %v, want empty", got)
	}
}

func TestSummarize(t *testing.T) {
	rs := RecordSet{
		{EventDate: day("2024-01-01"), Fatalities: 2, Admin1: "Kyiv"},
		{EventDate: day("2024-01-11"), Fatalities: 5, Admin1: "Kharkiv"},
		{EventDate: day("2024-01-06"), Fatalities: 0, Admin1: "Kyiv"},
		{Fatalities: 1}, // no date, no region
	}

	got := rs.Summarize()
	want := Summary{Events: 4, Fatalities: 8, Regions: 2, SpanDays: 10}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
}

func TestSummarize_Empty(t *testing.T) {
	if got := (RecordSet{}).Summarize(); got != (Summary{}) {
		t.Errorf("empty Summarize() = %+v, want zero", got)
	}
}

func TestCredentials_Empty(t *testing.T) {
	cases := []struct {
		creds Credentials
		want  bool
	}{
		{Credentials{}, true},
		{Credentials{Identity: "user"}, true},
		{Credentials{Secret: "pw"}, true},
		{Credentials{Identity: "user", Secret: "pw"}, false},
	}
	for _, tc := range cases {
		if got := tc.creds.Empty(); got != tc.want {
			t.Errorf("Empty(%+v) = %v, want %v", tc.creds, got, tc.want)
		}
	}
}
