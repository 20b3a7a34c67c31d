package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/starford/raido/internal/acled"
	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/playback"
	"github.com/starford/raido/internal/testutil"
)

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (n *recordingNotifier) PublishSessionEvent(kind string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
}

func (n *recordingNotifier) has(kind string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range n.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func testService(t *testing.T) (*Service, *testutil.FakeProvider, *recordingNotifier) {
	t.Helper()

	p := testutil.NewFakeProvider(t)
	tokens := acled.NewTokenCache(p.TokenURL(), "acled", 5*time.Second)
	client := acled.NewClient(p.ReadURL(), 5*time.Second)

	pb := playback.New(time.Hour, nil)
	t.Cleanup(pb.Close)

	n := &recordingNotifier{}
	svc := New(tokens, client, pb, models.Credentials{
		Identity: "analyst@example.com",
		Secret:   "hunter2",
	}, WithNotifier(n))
	return svc, p, n
}

func fetchReq(from, to string) models.FetchRequest {
	f, _ := time.ParseInLocation(models.DateLayout, from, time.UTC)
	t, _ := time.ParseInLocation(models.DateLayout, to, time.UTC)
	return models.FetchRequest{Sources: []string{"Ukraine", "Nowhere"}, DateFrom: f, DateTo: t}
}

func TestFetchData_PartialFailureKeepsSurvivors(t *testing.T) {
	svc, p, n := testService(t)
	p.Records["Ukraine"] = []map[string]any{
		testutil.Raw("UKR1", "2024-01-01", "Ukraine", 50.4, 30.5, 2),
		testutil.Raw("UKR2", "2024-01-03", "Ukraine", 49.8, 36.2, 0),
		testutil.Raw("UKR3", "2024-01-03", "Ukraine", 48.5, 35.0, 1),
	}
	p.FailSources["Nowhere"] = true

	result, err := svc.FetchData(context.Background(), fetchReq("2024-01-01", "2024-01-31"))
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}

	if result.Records != 3 {
		t.Errorf("records = %d, want 3", result.Records)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Source != "Nowhere" {
		t.Errorf("warnings = %v, want one for Nowhere", result.Warnings)
	}
	if result.NoData {
		t.Error("no_data should be false")
	}
	if !svc.DataFetched() {
		t.Error("DataFetched should be true")
	}
	if !n.has("source.warning") || !n.has("data.fetched") {
		t.Errorf("notifier kinds = %v, want source.warning and data.fetched", n.kinds)
	}

	// Playback resets to Paused at the earliest date.
	snap := svc.Playback().State()
	if snap.State != playback.StatePaused {
		t.Errorf("playback state = %q, want %q", snap.State, playback.StatePaused)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !snap.Current.Equal(want) {
		t.Errorf("playback current = %v, want %v", snap.Current, want)
	}
	if snap.DateCount != 2 {
		t.Errorf("playback dates = %d, want 2 distinct", snap.DateCount)
	}
}

func TestFetchData_AllSourcesEmpty(t *testing.T) {
	svc, p, n := testService(t)
	p.FailSources["Ukraine"] = true
	p.FailSources["Nowhere"] = true

	result, err := svc.FetchData(context.Background(), fetchReq("2024-01-01", "2024-01-31"))
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}
	if !result.NoData {
		t.Error("no_data should be true")
	}
	if svc.DataFetched() {
		t.Error("DataFetched should be false")
	}
	if !n.has("data.empty") {
		t.Errorf("notifier kinds = %v, want data.empty", n.kinds)
	}
	if snap := svc.Playback().State(); snap.State != playback.StateIdle {
		t.Errorf("playback state = %q, want %q", snap.State, playback.StateIdle)
	}
}

func TestFetchData_InvalidRangeBeforeNetwork(t *testing.T) {
	svc, p, _ := testService(t)

	_, err := svc.FetchData(context.Background(), fetchReq("2024-01-31", "2024-01-01"))
	if !errors.Is(err, apperr.ErrInvalidDateRange) {
		t.Fatalf("err = %v, want ErrInvalidDateRange", err)
	}
	if p.TokenCalls() != 0 || p.ReadCalls() != 0 {
		t.Errorf("network calls = %d token, %d read, want none", p.TokenCalls(), p.ReadCalls())
	}
}

func TestFetchData_AuthFailure(t *testing.T) {
	svc, p, _ := testService(t)
	p.RejectAuth = true

	_, err := svc.FetchData(context.Background(), fetchReq("2024-01-01", "2024-01-31"))
	var authErr *apperr.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want *apperr.AuthError", err)
	}
	if p.ReadCalls() != 0 {
		t.Errorf("read calls = %d, want 0 after auth failure", p.ReadCalls())
	}
}

func TestSetCredentials_InvalidatesTokenCache(t *testing.T) {
	svc, p, _ := testService(t)
	p.Records["Ukraine"] = []map[string]any{
		testutil.Raw("UKR1", "2024-01-01", "Ukraine", 50.4, 30.5, 0),
	}

	ctx := context.Background()
	if _, err := svc.FetchData(ctx, fetchReq("2024-01-01", "2024-01-31")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.FetchData(ctx, fetchReq("2024-01-01", "2024-01-31")); err != nil {
		t.Fatal(err)
	}
	if got := p.TokenCalls(); got != 1 {
		t.Fatalf("token calls = %d, want 1 while cached", got)
	}

	svc.SetCredentials(models.Credentials{Identity: "rotated@example.com", Secret: "new"})
	if _, err := svc.FetchData(ctx, fetchReq("2024-01-01", "2024-01-31")); err != nil {
		t.Fatal(err)
	}
	if got := p.TokenCalls(); got != 2 {
		t.Errorf("token calls = %d, want 2 after rotation", got)
	}
}

func TestFetchData_ConcurrentFetchesStayConsistent(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	p.Records["Ukraine"] = []map[string]any{
		testutil.Raw("UKR1", "2024-01-01", "Ukraine", 50.4, 30.5, 0),
		testutil.Raw("UKR2", "2024-01-02", "Ukraine", 49.8, 36.2, 0),
	}
	p.Records["Mali"] = []map[string]any{
		testutil.Raw("MLI1", "2024-02-01", "Mali", 16.2, -0.04, 0),
		testutil.Raw("MLI2", "2024-02-05", "Mali", 14.5, -4.2, 0),
		testutil.Raw("MLI3", "2024-02-09", "Mali", 13.9, -3.0, 0),
	}

	tokens := acled.NewTokenCache(p.TokenURL(), "acled", 5*time.Second)
	client := acled.NewClient(p.ReadURL(), 5*time.Second)
	pb := playback.New(time.Hour, nil)
	t.Cleanup(pb.Close)
	svc := New(tokens, client, pb, models.Credentials{Identity: "u@example.com", Secret: "pw"})

	req := func(country string) models.FetchRequest {
		return models.FetchRequest{
			Sources:  []string{country},
			DateFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			DateTo:   time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC),
		}
	}

	// Fire competing fetches; whichever lands last, the playback date set
	// must always match the active record set.
	for i := 0; i < 20; i++ {
		var wg sync.WaitGroup
		for _, country := range []string{"Ukraine", "Mali"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := svc.FetchData(context.Background(), req(country)); err != nil {
					t.Errorf("FetchData(%s): %v", country, err)
				}
			}()
		}
		wg.Wait()

		wantDates := svc.Records().UniqueDates()
		snap := svc.Playback().State()
		if snap.DateCount != len(wantDates) {
			t.Fatalf("playback has %d dates, record set has %d", snap.DateCount, len(wantDates))
		}
		if len(wantDates) > 0 {
			if !snap.MinDate.Equal(wantDates[0]) || !snap.MaxDate.Equal(wantDates[len(wantDates)-1]) {
				t.Fatalf("playback range %v..%v does not match record set %v..%v",
					snap.MinDate, snap.MaxDate, wantDates[0], wantDates[len(wantDates)-1])
			}
		}
	}
}

func TestFetchData_ResponseCacheSkipsRepeatReads(t *testing.T) {
	p := testutil.NewFakeProvider(t)
	p.Records["Ukraine"] = []map[string]any{
		testutil.Raw("UKR1", "2024-01-01", "Ukraine", 50.4, 30.5, 0),
	}

	tokens := acled.NewTokenCache(p.TokenURL(), "acled", 5*time.Second)
	client := acled.NewClient(p.ReadURL(), 5*time.Second,
		acled.WithCache(testutil.TestStore(t, time.Hour)))

	pb := playback.New(time.Hour, nil)
	t.Cleanup(pb.Close)
	svc := New(tokens, client, pb, models.Credentials{Identity: "u@example.com", Secret: "pw"})

	ctx := context.Background()
	req := models.FetchRequest{
		Sources:  []string{"Ukraine"},
		DateFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	if _, err := svc.FetchData(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.FetchData(ctx, req); err != nil {
		t.Fatal(err)
	}
	if got := p.ReadCalls(); got != 1 {
		t.Errorf("read calls = %d, want 1 with a warm cache", got)
	}
}

func TestRecordsOnAndSummary(t *testing.T) {
	svc, p, _ := testService(t)
	p.Records["Ukraine"] = []map[string]any{
		testutil.Raw("UKR1", "2024-01-01", "Ukraine", 50.4, 30.5, 2),
		testutil.Raw("UKR2", "2024-01-05", "Ukraine", 49.8, 36.2, 3),
	}
	p.FailSources["Nowhere"] = true

	if _, err := svc.FetchData(context.Background(), fetchReq("2024-01-01", "2024-01-31")); err != nil {
		t.Fatal(err)
	}

	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	on := svc.RecordsOn(day)
	if len(on) != 1 || on[0].EventID != "UKR2" {
		t.Errorf("RecordsOn = %v, want only UKR2", on)
	}

	sum := svc.Summary()
	if sum.Events != 2 || sum.Fatalities != 5 {
		t.Errorf("summary = %+v, want 2 events and 5 fatalities", sum)
	}
	if sum.SpanDays != 4 {
		t.Errorf("span = %d days, want 4", sum.SpanDays)
	}
}
