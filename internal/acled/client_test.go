package acled

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var (
	from = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
)

// readServer serves one canned body per country and counts requests.
func readServer(t *testing.T, calls *atomic.Int64, bodies map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, ok := bodies[r.URL.Query().Get("country")]
		if !ok {
			http.Error(w, "unknown country", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func envelope(ids ...string) string {
	out := `{"status":200,"data":[`
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"event_id_cnty":%q,"event_date":"2024-01-0%d"}`, id, i+1)
	}
	return out + `]}`
}

func TestFetch_MergesSourcesInOrder(t *testing.T) {
	var calls atomic.Int64
	srv := readServer(t, &calls, map[string]string{
		"Ukraine": envelope("UKR1", "UKR2"),
		"Syria":   envelope("SYR1"),
	})

	c := NewClient(srv.URL, time.Second)
	records, warnings := c.Fetch(context.Background(), "tok", []string{"Ukraine", "Syria"}, from, to)

	if len(warnings) != 0 {
		t.Fatalf("warnings = %v, want none", warnings)
	}
	want := []string{"UKR1", "UKR2", "SYR1"}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i, id := range want {
		if records[i].EventID.String() != id {
			t.Errorf("records[%d] = %q, want %q", i, records[i].EventID, id)
		}
	}
}

func TestFetch_PartialFailure(t *testing.T) {
	var calls atomic.Int64
	srv := readServer(t, &calls, map[string]string{
		"Ukraine": envelope("UKR1", "UKR2", "UKR3"),
		// "Nowhere" is absent, so its read returns HTTP 500.
	})

	c := NewClient(srv.URL, time.Second)
	records, warnings := c.Fetch(context.Background(), "tok", []string{"Ukraine", "Nowhere"}, from, to)

	if len(records) != 3 {
		t.Errorf("got %d records, want 3 from the surviving source", len(records))
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}
	if warnings[0].Source != "Nowhere" {
		t.Errorf("warning source = %q, want Nowhere", warnings[0].Source)
	}
}

func TestFetch_AllSourcesFailIsEmptyNotError(t *testing.T) {
	var calls atomic.Int64
	srv := readServer(t, &calls, map[string]string{})

	c := NewClient(srv.URL, time.Second)
	records, warnings := c.Fetch(context.Background(), "tok", []string{"A", "B"}, from, to)

	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
	if len(warnings) != 2 {
		t.Errorf("got %d warnings, want 2", len(warnings))
	}
}

func TestFetch_InnerStatusRejected(t *testing.T) {
	var calls atomic.Int64
	srv := readServer(t, &calls, map[string]string{
		"Ukraine": `{"status":500,"error":"quota exceeded","data":[]}`,
	})

	c := NewClient(srv.URL, time.Second)
	records, warnings := c.Fetch(context.Background(), "tok", []string{"Ukraine"}, from, to)

	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one", warnings)
	}
}

func TestFetch_QueryAndAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got, want := q.Get("country"), "Mali"; got != want {
			t.Errorf("country = %q, want %q", got, want)
		}
		if got, want := q.Get("event_date"), "2024-01-01|2024-01-31"; got != want {
			t.Errorf("event_date = %q, want %q", got, want)
		}
		if got, want := q.Get("event_date_where"), "BETWEEN"; got != want {
			t.Errorf("event_date_where = %q, want %q", got, want)
		}
		if got, want := q.Get("limit"), "200"; got != want {
			t.Errorf("limit = %q, want %q", got, want)
		}
		if got, want := r.Header.Get("Authorization"), "Bearer tok-xyz"; got != want {
			t.Errorf("authorization = %q, want %q", got, want)
		}
		w.Write([]byte(`{"status":200,"data":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, WithLimit(200))
	c.Fetch(context.Background(), "tok-xyz", []string{"Mali"}, from, to)
}

type mapCache struct {
	entries map[string][]byte
	puts    int
}

func (m *mapCache) Get(key string) ([]byte, bool) {
	b, ok := m.entries[key]
	return b, ok
}

func (m *mapCache) Put(key string, payload []byte) error {
	m.entries[key] = payload
	m.puts++
	return nil
}

func TestFetch_CacheSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := readServer(t, &calls, map[string]string{
		"Ukraine": envelope("UKR1"),
	})

	cache := &mapCache{entries: make(map[string][]byte)}
	c := NewClient(srv.URL, time.Second, WithCache(cache))
	ctx := context.Background()

	records, _ := c.Fetch(ctx, "tok", []string{"Ukraine"}, from, to)
	if len(records) != 1 || cache.puts != 1 {
		t.Fatalf("first fetch: %d records, %d cache puts, want 1 and 1", len(records), cache.puts)
	}

	records, _ = c.Fetch(ctx, "tok", []string{"Ukraine"}, from, to)
	if len(records) != 1 {
		t.Fatalf("second fetch: %d records, want 1", len(records))
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("network calls = %d, want 1 after cache hit", got)
	}
}

func TestFetch_ParallelPreservesOrder(t *testing.T) {
	var calls atomic.Int64
	srv := readServer(t, &calls, map[string]string{
		"A": envelope("A1"),
		"B": envelope("B1"),
		"C": envelope("C1"),
	})

	c := NewClient(srv.URL, time.Second, WithParallel(3))
	records, warnings := c.Fetch(context.Background(), "tok", []string{"A", "B", "C"}, from, to)

	if len(warnings) != 0 {
		t.Fatalf("warnings = %v, want none", warnings)
	}
	want := []string{"A1", "B1", "C1"}
	for i, id := range want {
		if records[i].EventID.String() != id {
			t.Errorf("records[%d] = %q, want %q", i, records[i].EventID, id)
		}
	}
}
