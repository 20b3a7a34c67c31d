// Package testutil provides shared test helpers for the fetch cache and a
// fake upstream data provider.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/raido/internal/store"
)

// TestStore creates a temporary SQLite fetch-cache database that is
// automatically cleaned up.
func TestStore(t *testing.T, ttl time.Duration) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "raido-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name(), ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// FakeProvider is an in-process stand-in for the upstream OAuth and read
// endpoints. Configure Records per country before fetching; mark countries
// in FailSources to make their reads return HTTP 500.
type FakeProvider struct {
	Server *httptest.Server

	mu          sync.Mutex
	tokenCalls  int
	readCalls   int
	Token       string
	RejectAuth  bool
	Records     map[string][]map[string]any
	FailSources map[string]bool
}

// NewFakeProvider starts a fake provider that is shut down with the test.
func NewFakeProvider(t *testing.T) *FakeProvider {
	t.Helper()
	p := &FakeProvider{
		Token:       "test-token",
		Records:     make(map[string][]map[string]any),
		FailSources: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", p.handleToken)
	mux.HandleFunc("/api/acled/read", p.handleRead)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// TokenURL returns the fake OAuth endpoint.
func (p *FakeProvider) TokenURL() string {
	return p.Server.URL + "/oauth/token"
}

// ReadURL returns the fake read endpoint.
func (p *FakeProvider) ReadURL() string {
	return p.Server.URL + "/api/acled/read"
}

// TokenCalls reports how many token requests the provider served.
func (p *FakeProvider) TokenCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCalls
}

// ReadCalls reports how many read requests the provider served.
func (p *FakeProvider) ReadCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readCalls
}

func (p *FakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.tokenCalls++
	reject := p.RejectAuth
	token := p.Token
	p.mu.Unlock()

	if err := r.ParseForm(); err != nil || r.PostFormValue("grant_type") != "password" {
		http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
		return
	}
	if reject || r.PostFormValue("username") == "" || r.PostFormValue("password") == "" {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"access_token": token})
}

func (p *FakeProvider) handleRead(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")

	p.mu.Lock()
	p.readCalls++
	fail := p.FailSources[country]
	records := p.Records[country]
	p.mu.Unlock()

	if fail {
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": 200,
		"data":   records,
	})
}

// Raw builds one raw provider record with the fields the normalizer reads.
func Raw(eventID, date, country string, lat, lon float64, fatalities int) map[string]any {
	return map[string]any{
		"event_id_cnty":  eventID,
		"event_date":     date,
		"event_type":     "Battles",
		"sub_event_type": "Armed clash",
		"country":        country,
		"admin1":         "Region-" + country,
		"location":       "Town",
		"latitude":       lat,
		"longitude":      lon,
		"fatalities":     fatalities,
	}
}
