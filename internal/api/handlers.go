package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/playback"
	"github.com/starford/raido/internal/session"
)

// Handler holds API route handlers.
type Handler struct {
	svc *session.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *session.Service) *Handler {
	return &Handler{svc: svc}
}

// parseDate parses a YYYY-MM-DD value.
func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(models.DateLayout, strings.TrimSpace(s), time.UTC)
}

// FetchData handles POST /api/fetch: run one full acquisition for the given
// countries and date range.
func (h *Handler) FetchData(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	// The UI sends the country box as typed; tolerate stray whitespace and
	// empty entries from trailing commas.
	var sources []string
	for _, c := range req.Countries {
		if c = strings.TrimSpace(c); c != "" {
			sources = append(sources, c)
		}
	}
	if len(sources) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("at least one country is required"))
		return
	}

	from, err := parseDate(req.DateFrom)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("date_from must be YYYY-MM-DD"))
		return
	}
	to, err := parseDate(req.DateTo)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("date_to must be YYYY-MM-DD"))
		return
	}

	result, err := h.svc.FetchData(r.Context(), models.FetchRequest{
		Sources:  sources,
		DateFrom: from,
		DateTo:   to,
	})
	if err != nil {
		var authErr *apperr.AuthError
		switch {
		case errors.Is(err, apperr.ErrInvalidDateRange):
			writeJSON(w, http.StatusBadRequest, errorBody("end date precedes start date"))
		case errors.As(err, &authErr):
			slog.Error("fetch auth failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadGateway, errorBody("authentication with data provider failed"))
		default:
			slog.Error("fetch failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListRecords handles GET /api/records with optional ?date=, ?limit=, ?offset=.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var records models.RecordSet
	if dateStr := q.Get("date"); dateStr != "" {
		day, err := parseDate(dateStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("date must be YYYY-MM-DD"))
			return
		}
		records = h.svc.RecordsOn(day)
	} else {
		records = h.svc.Records()
	}
	total := len(records)

	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset > 0 {
		if offset > total {
			offset = total
		}
		records = records[offset:]
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	if records == nil {
		records = models.RecordSet{}
	}

	writeJSON(w, http.StatusOK, RecordListResponse{Records: records, Total: total})
}

// GetSummary handles GET /api/records/summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	if !h.svc.DataFetched() {
		// No exception for the empty state: the UI renders its no-data path.
		writeJSON(w, http.StatusOK, map[string]any{
			"no_data": true,
			"summary": models.Summary{},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"no_data": false,
		"summary": h.svc.Summary(),
	})
}

// GetPlayback handles GET /api/playback.
func (h *Handler) GetPlayback(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Playback().State())
}

// Play handles POST /api/playback/play.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Playback().Play(); err != nil {
		switch {
		case errors.Is(err, apperr.ErrPlaybackDegenerate):
			writeJSON(w, http.StatusConflict, errorBody("not enough distinct dates for playback"))
		case errors.Is(err, playback.ErrNotTemporal):
			writeJSON(w, http.StatusConflict, errorBody("temporal mode is not active"))
		default:
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Playback().State())
}

// StopPlayback handles POST /api/playback/stop.
func (h *Handler) StopPlayback(w http.ResponseWriter, r *http.Request) {
	h.svc.Playback().Stop()
	writeJSON(w, http.StatusOK, h.svc.Playback().State())
}

// SelectDate handles POST /api/playback/select.
func (h *Handler) SelectDate(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	day, err := parseDate(req.Date)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("date must be YYYY-MM-DD"))
		return
	}
	h.svc.Playback().Select(day)
	writeJSON(w, http.StatusOK, h.svc.Playback().State())
}

// SetMode handles POST /api/playback/mode.
func (h *Handler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	h.svc.Playback().SetMode(req.Temporal)
	writeJSON(w, http.StatusOK, h.svc.Playback().State())
}
