// Package adminapi serves a read-only HTTP view of the tracker store for
// support staff and dashboards.
package adminapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"customer-care/internal/analytics"
	"customer-care/internal/fallback"
	"customer-care/internal/storage"
	"customer-care/internal/tracker"
)

// SessionView is a stored session with its derived state.
type SessionView struct {
	SessionID    string          `json:"session_id"`
	Events       []tracker.Event `json:"events"`
	Slots        map[string]any  `json:"slots"`
	LatestIntent string          `json:"latest_intent,omitempty"`
	Fallbacks    int             `json:"num_fallbacks"`
	Escalated    bool            `json:"escalated"`
}

type handler struct {
	store   storage.Store
	workers int
}

// NewRouter wires the admin routes over store.
func NewRouter(store storage.Store, workers int) http.Handler {
	h := &handler{store: store, workers: workers}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(api chi.Router) {
		api.Get("/sessions", h.listSessions)
		api.Get("/sessions/{sessionID}", h.getSession)
		api.Get("/stats", h.stats)
	})
	return r
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.Keys()
	if err != nil {
		log.Printf("[adminapi] list sessions: %v", err)
		respondError(w, http.StatusServiceUnavailable, "tracker store unavailable")
		return
	}
	sort.Strings(keys)
	respondJSON(w, http.StatusOK, map[string]any{"sessions": keys, "count": len(keys)})
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	t, found, err := h.store.Retrieve(id)
	if err != nil {
		var de *tracker.DecodingError
		if errors.As(err, &de) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		log.Printf("[adminapi] retrieve %s: %v", id, err)
		respondError(w, http.StatusServiceUnavailable, "tracker store unavailable")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, NewSessionView(t))
}

// NewSessionView derives the admin view of t.
func NewSessionView(t *tracker.Tracker) SessionView {
	return SessionView{
		SessionID:    t.SessionID,
		Events:       t.Events(),
		Slots:        t.Slots(),
		LatestIntent: t.LatestIntent(),
		Fallbacks:    fallback.Count(t),
		Escalated:    fallback.Escalated(t),
	}
}

// stats accepts either ?day=YYYY-MM-DD or RFC 3339 ?since= / ?until=.
// ?format=markdown returns the text report.
func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := analytics.Build(r.Context(), h.store, win, h.workers)
	if err != nil {
		log.Printf("[adminapi] stats: %v", err)
		respondError(w, http.StatusServiceUnavailable, "tracker store unavailable")
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(st.GenerateReportSummary()))
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func parseWindow(r *http.Request) (analytics.Window, error) {
	q := r.URL.Query()
	if day := q.Get("day"); day != "" {
		d, err := time.Parse(time.DateOnly, day)
		if err != nil {
			return analytics.Window{}, errors.New("day must be YYYY-MM-DD")
		}
		return analytics.Day(d), nil
	}
	var win analytics.Window
	var err error
	if s := q.Get("since"); s != "" {
		if win.Since, err = time.Parse(time.RFC3339, s); err != nil {
			return analytics.Window{}, errors.New("since must be RFC 3339")
		}
	}
	if s := q.Get("until"); s != "" {
		if win.Until, err = time.Parse(time.RFC3339, s); err != nil {
			return analytics.Window{}, errors.New("until must be RFC 3339")
		}
	}
	return win, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
