package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"spacesaver/internal/catalog"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("httpapi: encode response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

// handleStatus summarizes the catalog for the /status endpoint: the
// number of entries in each state, keyed by state name.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List(r.Context(), catalog.Filter{})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts := make(map[string]int)
	for _, e := range entries {
		counts[string(e.State)]++
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"uptime_s":     s.uptimeSeconds(),
		"entry_counts": counts,
		"total":        len(entries),
	})
}

func (s *Server) uptimeSeconds() float64 {
	return time.Since(s.started).Seconds()
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := catalog.Filter{}
	if raw := r.URL.Query().Get("state"); raw != "" {
		state, ok := catalog.ParseState(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown state: "+raw)
			return
		}
		filter.State = state
		filter.HasState = true
	}
	if raw := r.URL.Query().Get("category"); raw != "" {
		filter.Category = catalog.Category(raw)
	}

	entries, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleListOne(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, found, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "unknown entry id")
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleEnqueueOne(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.store.Enqueue(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "unknown entry id")
		case errors.Is(err, catalog.ErrGone):
			s.writeError(w, http.StatusConflict, "entry is gone")
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if !ok {
		s.writeError(w, http.StatusConflict, "entry is not in a state that can be enqueued")
		return
	}
	s.store.Wake()
	s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "state": string(catalog.StatePending)})
}

func (s *Server) handleEnqueueBest(w http.ResponseWriter, r *http.Request) {
	id, ok, err := s.store.EnqueueBest(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "no SKIP/FAILED candidate available")
		return
	}
	s.store.Wake()
	s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "state": string(catalog.StatePending)})
}
