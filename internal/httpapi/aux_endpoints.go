package httpapi

import (
	"context"
	"net/http"
	"time"
)

const readyTimeout = 800 * time.Millisecond

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

// readyz calls the storage backend's Ready with a short timeout.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.ready.Ready(ctx); err != nil {
		s.log.Warn("readiness check failed", "err", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type statsResponse struct {
	Users        int `json:"users"`
	Accounts     int `json:"accounts"`
	Transactions int `json:"transactions"`
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	st := s.stats.Stats()
	toJSON(w, http.StatusOK, statsResponse{Users: st.Users, Accounts: st.Accounts, Transactions: st.Transactions})
}
