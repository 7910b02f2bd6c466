package control

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/312-dev/eclosion-tunnel/internal/domain"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sup.Status(r.Context()))
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	subdomain := mux.Vars(r)["subdomain"]
	writeJSON(w, http.StatusOK, s.prov.Check(r.Context(), subdomain))
}

type claimRequest struct {
	Subdomain string `json:"subdomain"`
}

// claimResponse deliberately omits the credential material the control
// plane issued; it lives sealed in the state database and never crosses
// the control API.
type claimResponse struct {
	Success   bool   `json:"success"`
	Subdomain string `json:"subdomain"`
	TunnelID  string `json:"tunnelId"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Subdomain == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "subdomain is required"})
		return
	}
	res, err := s.sup.Claim(r.Context(), req.Subdomain)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Success: true, Subdomain: res.Subdomain, TunnelID: res.TunnelID})
}

func (s *Server) handleUnclaim(w http.ResponseWriter, r *http.Request) {
	if err := s.sup.Unclaim(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type startRequest struct {
	Port int `json:"port"`
}

type startResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	port := req.Port
	if port == 0 {
		port = s.cfg.LocalPort
	}
	if port <= 0 || port > 65535 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "a valid local port is required"})
		return
	}
	url, err := s.sup.Start(r.Context(), port)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{Success: true, URL: url})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.sup.Stop(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.drain.Drain(r.Context()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be between 1 and 500"})
			return
		}
		limit = n
	}
	records, err := s.store.DB().ListActionHistory(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.ActionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
