package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// Handler returns the HTTP API:
//
//	POST   /api/session       open a session
//	DELETE /api/session?id=   close a session
//	POST   /api/call          perform a cursor operation
//	GET    /api/status        server status
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/call", s.handleCall)
	mux.HandleFunc("/api/status", s.handleStatus)
	return mux
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req OpenRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
				return
			}
		}
		resp, _ := s.OpenSession(r.Context(), &req)
		if resp.Error != "" {
			writeJSONStatus(w, http.StatusInternalServerError, resp)
			return
		}
		writeJSON(w, resp)
	case http.MethodDelete:
		resp, _ := s.CloseSession(r.Context(), &CloseRequest{Session: r.URL.Query().Get("id")})
		if resp.Error != "" {
			writeJSONStatus(w, http.StatusNotFound, resp)
			return
		}
		writeJSON(w, resp)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp, _ := s.Call(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"ok":       true,
		"time":     s.now().Format(time.RFC3339),
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"driver":   s.opts.Driver,
		"sessions": s.SessionCount(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
