// Package health serves the agent's health endpoint: a JSON report of
// every connector slot the controller holds.
package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/edgehub-net/edgehub/pkg/util"
)

// Reporter supplies the connector rows for the health report.
type Reporter func() []map[string]interface{}

// Server exposes GET /healthz over HTTP.
type Server struct {
	addr   string
	report Reporter
	srv    *http.Server
}

// NewServer creates a health server. The reporter is called on every
// request.
func NewServer(addr string, report Reporter) *Server {
	return &Server{addr: addr, report: report}
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	util.Logger.Infof("health endpoint listening on %s", s.addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the listener down.
func (s *Server) Close() error {
	if s.srv != nil {
		return s.srv.Close()
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rows := s.report()
	ready := 0
	for _, row := range rows {
		if row["state"] == "READY" {
			ready++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"connectors": rows,
		"summary": map[string]interface{}{
			"total":   len(rows),
			"ready":   ready,
			"waiting": len(rows) - ready,
		},
	})
}
