package httpapi

import "net/http"

// handlePerfLatency reports recent turn stage latencies and how turns ended.
func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.LatencyReport())
}
