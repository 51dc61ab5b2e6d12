package httpapi

import "net/http"

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	checks, healthy := s.health.Healthy(r.Context())

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, healthResponse{Status: status, Checks: checks})
}
