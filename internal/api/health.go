package api

import (
	"context"
	"net/http"
	"time"
)

type healthEntry struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status string        `json:"status"`
	Checks []healthEntry `json:"checks"`
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "Healthy", Checks: make([]healthEntry, 0, len(s.Health))}
	status := http.StatusOK
	for _, hc := range s.Health {
		entry := healthEntry{Name: hc.Name, Status: "Healthy"}
		if err := hc.Check(ctx); err != nil {
			entry.Status = "Unhealthy"
			entry.Error = err.Error()
			resp.Status = "Unhealthy"
			status = http.StatusServiceUnavailable
		}
		resp.Checks = append(resp.Checks, entry)
	}
	writeJSON(w, status, resp)
}
