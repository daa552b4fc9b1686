package httpapi

import (
	"net/http"

	"github.com/ent0n29/synthdesk/internal/observability"
)

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, observability.PerfSnapshot{
			Stages:      []observability.StageStats{},
			Generations: map[string]int{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotStages())
}
