package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
	"github.com/mbelshaw/dailyoffice-back/internal/service"
)

// JobStatus serves GET /v1/jobs/{id}. Completed jobs stream the finished PDF;
// everything else reports the job record as JSON.
func (api *API) JobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	jobID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/jobs/"))
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id is required")
		return
	}

	outcome, err := api.orchestrator.Poll(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownJob):
			writeError(w, r, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, service.ErrResultEvicted):
			writeError(w, r, http.StatusGone, "result_evicted", "job completed but its document has expired; request it again")
		case errors.Is(err, service.ErrStoreUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "dependency_unavailable", "backing store unavailable")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load job")
		}
		return
	}

	job := outcome.Job
	if job.Status == domain.JobStatusCompleted && outcome.Artifact != nil {
		writePDF(w, *outcome.Artifact, filenameFromKey(job.ResultKey), service.CacheHit)
		return
	}

	response := map[string]any{
		"job_id":     job.ID,
		"status":     job.Status,
		"updated_at": job.UpdatedAt,
	}
	if strings.TrimSpace(job.ErrorMessage) != "" {
		response["error"] = map[string]any{
			"code":    "processing_error",
			"message": job.ErrorMessage,
		}
	}
	if !job.Status.Terminal() {
		w.Header().Set("Retry-After", pollRetryAfterSeconds)
	}
	writeJSON(w, http.StatusOK, response)
}
