package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/mbelshaw/dailyoffice-back/internal/service"
)

const pollRetryAfterSeconds = "5"

// Documents serves GET /v1/documents. A cached or quickly generated document
// comes back inline as PDF bytes; a monthly compilation comes back as a 202
// with a job handle to poll.
func (api *API) Documents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	request, err := parseDocumentRequest(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	outcome, err := api.orchestrator.HandleRequest(r.Context(), request)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGenerationFailed):
			writeError(w, r, http.StatusBadGateway, "generation_failed", "document generation failed")
		case errors.Is(err, service.ErrStoreUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "dependency_unavailable", "backing store unavailable")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to handle request")
		}
		return
	}

	if outcome.Job != nil {
		w.Header().Set("Retry-After", pollRetryAfterSeconds)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id":      outcome.Job.ID,
			"status":      outcome.Job.Status,
			"status_url":  "/v1/jobs/" + outcome.Job.ID,
			"accepted_at": outcome.Job.CreatedAt.UTC().Format(time.RFC3339),
		})
		return
	}

	canonical := request.Canonicalize(time.Now().UTC())
	writePDF(w, outcome.Document.Artifact, documentFilename(canonical), outcome.Document.CacheStatus)
}
