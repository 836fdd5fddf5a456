package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
	"github.com/mbelshaw/dailyoffice-back/internal/http/middleware"
	"github.com/mbelshaw/dailyoffice-back/internal/service"
)

var errInvalidRequest = errors.New("invalid request")

type API struct {
	orchestrator *service.Orchestrator
}

func NewAPI(orchestrator *service.Orchestrator) *API {
	return &API{orchestrator: orchestrator}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func writePDF(w http.ResponseWriter, artifact domain.Artifact, filename string, cacheStatus service.CacheStatus) {
	contentType := artifact.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Body)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if cacheStatus == service.CacheHit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Body)
}

// parseDocumentRequest maps query parameters onto a document request. Defaults
// match what the canonicalizer fills in, so an omitted parameter and its
// explicit default behave identically.
func parseDocumentRequest(r *http.Request) (domain.Request, error) {
	query := r.URL.Query()
	request := domain.Request{
		Kind:  domain.KindMorning,
		Shape: domain.ShapeSingle,
	}

	if raw := strings.TrimSpace(query.Get("kind")); raw != "" {
		request.Kind = domain.DocumentKind(strings.ToLower(raw))
	}
	if !request.Kind.Valid() {
		return domain.Request{}, fmt.Errorf("%w: unknown kind %q", errInvalidRequest, query.Get("kind"))
	}

	if parseBoolParam(query.Get("monthly")) {
		request.Shape = domain.ShapeRange
	}

	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		request.PageVariant = domain.PageVariant(strings.ToLower(raw))
		if !request.PageVariant.Valid() {
			return domain.Request{}, fmt.Errorf("%w: unknown page variant %q", errInvalidRequest, raw)
		}
	}

	request.BypassCache = parseBoolParam(query.Get("nocache"))

	switch request.Shape {
	case domain.ShapeSingle:
		if raw := strings.TrimSpace(query.Get("date")); raw != "" {
			if _, err := time.Parse("2006-01-02", raw); err != nil {
				return domain.Request{}, fmt.Errorf("%w: date must be YYYY-MM-DD", errInvalidRequest)
			}
			request.Date = raw
		}
	case domain.ShapeRange:
		if raw := strings.TrimSpace(query.Get("year")); raw != "" {
			year, err := strconv.Atoi(raw)
			if err != nil || year < 1900 || year > 2200 {
				return domain.Request{}, fmt.Errorf("%w: invalid year %q", errInvalidRequest, raw)
			}
			request.Year = year
		}
		if raw := strings.TrimSpace(query.Get("month")); raw != "" {
			month, err := strconv.Atoi(raw)
			if err != nil || month < 1 || month > 12 {
				return domain.Request{}, fmt.Errorf("%w: invalid month %q", errInvalidRequest, raw)
			}
			request.Month = month
		}
		if raw := strings.TrimSpace(query.Get("psalm_cycle")); raw != "" {
			cycle, err := strconv.Atoi(raw)
			if err != nil || (cycle != 30 && cycle != 60) {
				return domain.Request{}, fmt.Errorf("%w: psalm_cycle must be 30 or 60", errInvalidRequest)
			}
			request.PsalmCycle = cycle
		}
	}

	return request, nil
}

func parseBoolParam(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// documentFilename builds the download name offered to the browser, e.g.
// morning_prayer_2025-12-25.pdf or morning_prayer_monthly_december_2025.pdf.
func documentFilename(request domain.Request) string {
	if request.Shape == domain.ShapeRange {
		month := strings.ToLower(time.Month(request.Month).String())
		return fmt.Sprintf("%s_prayer_monthly_%s_%d.pdf", request.Kind, month, request.Year)
	}
	return fmt.Sprintf("%s_prayer_%s.pdf", request.Kind, request.Date)
}

// filenameFromKey reconstructs a download name from a cache key when the
// original request is no longer at hand (the poll path).
func filenameFromKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return "prayer.pdf"
	}
	kind, shape, period := parts[0], parts[1], parts[2]
	if shape == string(domain.ShapeRange) {
		if parsed, err := time.Parse("2006-01", period); err == nil {
			month := strings.ToLower(parsed.Month().String())
			return fmt.Sprintf("%s_prayer_monthly_%s_%d.pdf", kind, month, parsed.Year())
		}
	}
	return fmt.Sprintf("%s_prayer_%s.pdf", kind, period)
}
