package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jobrunner/hospigeo/internal/application"
	"github.com/jobrunner/hospigeo/internal/domain"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// handleReindex runs a blue-green reindex of one entity type. The job is
// detached from the request so a client disconnect does not abort it.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	t, err := domain.ParseEntityType(mux.Vars(r)["entityType"])
	if err != nil {
		s.handleError(w, err, "Invalid entity type")
		return
	}

	summary, err := s.svc.Reindex.Reindex(context.WithoutCancel(r.Context()), t)
	if err != nil {
		status := reindexStatusFor(err)
		if status < http.StatusInternalServerError {
			s.writeFailure(w, status, err, "Reindex failed")
			return
		}
		s.logger.Error("reindex failed", "entity_type", t, "error", err)
		s.writeError(w, status, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("%s reindexed into %s", summary.EntityType, summary.Index),
		"summary": summary,
	})
}

// handleReindexStatus returns the current reindex job snapshot.
func (s *Server) handleReindexStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Reindex.Status())
}

// handleReindexHistory returns the latest recorded reindex runs.
func (s *Server) handleReindexHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := s.svc.Reindex.History(r.Context(), limit)
	if err != nil {
		s.handleError(w, err, "Failed to read reindex history")
		return
	}
	if runs == nil {
		runs = []domain.ReindexRun{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleListIndices returns stats for every physical index.
func (s *Server) handleListIndices(w http.ResponseWriter, r *http.Request) {
	indices, err := s.svc.Reindex.ListIndices(r.Context())
	if err != nil {
		s.handleError(w, err, "Failed to list indices")
		return
	}
	if indices == nil {
		indices = []domain.IndexStats{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"indices": indices,
		"count":   len(indices),
	})
}

// handleCreateIndexes ensures a spatial index on every boundary collection.
func (s *Server) handleCreateIndexes(w http.ResponseWriter, r *http.Request) {
	results := s.svc.Spatial.EnsureAll(r.Context())

	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": failed == 0,
		"results": results,
		"failed":  failed,
	})
}

// handleCreateIndex ensures a spatial index on one collection.
func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	result, err := s.svc.Spatial.EnsureSpatialIndex(r.Context(), collection)
	if err != nil {
		s.handleError(w, err, "Failed to create spatial index")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleIndexStatus reports spatial index state per boundary collection.
func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"collections": s.svc.Spatial.Status(r.Context()),
	})
}

// handleCoordinates returns the boundary containing lat/lng.
func (s *Server) handleCoordinates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	match, err := s.svc.Resolver.Resolve(r.Context(), mux.Vars(r)["boundaryType"], q.Get("lat"), q.Get("lng"))
	if err != nil {
		s.handleError(w, err, "Boundary lookup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, match)
}

// handleViewport returns the boundaries intersecting the map viewport.
func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	zoom, err := strconv.Atoi(q.Get("zoom"))
	if err != nil {
		s.handleError(w, &domain.ValidationError{
			Field:      "zoom",
			Value:      q.Get("zoom"),
			Constraint: "integer",
			Message:    "zoom must be an integer",
			Err:        domain.ErrInvalidZoom,
		}, "")
		return
	}

	sw, err := domain.ParseCoordinate(q.Get("swLat"), q.Get("swLng"))
	if err != nil {
		s.handleError(w, err, "")
		return
	}
	ne, err := domain.ParseCoordinate(q.Get("neLat"), q.Get("neLng"))
	if err != nil {
		s.handleError(w, err, "")
		return
	}

	vp, err := s.svc.Resolver.Viewport(r.Context(), zoom, domain.BoundingBox{SouthWest: sw, NorthEast: ne})
	if err != nil {
		s.handleError(w, err, "Viewport lookup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, vp)
}

// handleRepair sanitizes the geometry of one boundary collection, or of
// every level collection when the collection is "all".
func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	if collection == "all" {
		results, err := s.svc.Repair.RepairAll(r.Context())
		if err != nil {
			s.handleError(w, err, "Repair failed")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
		return
	}

	result, err := s.svc.Repair.Repair(r.Context(), collection)
	if err != nil {
		s.handleError(w, err, "Repair failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleSync handles the sync trigger endpoint.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Sync.TriggerSync(r.Context())
	if err != nil {
		if errors.Is(err, application.ErrRateLimited) {
			w.Header().Set("Retry-After", "30")
			s.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again in 30 seconds.")
			return
		}
		s.logger.Error("sync failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Sync failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.svc.Health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]any{
		"status":     boolToStatus(details.Healthy),
		"ready":      details.Ready,
		"components": details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, application.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// reindexStatusFor maps reindex failures. Only a busy job and rejected input
// are client errors; engine errors are server errors whatever they wrap.
func reindexStatusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.As(err, &verr), errors.Is(err, domain.ErrUnknownIndexType):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrReindexTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes the status for err. Client errors carry their own
// message; server errors are logged and answered with fallback.
func (s *Server) handleError(w http.ResponseWriter, err error, fallback string) {
	s.writeFailure(w, statusFor(err), err, fallback)
}

func (s *Server) writeFailure(w http.ResponseWriter, status int, err error, fallback string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeError(w, status, verr.Message)
	case status < http.StatusInternalServerError:
		s.writeError(w, status, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, status, fallback)
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
