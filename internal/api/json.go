package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"routeplanner/internal/engine"
	"routeplanner/internal/route"
	"routeplanner/internal/validate"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type       string               `json:"type"`
	Title      string               `json:"title"`
	Status     int                  `json:"status"`
	Detail     string               `json:"detail,omitempty"`
	Instance   string               `json:"instance,omitempty"`
	Violations []validate.Violation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps service errors to problem responses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	var (
		verr *validate.Error
		terr *route.TransitionError
	)
	switch {
	case errors.As(err, &verr):
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(Problem{
			Type:       "about:blank",
			Title:      "Validation failed",
			Status:     http.StatusUnprocessableEntity,
			Detail:     err.Error(),
			Instance:   r.URL.Path,
			Violations: verr.Violations,
		})
	case errors.Is(err, route.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
	case errors.As(err, &terr), errors.Is(err, route.ErrRouteClosed):
		writeProblem(w, http.StatusConflict, "Invalid transition", err.Error(), r.URL.Path)
	case errors.Is(err, route.ErrSuperseded):
		writeProblem(w, http.StatusConflict, "Route changed during optimization", err.Error(), r.URL.Path)
	case errors.Is(err, engine.ErrOracleUnavailable):
		w.Header().Set("Retry-After", "5")
		writeProblem(w, http.StatusServiceUnavailable, "Distance oracle unavailable", err.Error(), r.URL.Path)
	default:
		s.Log.Error().Err(err).Str("path", r.URL.Path).Msg(title)
		writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
	}
}

// decodeOptional decodes a JSON body that may be absent.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
