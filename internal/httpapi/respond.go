package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/service"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/types"
)

// maxRequestBody caps JSON bodies. Face samples arrive base64-encoded in
// the body, so this is sized for a compressed photo.
const maxRequestBody = 8 << 20

type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, envelope{Status: "error", Code: code, Message: message, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid JSON body: "+err.Error(), nil)
		return false
	}
	return true
}

// fail maps service errors onto status codes and stable error codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve      *service.ValidationError
		noEntry *service.NoEntryFoundError
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "request validation failed", ve.Fields)
	case errors.Is(err, service.ErrInvalidGate):
		writeError(w, http.StatusBadRequest, "INVALID_GATE", "Invalid gate ID", nil)
	case errors.As(err, &noEntry):
		writeError(w, http.StatusNotFound, "NO_ENTRY_FOUND", noEntry.Error(),
			map[string]string{"alertId": noEntry.AlertID, "licensePlate": noEntry.Plate})
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	case errors.Is(err, service.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "ALREADY_RESOLVED", "already resolved", nil)
	case errors.Is(err, service.ErrIntegrityConflict):
		s.logger.Error("integrity conflict", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusConflict, "INTEGRITY_CONFLICT", "conflicting records need operator review", nil)
	case errors.Is(err, service.ErrUnavailable):
		s.logger.Warn("transient failure", "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "temporarily unavailable, retry", nil)
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected server error", nil)
	}
}

// actor reads the operator identity set by the upstream auth proxy.
func actor(r *http.Request) (types.Actor, bool) {
	a := types.Actor{
		ID:   strings.TrimSpace(r.Header.Get("X-Actor-ID")),
		Name: strings.TrimSpace(r.Header.Get("X-Actor-Name")),
	}
	return a, a.ID != ""
}

// queryParser collects every malformed query parameter into one
// ValidationError.
type queryParser struct {
	r    *http.Request
	errs service.ValidationError
}

func newQueryParser(r *http.Request) *queryParser { return &queryParser{r: r} }

func (q *queryParser) str(name string) string {
	return strings.TrimSpace(q.r.URL.Query().Get(name))
}

func (q *queryParser) bad(name, msg string) {
	q.errs.Fields = append(q.errs.Fields, service.FieldError{Field: name, Message: msg})
}

func (q *queryParser) integer(name string) int {
	raw := q.str(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		q.bad(name, "must be an integer")
	}
	return n
}

func (q *queryParser) boolPtr(name string) *bool {
	raw := q.str(name)
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		q.bad(name, "must be true or false")
		return nil
	}
	return &b
}

// timePtr accepts RFC 3339 timestamps or plain dates. A plain date used as
// an upper bound covers the whole day.
func (q *queryParser) timePtr(name string, endOfDay bool) *time.Time {
	raw := q.str(name)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		q.bad(name, fmt.Sprintf("must be RFC 3339 or %s", time.DateOnly))
		return nil
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return &t
}

func (q *queryParser) page() types.PageQuery {
	return types.PageQuery{Page: q.integer("page"), Limit: q.integer("limit")}
}

func (q *queryParser) err() error {
	if len(q.errs.Fields) == 0 {
		return nil
	}
	return &q.errs
}
