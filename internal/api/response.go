package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/njoerd114/holocron/internal/model"
	"github.com/njoerd114/holocron/internal/store"
	syncp "github.com/njoerd114/holocron/internal/sync"
)

// Response is the envelope every endpoint returns: data on success, error on
// failure.
type Response struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error describes a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

const (
	codeBadRequest = "BAD_REQUEST"
	codeNotFound   = "NOT_FOUND"
	codeConflict   = "CONFLICT"
	codeBadGateway = "BAD_GATEWAY"
	codeInternal   = "INTERNAL_ERROR"
	codeNoMethod   = "METHOD_NOT_ALLOWED"
	codeUnhealthy  = "SERVICE_UNAVAILABLE"
)

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding error cannot be reported.
	_ = json.NewEncoder(w).Encode(resp)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Data: data})
}

func created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, Response{Data: data})
}

func fail(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, Response{Error: &Error{Code: code, Message: message, Details: details}})
}

// validationError is returned for request bodies or query parameters that
// cannot be accepted.
type validationError struct {
	msg     string
	details string
}

func (e *validationError) Error() string {
	if e.details == "" {
		return e.msg
	}
	return e.msg + ": " + e.details
}

func invalid(msg, details string) error {
	return &validationError{msg: msg, details: details}
}

// writeError maps err onto a status code and error envelope. Unexpected
// errors are logged and reported without details.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *validationError
		fe *syncp.FetchError
	)
	switch {
	case errors.As(err, &ve):
		fail(w, http.StatusBadRequest, codeBadRequest, ve.msg, ve.details)
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrUnknownKind):
		fail(w, http.StatusNotFound, codeNotFound, "Not found", err.Error())
	case errors.Is(err, store.ErrDuplicateRemoteID):
		fail(w, http.StatusConflict, codeConflict, "A record with this remote_id already exists", "")
	case errors.Is(err, store.ErrRemoteIDImmutable):
		fail(w, http.StatusBadRequest, codeBadRequest, "remote_id cannot be changed", "")
	case errors.Is(err, store.ErrUnknownLink):
		fail(w, http.StatusBadRequest, codeBadRequest, "film_ids and starship_ids must reference stored records", "")
	case errors.As(err, &fe):
		s.log.Warn("catalog fetch failed", "kind", fe.Kind, "error", fe.Err, "path", r.URL.Path)
		fail(w, http.StatusBadGateway, codeBadGateway, "Catalog unavailable", fe.Err.Error())
	default:
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		fail(w, http.StatusInternalServerError, codeInternal, "Internal server error", "")
	}
}
