package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// StatusFor returns the HTTP status a game error code maps to
func StatusFor(code model.ErrorCode) int {
	switch code {
	case model.CodeGameNotFound, model.CodePlayerNotFound, model.CodeConnectionNotFound:
		return http.StatusNotFound
	case model.CodeGameAlreadyStarted, model.CodeGameNotStarted, model.CodeGameFull:
		return http.StatusConflict
	case model.CodeNotGameCreator:
		return http.StatusForbidden
	case model.CodeInvalidPlayerName, model.CodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	var me *model.Error
	if errors.As(err, &me) {
		return &httpError{StatusFor(me.Code), APIError{string(me.Code), me.Message}}
	}

	return &httpError{http.StatusInternalServerError, APIError{string(model.CodeInternalError), "Internal server error"}}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{string(model.CodeInvalidRequest), message}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{string(model.CodeInternalError), "Internal server error"}}
}
