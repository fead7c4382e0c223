package api

import (
	"errors"
	"net/http"

	"github.com/organization-ai-projects/ai-search/internal/blob"
	"github.com/organization-ai-projects/ai-search/internal/repo"
	"github.com/organization-ai-projects/ai-search/internal/scenario"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg   string
	param string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(param, msg string) error {
	return invalidRequestError{msg: msg, param: param}
}

// classify maps a domain error to an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, repo.ErrCommitNotFound),
		errors.Is(err, repo.ErrParamMissing),
		errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, repo.ErrShapeMismatch),
		errors.Is(err, scenario.ErrNoCandidates),
		errors.Is(err, scenario.ErrUnsupportedInput):
		return http.StatusBadRequest, "invalid_request_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
