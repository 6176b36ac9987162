package httpadapter

import (
	"net/http"

	"github.com/kirillkom/library-rag/internal/core/domain"
)

const (
	msgInvalidRequest  = "invalid request"
	msgMalformedQuery  = "Your question could not be understood. Please rephrase it."
	msgNoSearch        = "No documents could be searched right now. Please try again shortly."
	msgTemporary       = "The service is temporarily unavailable. Please try again shortly."
	msgInternalFailure = "Sorry, something went wrong while answering your question."
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrAllStrategiesFailed):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicErrorMessage never carries internal detail.
func publicErrorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrMalformedQuery):
		return msgMalformedQuery
	case domain.IsKind(err, domain.ErrInvalidInput):
		return msgInvalidRequest
	case domain.IsKind(err, domain.ErrAllStrategiesFailed):
		return msgNoSearch
	case domain.IsKind(err, domain.ErrTemporary):
		return msgTemporary
	default:
		return msgInternalFailure
	}
}

// errorKind is the metrics label for a failed request.
func errorKind(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrMalformedQuery):
		return "malformed_query"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	case domain.IsKind(err, domain.ErrAllStrategiesFailed):
		return "all_strategies_failed"
	case domain.IsKind(err, domain.ErrGeneration):
		return "generation"
	case domain.IsKind(err, domain.ErrTemporary):
		return "temporary"
	default:
		return "internal"
	}
}
