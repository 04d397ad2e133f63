package httpadapter

import (
	"net/http"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrMissingVariable),
		domain.IsKind(err, domain.ErrInvalidTemplate),
		domain.IsKind(err, domain.ErrMissingExamples):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnknownMethod),
		domain.IsKind(err, domain.ErrUnknownPrompt),
		domain.IsKind(err, domain.ErrRunNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrUnauthorized):
		// Upstream credentials were rejected; the caller did nothing wrong.
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrSearchNotEnabled),
		domain.IsKind(err, domain.ErrQueueNotEnabled),
		domain.IsKind(err, domain.ErrStoreNotEnabled),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
