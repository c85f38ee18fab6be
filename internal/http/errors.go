package http

import (
	"errors"
	"net/http"

	"finances/internal/core"
	applog "finances/internal/log"
	"finances/internal/services"
	"finances/internal/storage"
)

var validationErrors = []error{
	core.ErrInvalidDate,
	core.ErrInvalidAmount,
	core.ErrNegativeAmount,
	core.ErrEmptyDescription,
	core.ErrDescriptionLong,
	core.ErrEmptyCategory,
	core.ErrEmptyKeyword,
	core.ErrEmptyName,
	services.ErrCrossBookMove,
}

func isValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeServiceError maps a service error onto a status code and writes the
// envelope. Unexpected errors are logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if details, ok := services.IsRejected(err); ok {
		UnprocessableEntityError(services.ErrImportRejected.Error(), details).Write(w)
		return
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		NotFoundError(err.Error()).Write(w)
	case errors.Is(err, services.ErrAccountNotInBook):
		ForbiddenError(err.Error()).Write(w)
	case errors.Is(err, storage.ErrDuplicateRule):
		ConflictError(storage.ErrDuplicateRule.Error()).Write(w)
	case isValidation(err):
		BadRequestError(err.Error()).Write(w)
	default:
		ctx := r.Context()
		applog.NewStructuredLogger(applog.FromContext(ctx)).
			LogError(ctx, "Request failed", err, applog.ComponentHTTP, op,
				applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()))
		InternalServerError("internal error").Write(w)
	}
}
