package api

import (
	"errors"

	commonerrors "github.com/Aidin1998/watchlist_screening/common/errors"
	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/service"
	"github.com/Aidin1998/watchlist_screening/internal/screening/watchlist"
	"github.com/Aidin1998/watchlist_screening/pkg/validation"
)

// classify maps screening errors to problem details
func classify(err error, instance string) *commonerrors.ProblemDetails {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		problem := commonerrors.NewValidationError("Request validation failed", instance)
		for _, fe := range verrs {
			problem.AddValidationError(fe.Field, fe.Message, fe.Tag)
		}
		return problem
	case errors.Is(err, models.ErrNotFound):
		return commonerrors.NewNotFoundError(err.Error(), instance)
	case errors.Is(err, models.ErrAlreadyReviewed),
		errors.Is(err, models.ErrAlreadyExists):
		return commonerrors.NewConflictError(err.Error(), instance)
	case errors.Is(err, models.ErrNoUsableProviders),
		errors.Is(err, models.ErrInvalidDecision),
		errors.Is(err, models.ErrMissingReviewer),
		errors.Is(err, models.ErrInvalidRule),
		errors.Is(err, watchlist.ErrInvalidEntity),
		errors.Is(err, service.ErrUnsupportedFormat):
		return commonerrors.NewValidationError(err.Error(), instance)
	case errors.Is(err, service.ErrDispatcherStopped):
		return commonerrors.NewUnavailableError(err.Error(), instance)
	}
	return nil
}
