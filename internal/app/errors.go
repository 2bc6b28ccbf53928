package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/cinehall/reservation-system/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	appvalidator "github.com/cinehall/reservation-system/internal/validator"
)

// Client-facing messages kept apart from the internal error values, so
// what we log and what we say never drift into each other.
const (
	ErrInternalServer     = "The server encountered a problem and could not process your request"
	ErrResourceNotFound   = "The requested resource not found"
	ErrSeatsConflict      = "Some of the selected seats are already reserved"
	ErrReservationExpired = "The reservation hold has expired, please select your seats again"
	ErrReservationFinal   = "The reservation is already finalized"
	ErrForbiddenAccess    = "You do not have access to this reservation"
	ErrScreeningBusy      = "The screening is busy right now, please retry"
)

type ErrorResponse struct {
	Message   string    `json:"message"`
	RequestId string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// ConflictingSeatIds is only set for seat conflicts, so clients can
	// re-render the exact seats that were lost.
	ConflictingSeatIds []int `json:"conflictingSeatIds,omitempty"`
}

type ValidationError struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

type ValidationErrorResponse struct {
	Message          string            `json:"message"`
	ValidationErrors []ValidationError `json:"validationErrors"`
}

func (app *Application) logError(r *http.Request, err error) {
	app.contextGetLogger(r).Error(err.Error())
}

// The errorResponse() method is a generic helper for sending JSON-formatted error
// messages to the client with a given status code.
func (app *Application) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := ErrorResponse{
		Message:   message,
		RequestId: middleware.GetReqID(r.Context()),
		Timestamp: time.Now(),
	}

	err := app.writeJSON(w, status, resp, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(500)
	}
}

func (app *Application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logError(r, err)

	app.errorResponse(w, r, http.StatusInternalServerError, ErrInternalServer)
}

func (app *Application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, ErrResourceNotFound)
}

func (app *Application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (app *Application) failedValidationResponse(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		app.serverErrorResponse(w, r, err)
		return
	}

	resp := ValidationErrorResponse{
		Message: "The request contains invalid fields",
	}

	for _, fieldError := range validationErrors {
		resp.ValidationErrors = append(resp.ValidationErrors, ValidationError{
			Field: fieldError.Field(),
			Issue: appvalidator.ValidationMessage(fieldError),
		})
	}

	err = app.writeJSON(w, http.StatusUnprocessableEntity, resp, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(500)
	}
}

// engineErrorResponse maps the engine's error kinds onto HTTP statuses.
// Everything the engine can return deliberately lands here, so handlers
// stay a one-liner on their failure paths.
func (app *Application) engineErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var seatsUnavailable *domain.SeatsUnavailableError

	switch {
	case errors.As(err, &seatsUnavailable):
		resp := ErrorResponse{
			Message:            ErrSeatsConflict,
			RequestId:          middleware.GetReqID(r.Context()),
			Timestamp:          time.Now(),
			ConflictingSeatIds: seatsUnavailable.SeatIDs,
		}
		if err := app.writeJSON(w, http.StatusConflict, resp, nil); err != nil {
			app.logError(r, err)
			w.WriteHeader(500)
		}

	case errors.Is(err, domain.ErrRecordNotFound):
		app.notFoundResponse(w, r)

	case errors.Is(err, domain.ErrReservationExpired):
		app.errorResponse(w, r, http.StatusGone, ErrReservationExpired)

	case errors.Is(err, domain.ErrInvalidTransition):
		app.errorResponse(w, r, http.StatusConflict, ErrReservationFinal)

	case errors.Is(err, domain.ErrForbidden):
		app.errorResponse(w, r, http.StatusForbidden, ErrForbiddenAccess)

	case errors.Is(err, domain.ErrBusy):
		w.Header().Set("Retry-After", "1")
		app.errorResponse(w, r, http.StatusServiceUnavailable, ErrScreeningBusy)

	case errors.Is(err, domain.ErrNoSeatsSelected), errors.Is(err, domain.ErrUnknownSeats):
		app.badRequestResponse(w, r, err)

	default:
		app.serverErrorResponse(w, r, err)
	}
}
