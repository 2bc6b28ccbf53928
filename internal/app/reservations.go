package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cinehall/reservation-system/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateReservationRequest struct {
	SeatIdList []int `json:"seatIdList" validate:"required,min=1,dive,gt=0"`
}

type ReservationResponse struct {
	Id          string           `json:"id"`
	ScreeningId int              `json:"screeningId"`
	SeatIdList  []int            `json:"seatIdList"`
	Status      string           `json:"status"`
	TotalPrice  decimal.Decimal  `json:"totalPrice"`
	CreatedAt   time.Time        `json:"createdAt"`
	ExpiresAt   *time.Time       `json:"expiresAt,omitempty"`
	Tickets     []TicketResponse `json:"tickets,omitempty"`
}

type TicketResponse struct {
	SeatId int             `json:"seatId"`
	Price  decimal.Decimal `json:"price"`
}

func (app *Application) CreateReservationHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	screeningID, err := app.readIntParam(r, "screeningID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input CreateReservationRequest

	err = app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	reservation, err := app.engine.CreateReservation(r.Context(), screeningID, input.SeatIdList, app.holderID(r))
	if err != nil {
		logger.Warn("reservation attempt failed", "screening_id", screeningID, "error", err)
		app.engineErrorResponse(w, r, err)
		return
	}

	logger.Info(
		"reservation created",
		"reservation_id", reservation.ID,
		"screening_id", screeningID,
		"seats", len(reservation.SeatIDs),
	)

	err = app.writeJSON(w, http.StatusCreated, toReservationResponse(reservation, nil), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetReservationHandler(w http.ResponseWriter, r *http.Request) {
	reservationID, err := app.readReservationIDParam(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	reservation, err := app.engine.GetReservation(r.Context(), reservationID, app.holderID(r))
	if err != nil {
		app.engineErrorResponse(w, r, err)
		return
	}

	var tickets []domain.Ticket
	if reservation.Status == domain.ReservationStatusPaid {
		tickets, err = app.reservationRepo.GetTickets(r.Context(), reservation.ID)
		if err != nil {
			app.serverErrorResponse(w, r, err)
			return
		}
	}

	err = app.writeJSON(w, http.StatusOK, toReservationResponse(reservation, tickets), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) CancelReservationHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	reservationID, err := app.readReservationIDParam(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.engine.CancelReservation(r.Context(), reservationID, app.holderID(r))
	if err != nil {
		app.engineErrorResponse(w, r, err)
		return
	}

	logger.Info("reservation cancelled", "reservation_id", reservationID)

	w.WriteHeader(http.StatusNoContent)
}

func (app *Application) readReservationIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "reservationID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid reservation ID")
	}

	return id, nil
}

func toReservationResponse(reservation *domain.Reservation, tickets []domain.Ticket) ReservationResponse {
	resp := ReservationResponse{
		Id:          reservation.ID.String(),
		ScreeningId: reservation.ScreeningID,
		SeatIdList:  reservation.SeatIDs,
		Status:      string(reservation.Status),
		TotalPrice:  reservation.TotalPrice,
		CreatedAt:   reservation.CreatedAt,
		ExpiresAt:   reservation.ExpiresAt,
	}

	for _, ticket := range tickets {
		resp.Tickets = append(resp.Tickets, TicketResponse{
			SeatId: ticket.SeatID,
			Price:  ticket.Price,
		})
	}

	return resp
}
