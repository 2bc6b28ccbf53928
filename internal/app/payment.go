package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cinehall/reservation-system/internal/domain"
	"github.com/cinehall/reservation-system/internal/payment"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
)

type CheckoutSessionResponse struct {
	RedirectUrl string `json:"redirectUrl"`
}

// CreateCheckoutSessionHandler opens a Stripe checkout session for a
// pending reservation. The session inherits the reservation's expiry, so
// Stripe stops accepting the payment when the hold lapses.
func (app *Application) CreateCheckoutSessionHandler(w http.ResponseWriter, r *http.Request) {
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

	if reservation.Status != domain.ReservationStatusPending {
		app.engineErrorResponse(w, r, domain.ErrInvalidTransition)
		return
	}

	screening, err := app.catalogRepo.GetScreening(r.Context(), reservation.ScreeningID)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	seats, err := app.reservationSeats(r, screening, reservation)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	checkoutSession, err := app.paymentProvider.CreateCheckoutSession(reservation, screening, seats)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	resp := CheckoutSessionResponse{
		RedirectUrl: checkoutSession.URL,
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// StripeWebhookHandler consumes the signed checkout.session.completed
// event; the verified event is the payment proof that drives the
// reservation to paid. Benign race losses (the sweeper expired the
// reservation first) are acknowledged with 200 so Stripe does not retry
// an outcome that will never change.
func (app *Application) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	r.Body = http.MaxBytesReader(w, r.Body, 65536)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	event, err := app.paymentProvider.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		logger.Warn("webhook signature verification failed", "error", err)
		app.badRequestResponse(w, r, err)
		return
	}

	if event.Type != "checkout.session.completed" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var checkoutSession stripe.CheckoutSession
	err = json.Unmarshal(event.Data.Raw, &checkoutSession)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	reservationID, err := uuid.Parse(checkoutSession.Metadata[payment.MetadataReservationID])
	if err != nil {
		logger.Error("webhook event carries no reservation id", "event_id", event.ID)
		app.badRequestResponse(w, r, err)
		return
	}

	reservation, err := app.engine.ConfirmPayment(r.Context(), reservationID, checkoutSession.ID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrReservationExpired), errors.Is(err, domain.ErrInvalidTransition):
			logger.Warn(
				"payment arrived for a finalized reservation",
				"reservation_id", reservationID,
				"error", err,
			)
			w.WriteHeader(http.StatusOK)

		default:
			app.serverErrorResponse(w, r, err)
		}

		return
	}

	logger.Info("payment confirmed", "reservation_id", reservation.ID)

	app.sendConfirmationEmail(r, reservation, &checkoutSession)

	w.WriteHeader(http.StatusOK)
}

func (app *Application) sendConfirmationEmail(
	r *http.Request,
	reservation *domain.Reservation,
	checkoutSession *stripe.CheckoutSession) {

	if checkoutSession.CustomerDetails == nil || checkoutSession.CustomerDetails.Email == "" {
		return
	}

	recipient := checkoutSession.CustomerDetails.Email
	logger := app.contextGetLogger(r)

	screening, err := app.catalogRepo.GetScreening(r.Context(), reservation.ScreeningID)
	if err != nil {
		logger.Error("failed to load screening for confirmation email", "error", err)
		return
	}

	data := map[string]any{
		"ReservationID": reservation.ID.String(),
		"MovieTitle":    screening.MovieTitle,
		"RoomName":      screening.RoomName,
		"StartTime":     screening.StartTime.Format("Jan 2, 2006 15:04"),
		"SeatCount":     len(reservation.SeatIDs),
		"TotalPrice":    reservation.TotalPrice.StringFixed(2),
	}

	app.background(func() {
		err := app.mailer.Send(recipient, "reservation_confirmed.tmpl", data)
		if err != nil {
			app.logger.Error("failed to send confirmation email", "error", err)
		}
	})
}

func (app *Application) reservationSeats(
	r *http.Request,
	screening *domain.Screening,
	reservation *domain.Reservation) ([]domain.Seat, error) {

	roomSeats, err := app.catalogRepo.GetSeatsByRoom(r.Context(), screening.RoomID)
	if err != nil {
		return nil, err
	}

	byID := make(map[int]domain.Seat, len(roomSeats))
	for _, seat := range roomSeats {
		byID[seat.ID] = seat
	}

	seats := make([]domain.Seat, 0, len(reservation.SeatIDs))
	for _, seatID := range reservation.SeatIDs {
		if seat, ok := byID[seatID]; ok {
			seats = append(seats, seat)
		}
	}

	return seats, nil
}
