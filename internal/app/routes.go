package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
)

func (app *Application) Routes() http.Handler {
	r := chi.NewRouter()

	r.NotFound(app.notFoundResponse)

	r.Use(middleware.RequestID)
	r.Use(otelchi.Middleware("seat-reservation-api", otelchi.WithChiRoutes(r)))
	r.Use(app.requestLogger)
	r.Use(app.recoverPanic)
	r.Use(app.sessionManager.LoadAndSave)
	r.Use(app.ensureGuestSession)

	r.Get("/healthcheck", app.GetHealth)

	r.Route("/screenings/{screeningID}", func(r chi.Router) {
		r.Get("/seats", app.GetScreeningSeatsHandler)
		r.Post("/reservations", app.CreateReservationHandler)
	})

	r.Route("/reservations/{reservationID}", func(r chi.Router) {
		r.Get("/", app.GetReservationHandler)
		r.Delete("/", app.CancelReservationHandler)
		r.Post("/checkout", app.CreateCheckoutSessionHandler)
	})

	r.Route("/webhook", func(r chi.Router) {
		r.Post("/", app.StripeWebhookHandler)
	})

	return r
}
