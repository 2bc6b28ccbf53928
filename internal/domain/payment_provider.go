package domain

import "github.com/stripe/stripe-go/v82"

type PaymentProvider interface {
	CreateCheckoutSession(reservation *Reservation, screening *Screening, seats []Seat) (*stripe.CheckoutSession, error)
	VerifyWebhook(payload []byte, signature string) (stripe.Event, error)
}
