package payment

import (
	"encoding/json"

	"github.com/cinehall/reservation-system/internal/domain"
	"github.com/stripe/stripe-go/v82"
)

type MockPaymentProvider struct {
	CheckoutSession *stripe.CheckoutSession
	CheckoutErr     error
	WebhookErr      error
}

func NewMockPaymentProvider() *MockPaymentProvider {
	return &MockPaymentProvider{}
}

func (m *MockPaymentProvider) CreateCheckoutSession(
	reservation *domain.Reservation,
	screening *domain.Screening,
	seats []domain.Seat) (*stripe.CheckoutSession, error) {

	if m.CheckoutErr != nil {
		return nil, m.CheckoutErr
	}

	if m.CheckoutSession != nil {
		return m.CheckoutSession, nil
	}

	return &stripe.CheckoutSession{
		ID:  "cs_test_" + reservation.ID.String(),
		URL: "https://checkout.stripe.test/" + reservation.ID.String(),
	}, nil
}

// VerifyWebhook skips signature verification and decodes the payload
// directly into an event.
func (m *MockPaymentProvider) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	if m.WebhookErr != nil {
		return stripe.Event{}, m.WebhookErr
	}

	var event stripe.Event
	err := json.Unmarshal(payload, &event)

	return event, err
}
