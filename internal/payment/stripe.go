package payment

import (
	"fmt"

	"github.com/cinehall/reservation-system/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// MetadataReservationID is the checkout-session metadata key carrying the
// reservation the payment settles. The webhook handler reads it back to
// know which reservation to confirm.
const MetadataReservationID = "reservation_id"

type StripePaymentProvider struct {
	failureUrl    string
	successUrl    string
	webhookSecret string
}

func NewStripePaymentProvider(failureUrl, successUrl, webhookSecret string) *StripePaymentProvider {
	return &StripePaymentProvider{
		failureUrl:    failureUrl,
		successUrl:    successUrl,
		webhookSecret: webhookSecret,
	}
}

func (s *StripePaymentProvider) CreateCheckoutSession(
	reservation *domain.Reservation,
	screening *domain.Screening,
	seats []domain.Seat) (*stripe.CheckoutSession, error) {

	var lineItems []*stripe.CheckoutSessionLineItemParams

	for _, seat := range seats {
		seatLabel := fmt.Sprintf("Row %d Seat %d", seat.Row, seat.Number)

		seatPrice := seat.Price(screening.BasePrice)
		priceCents := seatPrice.Mul(decimal.NewFromInt(100)).IntPart()

		lineItem := &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(priceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("🎬 %s - %s", screening.MovieTitle, seatLabel)),
					Description: stripe.String(fmt.Sprintf(
						"Room: %s • Screening: %s • Seat Type: %s",
						screening.RoomName,
						screening.StartTime.Format("Jan 2, 2006 15:04"),
						seat.Type,
					)),
				},
			},
			Quantity: stripe.Int64(1),
		}

		lineItems = append(lineItems, lineItem)
	}

	params := &stripe.CheckoutSessionParams{
		LineItems:  lineItems,
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.successUrl),
		CancelURL:  stripe.String(s.failureUrl),
		Metadata: map[string]string{
			MetadataReservationID: reservation.ID.String(),
		},
		ClientReferenceID: stripe.String(reservation.ID.String()),
	}

	// Stripe sessions outliving the seat hold would let buyers pay for
	// seats already reclaimed, so the session expires with the hold.
	if reservation.ExpiresAt != nil {
		params.ExpiresAt = stripe.Int64(reservation.ExpiresAt.Unix())
	}

	return session.New(params)
}

func (s *StripePaymentProvider) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signature, s.webhookSecret)
}
