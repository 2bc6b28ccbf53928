package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusPaid      ReservationStatus = "paid"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusExpired   ReservationStatus = "expired"
)

// transitions is the reservation state machine: pending fans out to the
// three terminal states, terminal states have no outgoing edges.
var transitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPending: {
		ReservationStatusPaid,
		ReservationStatusCancelled,
		ReservationStatusExpired,
	},
}

func (s ReservationStatus) CanTransitionTo(target ReservationStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}

	return false
}

func (s ReservationStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

type Reservation struct {
	ID          uuid.UUID
	ScreeningID int
	HolderID    string
	SeatIDs     []int
	Status      ReservationStatus
	TotalPrice  decimal.Decimal
	PaymentRef  *string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
}

// NewReservation builds a pending reservation holding the given seats.
// The expiry is always set for pending reservations and cleared by the
// store once the reservation reaches a terminal state.
func NewReservation(
	screening *Screening,
	seats []Seat,
	holderID string,
	holdDuration time.Duration,
	now time.Time) Reservation {

	seatIDs := make([]int, len(seats))
	total := decimal.Zero

	for i, seat := range seats {
		seatIDs[i] = seat.ID
		total = total.Add(seat.Price(screening.BasePrice))
	}

	expiresAt := now.Add(holdDuration)

	return Reservation{
		ID:          uuid.New(),
		ScreeningID: screening.ID,
		HolderID:    holderID,
		SeatIDs:     seatIDs,
		Status:      ReservationStatusPending,
		TotalPrice:  total,
		CreatedAt:   now,
		ExpiresAt:   &expiresAt,
	}
}

// Expired reports whether the reservation's hold deadline has passed.
// Terminal reservations carry no expiry and never report true.
func (r *Reservation) Expired(now time.Time) bool {
	return r.Status == ReservationStatusPending && r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Ticket is the immutable record of one sold seat, materialized when a
// reservation transitions to paid.
type Ticket struct {
	ID            int
	ReservationID uuid.UUID
	ScreeningID   int
	SeatID        int
	Price         decimal.Decimal
	CreatedAt     time.Time
}

// StatusChange carries the side data applied together with a status
// transition. Tickets are only consulted on the transition to paid and
// are inserted in the same transaction as the status flip.
type StatusChange struct {
	PaymentRef string
	Tickets    []Ticket
}

type ReservationRepository interface {
	Create(ctx context.Context, reservation *Reservation) error
	Get(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// UpdateStatus applies the transition only if the reservation is still
	// in the expected "from" status, and reports whether it did. This
	// conditional write is the idempotent guard of the state machine:
	// concurrent callers racing for the same reservation observe exactly
	// one true result.
	UpdateStatus(
		ctx context.Context,
		id uuid.UUID,
		from, to ReservationStatus,
		change *StatusChange) (bool, error)

	FindExpiredPending(ctx context.Context, now time.Time) ([]Reservation, error)
	FindActive(ctx context.Context) ([]Reservation, error)
	GetTickets(ctx context.Context, reservationID uuid.UUID) ([]Ticket, error)
}
