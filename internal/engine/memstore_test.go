package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cinehall/reservation-system/internal/domain"
	"github.com/google/uuid"
)

// memReservationRepo is an in-memory ReservationRepository with the same
// conditional-update semantics as the Postgres implementation. The engine
// concurrency tests need a store that really applies the transition
// guard, which a call-recording mock cannot do.
type memReservationRepo struct {
	mu           sync.Mutex
	reservations map[uuid.UUID]*domain.Reservation
	tickets      map[uuid.UUID][]domain.Ticket
	createErr    error
}

func newMemReservationRepo() *memReservationRepo {
	return &memReservationRepo{
		reservations: make(map[uuid.UUID]*domain.Reservation),
		tickets:      make(map[uuid.UUID][]domain.Ticket),
	}
}

func (s *memReservationRepo) Create(ctx context.Context, reservation *domain.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return s.createErr
	}

	clone := *reservation
	s.reservations[reservation.ID] = &clone

	return nil
}

func (s *memReservationRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reservation, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	clone := *reservation

	return &clone, nil
}

func (s *memReservationRepo) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.ReservationStatus,
	change *domain.StatusChange) (bool, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	reservation, ok := s.reservations[id]
	if !ok || reservation.Status != from {
		return false, nil
	}

	reservation.Status = to
	reservation.ExpiresAt = nil

	if change != nil {
		if change.PaymentRef != "" {
			ref := change.PaymentRef
			reservation.PaymentRef = &ref
		}
		if len(change.Tickets) > 0 {
			s.tickets[id] = append([]domain.Ticket(nil), change.Tickets...)
		}
	}

	return true, nil
}

func (s *memReservationRepo) FindExpiredPending(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []domain.Reservation
	for _, reservation := range s.reservations {
		if reservation.Status == domain.ReservationStatusPending &&
			reservation.ExpiresAt != nil && !now.Before(*reservation.ExpiresAt) {
			due = append(due, *reservation)
		}
	}

	return due, nil
}

func (s *memReservationRepo) FindActive(ctx context.Context) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []domain.Reservation
	for _, reservation := range s.reservations {
		if reservation.Status == domain.ReservationStatusPending ||
			reservation.Status == domain.ReservationStatusPaid {
			active = append(active, *reservation)
		}
	}

	return active, nil
}

func (s *memReservationRepo) GetTickets(ctx context.Context, reservationID uuid.UUID) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.Ticket(nil), s.tickets[reservationID]...), nil
}

func (s *memReservationRepo) status(id uuid.UUID) domain.ReservationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reservations[id].Status
}
