package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cinehall/reservation-system/internal/domain"
	"github.com/google/uuid"
)

// Engine coordinates the lock table, the reservation state machine, and
// the durable stores. All operations that mutate a screening's claims run
// inside that screening's critical section, so the claim check and the
// store write appear atomic to concurrent callers.
type Engine struct {
	catalog      domain.CatalogRepository
	reservations domain.ReservationRepository
	locks        *LockTable
	logger       *slog.Logger
	holdDuration time.Duration
	now          func() time.Time
}

func New(
	catalog domain.CatalogRepository,
	reservations domain.ReservationRepository,
	locks *LockTable,
	logger *slog.Logger,
	holdDuration time.Duration) *Engine {

	return &Engine{
		catalog:      catalog,
		reservations: reservations,
		locks:        locks,
		logger:       logger,
		holdDuration: holdDuration,
		now:          time.Now,
	}
}

// Rebuild reconstructs the lock table from non-terminal reservations.
// It must complete before the engine serves any claim.
func (e *Engine) Rebuild(ctx context.Context) error {
	active, err := e.reservations.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active reservations: %w", err)
	}

	e.locks.Rebuild(active)
	e.logger.Info("lock table rebuilt", "active_reservations", len(active))

	return nil
}

// CreateReservation claims the requested seats and persists a pending
// reservation with an expiry of now + hold duration. The claim and the
// persisted record are atomic from the caller's view: when the store
// write fails the claim is rolled back before the error surfaces.
func (e *Engine) CreateReservation(
	ctx context.Context,
	screeningID int,
	seatIDs []int,
	holderID string) (*domain.Reservation, error) {

	if len(seatIDs) == 0 {
		return nil, domain.ErrNoSeatsSelected
	}

	seatIDs = dedupe(seatIDs)

	screening, err := e.catalog.GetScreening(ctx, screeningID)
	if err != nil {
		return nil, err
	}

	seats, err := e.seatsForScreening(ctx, screening, seatIDs)
	if err != nil {
		return nil, err
	}

	release, err := e.locks.Acquire(ctx, screeningID)
	if err != nil {
		return nil, err
	}
	defer release()

	reservation := domain.NewReservation(screening, seats, holderID, e.holdDuration, e.now())

	if conflicts := e.locks.TryClaim(screeningID, seatIDs, reservation.ID); len(conflicts) > 0 {
		return nil, domain.NewSeatsUnavailableError(conflicts)
	}

	err = e.reservations.Create(ctx, &reservation)
	if err != nil {
		e.locks.Release(screeningID, seatIDs)
		return nil, fmt.Errorf("failed to persist reservation: %w", err)
	}

	return &reservation, nil
}

// ConfirmPayment drives the pending reservation to paid and materializes
// one ticket per seat, priced as recorded at claim time. A confirmation
// that arrives after the hold deadline fails with ErrReservationExpired;
// if the sweeper has not reclaimed the seats yet, they are released here
// so the error path never leaves a dangling claim.
func (e *Engine) ConfirmPayment(
	ctx context.Context,
	reservationID uuid.UUID,
	paymentRef string) (*domain.Reservation, error) {

	reservation, err := e.reservations.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	release, err := e.locks.Acquire(ctx, reservation.ScreeningID)
	if err != nil {
		return nil, err
	}
	defer release()

	if reservation.Status != domain.ReservationStatusPending {
		return nil, terminalStatusError(reservation.Status)
	}

	now := e.now()

	if reservation.Expired(now) {
		if err := e.expireLocked(ctx, reservation); err != nil {
			return nil, err
		}
		return nil, domain.ErrReservationExpired
	}

	tickets, err := e.buildTickets(ctx, reservation, now)
	if err != nil {
		return nil, err
	}

	change := &domain.StatusChange{PaymentRef: paymentRef, Tickets: tickets}

	applied, err := e.reservations.UpdateStatus(
		ctx,
		reservation.ID,
		domain.ReservationStatusPending,
		domain.ReservationStatusPaid,
		change,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm payment: %w", err)
	}

	if !applied {
		// Lost the guard to a concurrent transition; report what won.
		current, err := e.reservations.Get(ctx, reservation.ID)
		if err != nil {
			return nil, err
		}
		return nil, terminalStatusError(current.Status)
	}

	reservation.Status = domain.ReservationStatusPaid
	reservation.PaymentRef = &paymentRef
	reservation.ExpiresAt = nil

	return reservation, nil
}

// CancelReservation releases the holder's claim. Cancelling an already
// cancelled reservation is a no-op success, so retry-safe clients can
// repeat the call freely.
func (e *Engine) CancelReservation(ctx context.Context, reservationID uuid.UUID, holderID string) error {
	reservation, err := e.reservations.Get(ctx, reservationID)
	if err != nil {
		return err
	}

	if reservation.HolderID != holderID {
		return domain.ErrForbidden
	}

	release, err := e.locks.Acquire(ctx, reservation.ScreeningID)
	if err != nil {
		return err
	}
	defer release()

	if reservation.Status == domain.ReservationStatusCancelled {
		return nil
	}

	if reservation.Status != domain.ReservationStatusPending {
		return terminalStatusError(reservation.Status)
	}

	applied, err := e.reservations.UpdateStatus(
		ctx,
		reservation.ID,
		domain.ReservationStatusPending,
		domain.ReservationStatusCancelled,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel reservation: %w", err)
	}

	if !applied {
		current, err := e.reservations.Get(ctx, reservation.ID)
		if err != nil {
			return err
		}
		if current.Status == domain.ReservationStatusCancelled {
			return nil
		}
		return terminalStatusError(current.Status)
	}

	e.locks.Release(reservation.ScreeningID, reservation.SeatIDs)

	return nil
}

// SweepExpired reclaims the seats of every pending reservation whose hold
// deadline has passed. A failure on one reservation is logged and does
// not abort the rest of the batch.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	due, err := e.reservations.FindExpiredPending(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("failed to find expired reservations: %w", err)
	}

	expired := 0

	for i := range due {
		reservation := &due[i]

		err := e.expireOne(ctx, reservation)
		if err != nil {
			e.logger.Error(
				"failed to expire reservation",
				"reservation_id", reservation.ID,
				"screening_id", reservation.ScreeningID,
				"error", err,
			)
			continue
		}

		expired++
	}

	return expired, nil
}

func (e *Engine) expireOne(ctx context.Context, reservation *domain.Reservation) error {
	release, err := e.locks.Acquire(ctx, reservation.ScreeningID)
	if err != nil {
		return err
	}
	defer release()

	return e.expireLocked(ctx, reservation)
}

// expireLocked drives the pending -> expired transition and releases the
// seats. The caller must hold the screening's critical section. Losing
// the conditional update to a concurrent payment or cancel is fine: the
// winner already decided the reservation's fate, so the seats are left
// alone and no error is raised.
func (e *Engine) expireLocked(ctx context.Context, reservation *domain.Reservation) error {
	applied, err := e.reservations.UpdateStatus(
		ctx,
		reservation.ID,
		domain.ReservationStatusPending,
		domain.ReservationStatusExpired,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to expire reservation: %w", err)
	}

	if applied {
		e.locks.Release(reservation.ScreeningID, reservation.SeatIDs)
	}

	return nil
}

// SeatState pairs a seat with its current availability for a screening.
type SeatState struct {
	Seat      domain.Seat
	Available bool
}

// ScreeningSeats returns the screening's seat map with availability
// derived from the lock table, which covers both pending and paid claims.
func (e *Engine) ScreeningSeats(ctx context.Context, screeningID int) (*domain.Screening, []SeatState, error) {
	screening, err := e.catalog.GetScreening(ctx, screeningID)
	if err != nil {
		return nil, nil, err
	}

	seats, err := e.catalog.GetSeatsByRoom(ctx, screening.RoomID)
	if err != nil {
		return nil, nil, err
	}

	claimed := e.locks.ClaimedSeats(screeningID)

	states := make([]SeatState, len(seats))
	for i, seat := range seats {
		_, held := claimed[seat.ID]
		states[i] = SeatState{Seat: seat, Available: !held}
	}

	return screening, states, nil
}

// GetReservation loads a reservation, enforcing that only its holder may
// read it.
func (e *Engine) GetReservation(ctx context.Context, reservationID uuid.UUID, holderID string) (*domain.Reservation, error) {
	reservation, err := e.reservations.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	if reservation.HolderID != holderID {
		return nil, domain.ErrForbidden
	}

	return reservation, nil
}

func (e *Engine) seatsForScreening(
	ctx context.Context,
	screening *domain.Screening,
	seatIDs []int) ([]domain.Seat, error) {

	roomSeats, err := e.catalog.GetSeatsByRoom(ctx, screening.RoomID)
	if err != nil {
		return nil, err
	}

	byID := make(map[int]domain.Seat, len(roomSeats))
	for _, seat := range roomSeats {
		byID[seat.ID] = seat
	}

	seats := make([]domain.Seat, 0, len(seatIDs))
	for _, seatID := range seatIDs {
		seat, ok := byID[seatID]
		if !ok {
			return nil, domain.ErrUnknownSeats
		}
		seats = append(seats, seat)
	}

	return seats, nil
}

func (e *Engine) buildTickets(
	ctx context.Context,
	reservation *domain.Reservation,
	now time.Time) ([]domain.Ticket, error) {

	screening, err := e.catalog.GetScreening(ctx, reservation.ScreeningID)
	if err != nil {
		return nil, err
	}

	seats, err := e.seatsForScreening(ctx, screening, reservation.SeatIDs)
	if err != nil {
		return nil, err
	}

	tickets := make([]domain.Ticket, len(seats))
	for i, seat := range seats {
		tickets[i] = domain.Ticket{
			ReservationID: reservation.ID,
			ScreeningID:   reservation.ScreeningID,
			SeatID:        seat.ID,
			Price:         seat.Price(screening.BasePrice),
			CreatedAt:     now,
		}
	}

	return tickets, nil
}

func terminalStatusError(status domain.ReservationStatus) error {
	if status == domain.ReservationStatusExpired {
		return domain.ErrReservationExpired
	}

	return domain.ErrInvalidTransition
}

func dedupe(seatIDs []int) []int {
	seen := make(map[int]bool, len(seatIDs))
	out := make([]int, 0, len(seatIDs))

	for _, id := range seatIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}

	return out
}
