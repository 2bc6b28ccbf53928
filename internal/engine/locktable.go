package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cinehall/reservation-system/internal/domain"
	"github.com/google/uuid"
)

// LockTable is the authoritative in-memory answer to "which seats of a
// screening are currently claimed, and by which reservation". It is a
// derived view over non-terminal reservations: the durable store stays
// the source of truth, and the table is rebuilt from it on startup.
//
// Each screening has its own claim map and its own critical section, so
// operations on different screenings never block each other.
type LockTable struct {
	mu          sync.RWMutex
	screenings  map[int]*screeningLocks
	waitTimeout time.Duration
}

type screeningLocks struct {
	section chan struct{}     // per-screening critical section
	mu      sync.Mutex        // guards claims
	claims  map[int]uuid.UUID // seat ID -> holding reservation ID
}

func NewLockTable(waitTimeout time.Duration) *LockTable {
	return &LockTable{
		screenings:  make(map[int]*screeningLocks),
		waitTimeout: waitTimeout,
	}
}

func (t *LockTable) forScreening(screeningID int) *screeningLocks {
	t.mu.RLock()
	sl, ok := t.screenings[screeningID]
	t.mu.RUnlock()

	if ok {
		return sl
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if sl, ok = t.screenings[screeningID]; ok {
		return sl
	}

	sl = &screeningLocks{
		section: make(chan struct{}, 1),
		claims:  make(map[int]uuid.UUID),
	}
	t.screenings[screeningID] = sl

	return sl
}

// Acquire enters the screening's critical section and returns the
// function that leaves it. The wait is bounded: once the configured
// timeout elapses the call fails with ErrBusy so a booking request never
// hangs on a contended screening.
func (t *LockTable) Acquire(ctx context.Context, screeningID int) (func(), error) {
	sl := t.forScreening(screeningID)

	timer := time.NewTimer(t.waitTimeout)
	defer timer.Stop()

	select {
	case sl.section <- struct{}{}:
		return func() { <-sl.section }, nil
	case <-timer.C:
		return nil, domain.ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryClaim claims every requested seat for the reservation, or none of
// them. On overlap it returns the seats that are already held so the
// caller can surface a precise conflict.
func (t *LockTable) TryClaim(screeningID int, seatIDs []int, reservationID uuid.UUID) []int {
	sl := t.forScreening(screeningID)

	sl.mu.Lock()
	defer sl.mu.Unlock()

	var conflicts []int
	for _, seatID := range seatIDs {
		if holder, held := sl.claims[seatID]; held && holder != reservationID {
			conflicts = append(conflicts, seatID)
		}
	}

	if len(conflicts) > 0 {
		return conflicts
	}

	for _, seatID := range seatIDs {
		sl.claims[seatID] = reservationID
	}

	return nil
}

// Release frees the given seats regardless of their current holder.
// Releasing an already-free seat is a no-op, which makes the call safe
// to repeat from cancellation, expiry, and rollback paths.
func (t *LockTable) Release(screeningID int, seatIDs []int) {
	sl := t.forScreening(screeningID)

	sl.mu.Lock()
	defer sl.mu.Unlock()

	for _, seatID := range seatIDs {
		delete(sl.claims, seatID)
	}
}

// ClaimedSeats returns a snapshot of the screening's current claims.
func (t *LockTable) ClaimedSeats(screeningID int) map[int]uuid.UUID {
	sl := t.forScreening(screeningID)

	sl.mu.Lock()
	defer sl.mu.Unlock()

	snapshot := make(map[int]uuid.UUID, len(sl.claims))
	for seatID, holder := range sl.claims {
		snapshot[seatID] = holder
	}

	return snapshot
}

// Rebuild reconstructs the table from non-terminal reservations. It runs
// once at startup, before the engine serves any claim, so a restart
// cannot double-book seats that were held when the process went down.
func (t *LockTable) Rebuild(reservations []domain.Reservation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.screenings = make(map[int]*screeningLocks)

	for _, r := range reservations {
		sl, ok := t.screenings[r.ScreeningID]
		if !ok {
			sl = &screeningLocks{
				section: make(chan struct{}, 1),
				claims:  make(map[int]uuid.UUID),
			}
			t.screenings[r.ScreeningID] = sl
		}

		for _, seatID := range r.SeatIDs {
			sl.claims[seatID] = r.ID
		}
	}
}
