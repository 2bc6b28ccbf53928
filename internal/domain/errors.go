package domain

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrRecordNotFound     = errors.New("record not found")
	ErrReservationExpired = errors.New("reservation hold has expired")
	ErrInvalidTransition  = errors.New("reservation is already in a terminal state")
	ErrForbidden          = errors.New("reservation belongs to another holder")
	ErrBusy               = errors.New("screening is busy, please retry")
	ErrNoSeatsSelected    = errors.New("at least one seat must be selected")
	ErrUnknownSeats       = errors.New("one or more seats do not belong to the screening's room")
)

// SeatsUnavailableError reports a claim conflict together with the exact
// seats that are already held, so callers can react programmatically
// instead of parsing a message.
type SeatsUnavailableError struct {
	SeatIDs []int
}

func NewSeatsUnavailableError(seatIDs []int) *SeatsUnavailableError {
	ids := make([]int, len(seatIDs))
	copy(ids, seatIDs)
	sort.Ints(ids)

	return &SeatsUnavailableError{SeatIDs: ids}
}

func (e *SeatsUnavailableError) Error() string {
	return fmt.Sprintf("seat(s) already reserved: %v", e.SeatIDs)
}
