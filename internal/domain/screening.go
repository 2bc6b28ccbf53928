package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Screening struct {
	ID         int
	RoomID     int
	RoomName   string
	MovieTitle string
	StartTime  time.Time
	BasePrice  decimal.Decimal
}

type Seat struct {
	ID         int
	RoomID     int
	Row        int
	Number     int
	Type       string
	ExtraPrice decimal.Decimal
}

// Price is the seat's effective price for a screening: the screening's
// base price plus the seat's extra.
func (s Seat) Price(basePrice decimal.Decimal) decimal.Decimal {
	return basePrice.Add(s.ExtraPrice)
}

type CatalogRepository interface {
	GetScreening(ctx context.Context, id int) (*Screening, error)
	GetSeatsByRoom(ctx context.Context, roomID int) ([]Seat, error)
}
