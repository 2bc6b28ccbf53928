package repository

import (
	"context"
	"errors"

	"github.com/cinehall/reservation-system/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresCatalogRepository struct {
	db *pgxpool.Pool
}

func NewPostgresCatalogRepository(db *pgxpool.Pool) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{
		db: db,
	}
}

func (p *PostgresCatalogRepository) GetScreening(ctx context.Context, id int) (*domain.Screening, error) {
	query := `
		SELECT s.id, s.room_id, r.name, s.movie_title, s.start_time, s.base_price
		FROM screenings s
		JOIN rooms r ON s.room_id = r.id
		WHERE s.id = $1
	`

	var screening domain.Screening

	err := p.db.QueryRow(ctx, query, id).Scan(
		&screening.ID,
		&screening.RoomID,
		&screening.RoomName,
		&screening.MovieTitle,
		&screening.StartTime,
		&screening.BasePrice,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return &screening, nil
}

func (p *PostgresCatalogRepository) GetSeatsByRoom(ctx context.Context, roomID int) ([]domain.Seat, error) {
	query := `
		SELECT id, room_id, seat_row, seat_number, seat_type, extra_price
		FROM seats
		WHERE room_id = $1
		ORDER BY seat_row, seat_number
	`

	rows, err := p.db.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seats := make([]domain.Seat, 0)

	for rows.Next() {
		var seat domain.Seat

		err = rows.Scan(
			&seat.ID,
			&seat.RoomID,
			&seat.Row,
			&seat.Number,
			&seat.Type,
			&seat.ExtraPrice,
		)

		if err != nil {
			return nil, err
		}

		seats = append(seats, seat)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return seats, nil
}
