package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cinehall/reservation-system/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresReservationRepository struct {
	db *pgxpool.Pool
}

func NewPostgresReservationRepository(db *pgxpool.Pool) *PostgresReservationRepository {
	return &PostgresReservationRepository{
		db: db,
	}
}

func (p *PostgresReservationRepository) Create(ctx context.Context, reservation *domain.Reservation) error {
	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO reservations (id, screening_id, holder_id, status, total_price, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`

		_, err := tx.Exec(
			ctx,
			query,
			reservation.ID,
			reservation.ScreeningID,
			reservation.HolderID,
			reservation.Status,
			reservation.TotalPrice,
			reservation.CreatedAt,
			reservation.ExpiresAt,
		)
		if err != nil {
			return err
		}

		rows := make([][]any, 0, len(reservation.SeatIDs))
		for _, seatID := range reservation.SeatIDs {
			rows = append(rows, []any{
				reservation.ID,
				reservation.ScreeningID,
				seatID,
			})
		}

		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"reservation_seats"},
			[]string{"reservation_id", "screening_id", "seat_id"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			// The partial unique index on active claims is the durable
			// backstop of the lock table. If it fires, another process
			// holds one of the seats.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return domain.NewSeatsUnavailableError(reservation.SeatIDs)
			}

			return err
		}

		return nil
	})
}

func (p *PostgresReservationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	query := `
		SELECT r.id, r.screening_id, r.holder_id, r.status, r.total_price,
			r.payment_ref, r.created_at, r.expires_at,
			array_agg(rs.seat_id ORDER BY rs.seat_id)
		FROM reservations r
		JOIN reservation_seats rs ON rs.reservation_id = r.id
		WHERE r.id = $1
		GROUP BY r.id
	`

	reservation, err := scanReservation(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return reservation, nil
}

func (p *PostgresReservationRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.ReservationStatus,
	change *domain.StatusChange) (bool, error) {

	applied := false

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		var paymentRef *string
		if change != nil && change.PaymentRef != "" {
			paymentRef = &change.PaymentRef
		}

		query := `
			UPDATE reservations
			SET status = $3, expires_at = NULL, payment_ref = COALESCE($4, payment_ref)
			WHERE id = $1 AND status = $2
		`

		tag, err := tx.Exec(ctx, query, id, from, to, paymentRef)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return nil
		}

		applied = true

		switch to {
		case domain.ReservationStatusCancelled, domain.ReservationStatusExpired:
			query = `
				UPDATE reservation_seats
				SET released_at = NOW()
				WHERE reservation_id = $1 AND released_at IS NULL
			`
			if _, err := tx.Exec(ctx, query, id); err != nil {
				return err
			}

		case domain.ReservationStatusPaid:
			if change == nil || len(change.Tickets) == 0 {
				return nil
			}

			rows := make([][]any, 0, len(change.Tickets))
			for _, ticket := range change.Tickets {
				rows = append(rows, []any{
					ticket.ReservationID,
					ticket.ScreeningID,
					ticket.SeatID,
					ticket.Price,
					ticket.CreatedAt,
				})
			}

			_, err = tx.CopyFrom(
				ctx,
				pgx.Identifier{"tickets"},
				[]string{"reservation_id", "screening_id", "seat_id", "price", "created_at"},
				pgx.CopyFromRows(rows),
			)
			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return false, err
	}

	return applied, nil
}

func (p *PostgresReservationRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	query := `
		SELECT r.id, r.screening_id, r.holder_id, r.status, r.total_price,
			r.payment_ref, r.created_at, r.expires_at,
			array_agg(rs.seat_id ORDER BY rs.seat_id)
		FROM reservations r
		JOIN reservation_seats rs ON rs.reservation_id = r.id
		WHERE r.status = 'pending' AND r.expires_at <= $1
		GROUP BY r.id
	`

	return p.queryReservations(ctx, query, now)
}

func (p *PostgresReservationRepository) FindActive(ctx context.Context) ([]domain.Reservation, error) {
	query := `
		SELECT r.id, r.screening_id, r.holder_id, r.status, r.total_price,
			r.payment_ref, r.created_at, r.expires_at,
			array_agg(rs.seat_id ORDER BY rs.seat_id)
		FROM reservations r
		JOIN reservation_seats rs ON rs.reservation_id = r.id
		WHERE r.status IN ('pending', 'paid')
		GROUP BY r.id
	`

	return p.queryReservations(ctx, query)
}

func (p *PostgresReservationRepository) GetTickets(ctx context.Context, reservationID uuid.UUID) ([]domain.Ticket, error) {
	query := `
		SELECT id, reservation_id, screening_id, seat_id, price, created_at
		FROM tickets
		WHERE reservation_id = $1
		ORDER BY seat_id
	`

	rows, err := p.db.Query(ctx, query, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]domain.Ticket, 0)

	for rows.Next() {
		var ticket domain.Ticket

		err = rows.Scan(
			&ticket.ID,
			&ticket.ReservationID,
			&ticket.ScreeningID,
			&ticket.SeatID,
			&ticket.Price,
			&ticket.CreatedAt,
		)

		if err != nil {
			return nil, err
		}

		tickets = append(tickets, ticket)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return tickets, nil
}

func (p *PostgresReservationRepository) queryReservations(
	ctx context.Context,
	query string,
	args ...any) ([]domain.Reservation, error) {

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reservations := make([]domain.Reservation, 0)

	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}

		reservations = append(reservations, *reservation)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return reservations, nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var reservation domain.Reservation

	err := row.Scan(
		&reservation.ID,
		&reservation.ScreeningID,
		&reservation.HolderID,
		&reservation.Status,
		&reservation.TotalPrice,
		&reservation.PaymentRef,
		&reservation.CreatedAt,
		&reservation.ExpiresAt,
		&reservation.SeatIDs,
	)

	if err != nil {
		return nil, err
	}

	return &reservation, nil
}

func runInTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	var txOptions pgx.TxOptions

	tx, err := db.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}

	err = fn(tx)
	if err == nil {
		return tx.Commit(ctx)
	}

	rollbackErr := tx.Rollback(ctx)
	if rollbackErr != nil {
		return errors.Join(err, rollbackErr)
	}

	return err
}
