package integration_test

import (
	"log/slog"
	"os"

	"github.com/cinehall/reservation-system/internal/app"
	"github.com/cinehall/reservation-system/internal/mailer"
	"github.com/cinehall/reservation-system/internal/payment"
	"github.com/cinehall/reservation-system/internal/repository"
	appvalidator "github.com/cinehall/reservation-system/internal/validator"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TestApp struct {
	App    *app.Application
	DB     *pgxpool.Pool
	Mailer *mailer.MockMailer
}

func newTestApp(cfg app.Config) (*TestApp, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	validator := appvalidator.NewValidator()
	mockMailer := mailer.NewMockMailer()

	db, err := app.NewDatabasePool(cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := app.NewRedisClient(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	sessionManager := app.NewSessionManager(redisClient)

	catalogRepo := repository.NewPostgresCatalogRepository(db)
	reservationRepo := repository.NewPostgresReservationRepository(db)

	paymentProvider := payment.NewMockPaymentProvider()

	application, err := app.NewApp(
		cfg,
		logger,
		db,
		redisClient,
		validator,
		mockMailer,
		sessionManager,
		catalogRepo,
		reservationRepo,
		paymentProvider,
	)
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, err
	}

	return &TestApp{
		App:    application,
		DB:     db,
		Mailer: mockMailer,
	}, nil
}
