package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/goredisstore"
	"github.com/alexedwards/scs/v2"
	"github.com/cinehall/reservation-system/internal/domain"
	"github.com/cinehall/reservation-system/internal/engine"
	"github.com/cinehall/reservation-system/internal/mailer"
	"github.com/cinehall/reservation-system/internal/payment"
	"github.com/cinehall/reservation-system/internal/repository"
	appvalidator "github.com/cinehall/reservation-system/internal/validator"
	"github.com/cinehall/reservation-system/internal/vcs"
	"github.com/exaring/otelpgx"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v82"
)

var (
	version = vcs.Version()
)

type Application struct {
	config         Config
	logger         *slog.Logger
	db             *pgxpool.Pool
	redis          redis.UniversalClient
	validator      *validator.Validate
	mailer         mailer.Mailer
	sessionManager *scs.SessionManager

	catalogRepo     domain.CatalogRepository
	reservationRepo domain.ReservationRepository
	paymentProvider domain.PaymentProvider

	engine  *engine.Engine
	sweeper *engine.Sweeper
}

type Config struct {
	Port             int
	Env              string
	OtelCollectorUrl string
	DB               DBConfig
	Redis            RedisConfig
	SMTP             SMTPConfig
	Stripe           StripeConfig
	Engine           EngineConfig
}

type DBConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleTime  time.Duration
}

type RedisConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessUrl    string
	FailureUrl    string
}

type EngineConfig struct {
	HoldDuration    time.Duration
	SweepInterval   time.Duration
	LockWaitTimeout time.Duration
}

// Validate rejects configurations that would let seats leak: the sweep
// interval bounds how long an expired hold can outlive its deadline, so
// it must stay strictly below the hold duration.
func (c Config) Validate() error {
	if c.Engine.HoldDuration <= 0 {
		return fmt.Errorf("hold duration must be positive, got %s", c.Engine.HoldDuration)
	}

	if c.Engine.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.Engine.SweepInterval)
	}

	if c.Engine.SweepInterval >= c.Engine.HoldDuration {
		return fmt.Errorf(
			"sweep interval (%s) must be shorter than the hold duration (%s)",
			c.Engine.SweepInterval,
			c.Engine.HoldDuration,
		)
	}

	if c.Engine.LockWaitTimeout <= 0 {
		return fmt.Errorf("lock wait timeout must be positive, got %s", c.Engine.LockWaitTimeout)
	}

	return nil
}

func Run() error {
	var cfg Config

	flag.IntVar(&cfg.Port, "port", 3000, "server port")
	flag.StringVar(&cfg.Env, "env", "dev", "Environment (dev|staging|prod)")

	flag.StringVar(&cfg.DB.DSN, "db-dsn", "", "PostgreSQL DSN")
	flag.IntVar(&cfg.DB.MaxOpenConns, "db-max-open-conns", 25, "PostgreSQL max open connections")
	flag.DurationVar(&cfg.DB.MaxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max idle time for connections")

	flag.StringVar(&cfg.Redis.URL, "redis-url", "", "Redis URL")
	flag.IntVar(&cfg.Redis.MaxOpenConns, "redis-max-open-conns", 25, "Redis max open connections")
	flag.IntVar(&cfg.Redis.MaxIdleConns, "redis-max-idle-conns", 10, "Redis max idle connections")
	flag.DurationVar(&cfg.Redis.MaxIdleTime, "redis-max-idle-time", 2*time.Minute, "Redis max idle time for connections")

	flag.StringVar(&cfg.SMTP.Host, "smtp-host", "sandbox.smtp.mailtrap.io", "SMTP host")
	flag.IntVar(&cfg.SMTP.Port, "smtp-port", 2525, "SMTP port")
	flag.StringVar(&cfg.SMTP.Username, "smtp-username", "", "SMTP username")
	flag.StringVar(&cfg.SMTP.Password, "smtp-password", "", "SMTP password")
	flag.StringVar(&cfg.SMTP.Sender, "smtp-sender", "CineHall <no-reply@cinehall.example>", "SMTP sender")

	flag.StringVar(&cfg.Stripe.SecretKey, "stripe-key", "", "Stripe secret key")
	flag.StringVar(&cfg.Stripe.WebhookSecret, "stripe-webhook-secret", "", "Stripe webhook secret")
	flag.StringVar(&cfg.Stripe.SuccessUrl, "stripe-success-url", "https://example.com/success.html", "Stripe payment success page")
	flag.StringVar(&cfg.Stripe.FailureUrl, "stripe-failure-url", "https://example.com/failure.html", "Stripe payment failure page")

	flag.DurationVar(&cfg.Engine.HoldDuration, "hold-duration", 10*time.Minute, "how long a pending reservation may await payment")
	flag.DurationVar(&cfg.Engine.SweepInterval, "sweep-interval", 30*time.Second, "how often expired holds are reclaimed")
	flag.DurationVar(&cfg.Engine.LockWaitTimeout, "lock-wait-timeout", 2*time.Second, "max wait for a screening's critical section")

	flag.StringVar(&cfg.OtelCollectorUrl, "otel-collector-url", "", "OpenTelemetry collector URL")

	displayVersion := flag.Bool("version", false, "Display version and exit")

	flag.Parse()

	if *displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		os.Exit(0)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	shutdown, err := app.InitTelemetry()
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	return app.serve()
}

// NewApplication wires the engine and its collaborators from an already
// parsed configuration. The lock table is rebuilt from the store before
// the caller gets the chance to serve a single claim.
func NewApplication(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stripe.Key = cfg.Stripe.SecretKey

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	db, err := NewDatabasePool(cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := NewRedisClient(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	catalogRepo := repository.NewPostgresCatalogRepository(db)
	reservationRepo := repository.NewPostgresReservationRepository(db)

	app, err := NewApp(
		cfg,
		logger,
		db,
		redisClient,
		appvalidator.NewValidator(),
		mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Sender),
		NewSessionManager(redisClient),
		catalogRepo,
		reservationRepo,
		payment.NewStripePaymentProvider(cfg.Stripe.FailureUrl, cfg.Stripe.SuccessUrl, cfg.Stripe.WebhookSecret),
	)
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, err
	}

	return app, nil
}

// NewApp assembles an Application from already constructed collaborators.
// The lock table is rebuilt from the store here, so a returned app is
// immediately safe to serve claims.
func NewApp(
	cfg Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	redisClient redis.UniversalClient,
	validate *validator.Validate,
	appMailer mailer.Mailer,
	sessionManager *scs.SessionManager,
	catalogRepo domain.CatalogRepository,
	reservationRepo domain.ReservationRepository,
	paymentProvider domain.PaymentProvider,
) (*Application, error) {

	locks := engine.NewLockTable(cfg.Engine.LockWaitTimeout)
	eng := engine.New(catalogRepo, reservationRepo, locks, logger, cfg.Engine.HoldDuration)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := eng.Rebuild(ctx); err != nil {
		return nil, err
	}

	return &Application{
		config:          cfg,
		logger:          logger,
		db:              db,
		redis:           redisClient,
		validator:       validate,
		mailer:          appMailer,
		sessionManager:  sessionManager,
		catalogRepo:     catalogRepo,
		reservationRepo: reservationRepo,
		paymentProvider: paymentProvider,
		engine:          eng,
		sweeper:         engine.NewSweeper(eng, logger, cfg.Engine.SweepInterval),
	}, nil
}

func (app *Application) Close() {
	app.db.Close()
	app.redis.Close()
}

// Config returns a copy of the application's configuration.
func (app *Application) Config() Config {
	return app.config
}

// RebuildLocks re-derives the in-memory lock table from the store. The
// server only needs this at startup, but tests that reset the database
// underneath a running application use it to stay consistent.
func (app *Application) RebuildLocks(ctx context.Context) error {
	return app.engine.Rebuild(ctx)
}

func NewSessionManager(client *redis.Client) *scs.SessionManager {
	sessionManager := scs.New()

	sessionManager.Store = goredisstore.New(client)
	sessionManager.IdleTimeout = 20 * time.Minute
	sessionManager.Cookie.Name = "session_id"

	return sessionManager
}

func NewRedisClient(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Redis.URL,
		MaxIdleConns:    cfg.Redis.MaxIdleConns,
		MaxActiveConns:  cfg.Redis.MaxOpenConns,
		ConnMaxIdleTime: cfg.Redis.MaxIdleTime,
	})

	if err := redisotel.InstrumentTracing(rdb); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := rdb.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func NewDatabasePool(cfg Config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	config.MaxConnIdleTime = cfg.DB.MaxIdleTime
	config.MaxConns = int32(cfg.DB.MaxOpenConns)
	config.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (app *Application) serve() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", app.config.Port),
		Handler:      app.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelDebug),
	}

	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()

	go app.sweeper.Run(sweeperCtx)

	shutdownError := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		app.logger.Info("shutting down server", "signal", s.String())

		stopSweeper()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(ctx)
		if err != nil {
			shutdownError <- err
		}

		shutdownError <- nil
	}()

	app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdownError
	if err != nil {
		return err
	}

	app.logger.Info("stopped server", "addr", srv.Addr)

	return nil
}
