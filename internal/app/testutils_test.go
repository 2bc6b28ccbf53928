package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/cinehall/reservation-system/internal/domain"
	"github.com/cinehall/reservation-system/internal/engine"
	"github.com/cinehall/reservation-system/internal/mailer"
	"github.com/cinehall/reservation-system/internal/mocks"
	"github.com/cinehall/reservation-system/internal/payment"
	appvalidator "github.com/cinehall/reservation-system/internal/validator"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// testHarness wires a real engine and router around mocked stores, with
// an in-memory session store standing in for Redis. Requests made through
// the harness carry the session cookie forward, so a sequence of calls
// acts as one visitor.
type testHarness struct {
	app     *Application
	catalog *mocks.MockCatalogRepo
	repo    *mocks.MockReservationRepo
	mailer  *mailer.MockMailer
	payment *payment.MockPaymentProvider
	router  http.Handler
	cookies []*http.Cookie
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	catalog := new(mocks.MockCatalogRepo)
	repo := new(mocks.MockReservationRepo)
	mockMailer := mailer.NewMockMailer()
	provider := payment.NewMockPaymentProvider()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locks := engine.NewLockTable(time.Second)
	eng := engine.New(catalog, repo, locks, logger, 10*time.Minute)

	application := &Application{
		config:          Config{Env: "test"},
		logger:          logger,
		validator:       appvalidator.NewValidator(),
		mailer:          mockMailer,
		sessionManager:  scs.New(),
		catalogRepo:     catalog,
		reservationRepo: repo,
		paymentProvider: provider,
		engine:          eng,
	}

	return &testHarness{
		app:     application,
		catalog: catalog,
		repo:    repo,
		mailer:  mockMailer,
		payment: provider,
		router:  application.Routes(),
	}
}

func (h *testHarness) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	return h.doRaw(t, method, target, reader)
}

func (h *testHarness) doRaw(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, body)
	for _, cookie := range h.cookies {
		req.AddCookie(cookie)
	}

	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)

	if cookies := rr.Result().Cookies(); len(cookies) > 0 {
		h.cookies = cookies
	}

	return rr
}

// dropSession forgets the visitor's cookie, so the next request runs
// under a new identity.
func (h *testHarness) dropSession() {
	h.cookies = nil
}

func decodeResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))

	return out
}

func testScreening() *domain.Screening {
	return &domain.Screening{
		ID:         1,
		RoomID:     1,
		RoomName:   "Room A",
		MovieTitle: "Blade Runner",
		StartTime:  time.Date(2025, time.March, 10, 21, 0, 0, 0, time.UTC),
		BasePrice:  decimal.NewFromFloat(10.00),
	}
}

func testSeats() []domain.Seat {
	return []domain.Seat{
		{ID: 1, RoomID: 1, Row: 1, Number: 1, Type: "standard"},
		{ID: 2, RoomID: 1, Row: 1, Number: 2, Type: "standard"},
		{ID: 3, RoomID: 1, Row: 2, Number: 1, Type: "premium", ExtraPrice: decimal.NewFromFloat(5.00)},
		{ID: 4, RoomID: 1, Row: 2, Number: 2, Type: "premium", ExtraPrice: decimal.NewFromFloat(5.00)},
	}
}

func (h *testHarness) stubCatalog() {
	h.catalog.On("GetScreening", mock.Anything, 1).Return(testScreening(), nil)
	h.catalog.On("GetSeatsByRoom", mock.Anything, 1).Return(testSeats(), nil)
}

// createReservation drives a reservation through the HTTP surface and
// returns the persisted record, captured from the store write.
func (h *testHarness) createReservation(t *testing.T, seatIDs []int) *domain.Reservation {
	t.Helper()

	var captured *domain.Reservation
	h.repo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*domain.Reservation)
	}).Return(nil).Once()

	rr := h.do(t, http.MethodPost, "/screenings/1/reservations", CreateReservationRequest{SeatIdList: seatIDs})
	require.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, captured)

	return captured
}
