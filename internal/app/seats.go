package app

import (
	"net/http"
	"time"

	"github.com/cinehall/reservation-system/internal/engine"
	"github.com/shopspring/decimal"
)

type SeatMapResponse struct {
	ScreeningId int       `json:"screeningId"`
	MovieTitle  string    `json:"movieTitle"`
	RoomName    string    `json:"roomName"`
	StartTime   time.Time `json:"startTime"`
	SeatRows    []SeatRow `json:"seatRows"`
}

type SeatRow struct {
	Row   int            `json:"row"`
	Seats []SeatResponse `json:"seats"`
}

type SeatResponse struct {
	Id        int             `json:"id"`
	Row       int             `json:"row"`
	Number    int             `json:"number"`
	Type      string          `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

func (app *Application) GetScreeningSeatsHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	screeningID, err := app.readIntParam(r, "screeningID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	screening, seatStates, err := app.engine.ScreeningSeats(r.Context(), screeningID)
	if err != nil {
		app.engineErrorResponse(w, r, err)
		return
	}

	if len(seatStates) == 0 {
		logger.Warn("seat map not found for screening", "screening_id", screeningID)
		app.notFoundResponse(w, r)
		return
	}

	resp := SeatMapResponse{
		ScreeningId: screeningID,
		MovieTitle:  screening.MovieTitle,
		RoomName:    screening.RoomName,
		StartTime:   screening.StartTime,
		SeatRows:    toSeatRows(seatStates, screening.BasePrice),
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func toSeatRows(seatStates []engine.SeatState, basePrice decimal.Decimal) []SeatRow {
	// Seats arrive pre-sorted by row and number, so a single pass groups
	// them without additional sorting.

	var seatRows []SeatRow
	currentRow := SeatRow{Row: seatStates[0].Seat.Row}

	for _, state := range seatStates {
		if state.Seat.Row != currentRow.Row {
			seatRows = append(seatRows, currentRow)
			currentRow = SeatRow{Row: state.Seat.Row}
		}

		currentRow.Seats = append(currentRow.Seats, SeatResponse{
			Id:        state.Seat.ID,
			Row:       state.Seat.Row,
			Number:    state.Seat.Number,
			Type:      state.Seat.Type,
			Price:     state.Seat.Price(basePrice),
			Available: state.Available,
		})
	}

	seatRows = append(seatRows, currentRow)

	return seatRows
}
