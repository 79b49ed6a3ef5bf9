// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"hotelcore/internal/app"
	"hotelcore/internal/domain"
)

type Handlers struct {
	Bookings  *app.BookingService
	Queries   *app.QueryService
	Occupancy *app.OccupancyService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Post("/v1/bookings", h.createBooking)
	s.mux.Get("/v1/bookings/{id}", h.getBooking)
	s.mux.Post("/v1/bookings/{id}/cancel", h.cancelBooking)
	s.mux.Patch("/v1/bookings/{id}/status", h.updateBookingStatus)
	s.mux.Get("/v1/hotels/{hotelID}/availability", h.checkAvailability)
	s.mux.Get("/v1/hotels/{hotelID}/rooms/status", h.roomStatus)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps the domain error taxonomy onto the HTTP surface. Conflicts
// are an expected outcome of concurrent demand, never a generic 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeProblem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid State", err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeCacheableJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

// ---- wire DTOs ----

const dateLayout = "2006-01-02"

type createBookingBody struct {
	HotelID              int64           `json:"hotelId"`
	RoomIDs              []int64         `json:"roomIds"`
	CheckIn              string          `json:"checkIn"`
	CheckOut             string          `json:"checkOut"`
	GuestID              int64           `json:"guestId"`
	TargetGuestID        *int64          `json:"targetGuestId,omitempty"`
	IdempotencyKey       string          `json:"idempotencyKey"`
	GuestDetails         json.RawMessage `json:"guestDetails,omitempty"`
	Currency             string          `json:"currency,omitempty"`
	OverrideAmount       *float64        `json:"overrideAmount,omitempty"`
	InitialStatus        *string         `json:"initialStatus,omitempty"`
	InitialPaymentStatus *string         `json:"initialPaymentStatus,omitempty"`
}

type stayJSON struct {
	RoomID      int64   `json:"roomId"`
	NightlyRate float64 `json:"nightlyRate"`
}

type reservationJSON struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotencyKey"`
	HotelID        int64           `json:"hotelId"`
	GuestID        int64           `json:"guestId"`
	TargetGuestID  *int64          `json:"targetGuestId,omitempty"`
	Rooms          []stayJSON      `json:"rooms"`
	CheckIn        string          `json:"checkIn"`
	CheckOut       string          `json:"checkOut"`
	Nights         int             `json:"nights"`
	Status         string          `json:"status"`
	PaymentStatus  string          `json:"paymentStatus"`
	TotalAmount    float64         `json:"totalAmount"`
	Currency       string          `json:"currency"`
	CancelReason   *string         `json:"cancelReason,omitempty"`
	GuestDetails   json.RawMessage `json:"guestDetails,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func toReservationJSON(res domain.Reservation) reservationJSON {
	stays := make([]stayJSON, len(res.Rooms))
	for i, s := range res.Rooms {
		stays[i] = stayJSON{RoomID: s.RoomID, NightlyRate: s.NightlyRate}
	}
	return reservationJSON{
		ID:             res.ID,
		IdempotencyKey: res.IdempotencyKey,
		HotelID:        res.HotelID,
		GuestID:        res.GuestID,
		TargetGuestID:  res.TargetGuestID,
		Rooms:          stays,
		CheckIn:        res.CheckIn.Format(dateLayout),
		CheckOut:       res.CheckOut.Format(dateLayout),
		Nights:         res.Nights,
		Status:         string(res.Status),
		PaymentStatus:  string(res.PaymentStatus),
		TotalAmount:    res.TotalAmount,
		Currency:       res.Currency,
		CancelReason:   res.CancelReason,
		GuestDetails:   res.GuestDetails,
		CreatedAt:      res.CreatedAt,
		UpdatedAt:      res.UpdatedAt,
	}
}

type roomJSON struct {
	ID          int64   `json:"id"`
	HotelID     int64   `json:"hotelId"`
	Number      string  `json:"number"`
	Type        string  `json:"type"`
	Floor       int     `json:"floor"`
	Capacity    int     `json:"capacity"`
	BaseRate    float64 `json:"baseRate"`
	CurrentRate float64 `json:"currentRate"`
	Status      string  `json:"status,omitempty"`
}

func toRoomJSON(rm domain.Room, status domain.RoomStatus) roomJSON {
	return roomJSON{
		ID:          rm.ID,
		HotelID:     rm.HotelID,
		Number:      rm.Number,
		Type:        string(rm.Type),
		Floor:       rm.Floor,
		Capacity:    rm.Capacity,
		BaseRate:    rm.BaseRate,
		CurrentRate: rm.CurrentRate,
		Status:      string(status),
	}
}

// ---- handlers ----

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if body.IdempotencyKey == "" {
		body.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	checkIn, err := parseDate(body.CheckIn, "checkIn")
	if err != nil {
		writeError(w, err)
		return
	}
	checkOut, err := parseDate(body.CheckOut, "checkOut")
	if err != nil {
		writeError(w, err)
		return
	}

	req := app.CreateBookingRequest{
		HotelID:        body.HotelID,
		RoomIDs:        body.RoomIDs,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		GuestID:        body.GuestID,
		TargetGuestID:  body.TargetGuestID,
		IdempotencyKey: body.IdempotencyKey,
		GuestDetails:   body.GuestDetails,
		Currency:       body.Currency,
		OverrideAmount: body.OverrideAmount,
	}
	if body.InitialStatus != nil {
		st := domain.ReservationStatus(*body.InitialStatus)
		req.InitialStatus = &st
	}
	if body.InitialPaymentStatus != nil {
		ps := domain.PaymentStatus(*body.InitialPaymentStatus)
		req.InitialPaymentStatus = &ps
	}

	res, err := h.Bookings.CreateBooking(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationJSON(res))
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	res, err := h.Queries.GetReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationJSON(res))
}

func (h *Handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	res, err := h.Bookings.Cancel(r.Context(), chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationJSON(res))
}

func (h *Handlers) updateBookingStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	res, err := h.Bookings.UpdateStatus(r.Context(), chi.URLParam(r, "id"), domain.ReservationStatus(body.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationJSON(res))
}

func (h *Handlers) checkAvailability(w http.ResponseWriter, r *http.Request) {
	hotelID, err := strconv.ParseInt(chi.URLParam(r, "hotelID"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "hotel id must be a number")
		return
	}
	checkIn, perr := parseDate(r.URL.Query().Get("checkIn"), "checkIn")
	if perr != nil {
		writeError(w, perr)
		return
	}
	checkOut, perr := parseDate(r.URL.Query().Get("checkOut"), "checkOut")
	if perr != nil {
		writeError(w, perr)
		return
	}

	q := domain.AvailabilityQuery{HotelID: hotelID, CheckIn: checkIn, CheckOut: checkOut}
	if t := r.URL.Query().Get("type"); t != "" {
		rt := domain.RoomType(t)
		q.Type = &rt
	}
	if ids := r.URL.Query().Get("roomIds"); ids != "" {
		for _, part := range strings.Split(ids, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid roomIds", "roomIds must be comma-separated numbers")
				return
			}
			q.RoomIDs = append(q.RoomIDs, id)
		}
	}

	rooms, err := h.Queries.CheckAvailability(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]roomJSON, len(rooms))
	for i, rm := range rooms {
		out[i] = toRoomJSON(rm, rm.Status)
	}
	writeCacheableJSON(w, r, out)
}

type roomStatusJSON struct {
	Room           roomJSON `json:"room"`
	ComputedStatus string   `json:"computedStatus"`
}

func (h *Handlers) roomStatus(w http.ResponseWriter, r *http.Request) {
	hotelID, err := strconv.ParseInt(chi.URLParam(r, "hotelID"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "hotel id must be a number")
		return
	}

	if rid := r.URL.Query().Get("roomId"); rid != "" {
		roomID, err := strconv.ParseInt(rid, 10, 64)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid roomId", "roomId must be a number")
			return
		}
		view, err := h.Occupancy.RoomStatus(r.Context(), hotelID, roomID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, []roomStatusJSON{toRoomStatusJSON(view)})
		return
	}

	views, err := h.Occupancy.HotelRoomStatuses(r.Context(), hotelID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]roomStatusJSON, len(views))
	for i, v := range views {
		out[i] = toRoomStatusJSON(v)
	}
	writeCacheableJSON(w, r, out)
}

func toRoomStatusJSON(v domain.RoomStatusView) roomStatusJSON {
	return roomStatusJSON{
		Room:           toRoomJSON(v.Room, v.Room.Status),
		ComputedStatus: string(v.ComputedStatus),
	}
}

func parseDate(s, field string) (time.Time, error) {
	if s == "" {
		return time.Time{}, domain.Validationf(field, "is required (YYYY-MM-DD)")
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, domain.Validationf(field, "must be a YYYY-MM-DD date")
	}
	return t, nil
}
