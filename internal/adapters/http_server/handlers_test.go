package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	httpserver "hotelcore/internal/adapters/http_server"
	"hotelcore/internal/app"
	"hotelcore/internal/domain"
)

// stubStore backs the handlers with the same contracts the MySQL repo keeps:
// idempotent replay, overlap rejection, compare-and-set transitions.
type stubStore struct {
	mu           sync.Mutex
	rooms        map[int64]domain.Room
	reservations map[string]domain.Reservation
	byKey        map[string]string
}

func newStubStore(rooms ...domain.Room) *stubStore {
	s := &stubStore{
		rooms:        map[int64]domain.Room{},
		reservations: map[string]domain.Reservation{},
		byKey:        map[string]string{},
	}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

func (s *stubStore) CreateRoom(ctx context.Context, r domain.Room) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.rooms) + 1)
	r.ID = id
	s.rooms[id] = r
	return id, nil
}

func (s *stubStore) UpdateRoom(ctx context.Context, r domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[r.ID]; !ok {
		return domain.ErrNotFound
	}
	s.rooms[r.ID] = r
	return nil
}

func (s *stubStore) SetRoomStatus(ctx context.Context, roomID int64, st domain.RoomStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = st
	s.rooms[roomID] = r
	return nil
}

func (s *stubStore) DeactivateRoom(ctx context.Context, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrNotFound
	}
	r.Active = false
	s.rooms[roomID] = r
	return nil
}

func (s *stubStore) GetRoom(ctx context.Context, hotelID, roomID int64) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok || r.HotelID != hotelID {
		return domain.Room{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *stubStore) ListRooms(ctx context.Context, hotelID int64) ([]domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Room
	for _, r := range s.rooms {
		if r.HotelID == hotelID && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubStore) CreateBooking(ctx context.Context, intent domain.BookingIntent, build domain.BuildReservation) (domain.Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byKey[intent.IdempotencyKey]; ok {
		return s.reservations[id], true, nil
	}
	rooms := make([]domain.Room, 0, len(intent.RoomIDs))
	for _, id := range intent.RoomIDs {
		r, ok := s.rooms[id]
		if !ok || !r.Active || r.HotelID != intent.HotelID {
			return domain.Reservation{}, false, domain.ErrNotFound
		}
		rooms = append(rooms, r)
	}
	if s.overlapLocked(intent.RoomIDs, intent.CheckIn, intent.CheckOut) {
		return domain.Reservation{}, false, domain.ErrConflict
	}
	res, err := build(rooms)
	if err != nil {
		return domain.Reservation{}, false, err
	}
	s.reservations[res.ID] = res
	s.byKey[res.IdempotencyKey] = res.ID
	return res, false, nil
}

func (s *stubStore) TransitionStatus(ctx context.Context, id string, from, to domain.ReservationStatus, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[id]
	if !ok {
		return domain.ErrNotFound
	}
	if res.Status != from {
		return domain.ErrConflict
	}
	res.Status = to
	if reason != nil {
		res.CancelReason = reason
	}
	s.reservations[id] = res
	return nil
}

func (s *stubStore) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return res, nil
}

func (s *stubStore) GetByIdempotencyKey(ctx context.Context, key string) (domain.Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return domain.Reservation{}, false, nil
	}
	return s.reservations[id], true, nil
}

func (s *stubStore) HasOverlap(ctx context.Context, roomIDs []int64, checkIn, checkOut time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlapLocked(roomIDs, checkIn, checkOut), nil
}

func (s *stubStore) overlapLocked(roomIDs []int64, checkIn, checkOut time.Time) bool {
	want := make(map[int64]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		want[id] = struct{}{}
	}
	for _, res := range s.reservations {
		if !res.Status.Active() || !domain.Overlaps(res.CheckIn, res.CheckOut, checkIn, checkOut) {
			continue
		}
		for _, stay := range res.Rooms {
			if _, hit := want[stay.RoomID]; hit {
				return true
			}
		}
	}
	return false
}

func (s *stubStore) ListAvailableRooms(ctx context.Context, q domain.AvailabilityQuery) ([]domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Room
	for _, r := range s.rooms {
		if r.HotelID != q.HotelID || !r.Active {
			continue
		}
		if r.Status == domain.RoomMaintenance || r.Status == domain.RoomOutOfOrder {
			continue
		}
		if q.Type != nil && r.Type != *q.Type {
			continue
		}
		if s.overlapLocked([]int64{r.ID}, q.CheckIn, q.CheckOut) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *stubStore) OccupiedRoomIDs(ctx context.Context, hotelID int64, at time.Time) (map[int64]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int64]struct{}{}
	for _, res := range s.reservations {
		if res.HotelID != hotelID {
			continue
		}
		for _, stay := range res.Rooms {
			if res.CoversRoomAt(stay.RoomID, at) {
				out[stay.RoomID] = struct{}{}
			}
		}
	}
	return out, nil
}

func (s *stubStore) ListOverdueArrivals(ctx context.Context, before time.Time) ([]domain.Reservation, error) {
	return nil, nil
}

func (s *stubStore) ListOverdueDepartures(ctx context.Context, before time.Time) ([]domain.Reservation, error) {
	return nil, nil
}

type nopNotifier struct{}

func (nopNotifier) ReservationCreated(context.Context, domain.Reservation)       {}
func (nopNotifier) ReservationCancelled(context.Context, domain.Reservation)     {}
func (nopNotifier) ReservationStatusChanged(context.Context, domain.Reservation) {}

func testRoom(id int64, number string, rate float64) domain.Room {
	return domain.Room{
		ID: id, HotelID: 7, Number: number, Type: domain.RoomDouble,
		Floor: 1, Capacity: 2, BaseRate: rate, CurrentRate: rate,
		Active: true, Status: domain.RoomVacant,
	}
}

func newTestServer(t *testing.T, rooms ...domain.Room) *httptest.Server {
	t.Helper()
	store := newStubStore(rooms...)
	h := &httpserver.Handlers{
		Bookings:  app.NewBookingService(store, store, nil, nopNotifier{}, 3),
		Queries:   app.NewQueryService(store, nil, 0),
		Occupancy: app.NewOccupancyService(store, store, nil, 0),
	}
	srv := httpserver.New()
	srv.MountHandlers(h)
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

type reservationResp struct {
	ID          string  `json:"id"`
	HotelID     int64   `json:"hotelId"`
	Nights      int     `json:"nights"`
	Status      string  `json:"status"`
	TotalAmount float64 `json:"totalAmount"`
	Currency    string  `json:"currency"`
	CheckIn     string  `json:"checkIn"`
	CheckOut    string  `json:"checkOut"`
}

func bookingBody(key string) map[string]any {
	return map[string]any{
		"hotelId":        7,
		"roomIds":        []int64{101},
		"checkIn":        "2100-01-10",
		"checkOut":       "2100-01-13",
		"guestId":        42,
		"idempotencyKey": key,
	}
}

func TestCreateAndGetBooking(t *testing.T) {
	ts := newTestServer(t, testRoom(101, "101", 150))

	resp := postJSON(t, ts.URL+"/v1/bookings", bookingBody("k-1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var created reservationResp
	decodeBody(t, resp, &created)
	if created.Nights != 3 || created.TotalAmount != 450 || created.Status != "pending" {
		t.Fatalf("created = %+v", created)
	}
	if created.CheckIn != "2100-01-10" || created.CheckOut != "2100-01-13" {
		t.Fatalf("dates = %s..%s", created.CheckIn, created.CheckOut)
	}

	get, err := http.Get(ts.URL + "/v1/bookings/" + created.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if get.StatusCode != http.StatusOK {
		t.Fatalf("get status %d", get.StatusCode)
	}
	var fetched reservationResp
	decodeBody(t, get, &fetched)
	if fetched.ID != created.ID || fetched.TotalAmount != 450 {
		t.Fatalf("fetched = %+v", fetched)
	}
}

func TestCreateBooking_IdempotencyKeyHeader(t *testing.T) {
	ts := newTestServer(t, testRoom(101, "101", 150))

	body := bookingBody("")
	delete(body, "idempotencyKey")
	b, _ := json.Marshal(body)

	send := func() reservationResp {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/bookings", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "hdr-key-1")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status %d", resp.StatusCode)
		}
		var out reservationResp
		decodeBody(t, resp, &out)
		return out
	}

	first := send()
	second := send()
	if first.ID != second.ID {
		t.Fatalf("replay returned a different reservation: %s vs %s", first.ID, second.ID)
	}
}

func TestCreateBooking_ValidationProblem(t *testing.T) {
	ts := newTestServer(t, testRoom(101, "101", 150))

	body := bookingBody("") // no key in body, none in header
	resp := postJSON(t, ts.URL+"/v1/bookings", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("content type %q", ct)
	}
}

func TestCreateBooking_OverlapConflict(t *testing.T) {
	ts := newTestServer(t, testRoom(101, "101", 150))

	resp := postJSON(t, ts.URL+"/v1/bookings", bookingBody("k-1"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first status %d", resp.StatusCode)
	}

	second := bookingBody("k-2")
	second["checkIn"] = "2100-01-12"
	second["checkOut"] = "2100-01-15"
	resp = postJSON(t, ts.URL+"/v1/bookings", second)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second status %d, want 409", resp.StatusCode)
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/bookings/no-such-id")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestCancelBooking(t *testing.T) {
	ts := newTestServer(t, testRoom(101, "101", 150))

	resp := postJSON(t, ts.URL+"/v1/bookings", bookingBody("k-1"))
	var created reservationResp
	decodeBody(t, resp, &created)

	resp = postJSON(t, ts.URL+"/v1/bookings/"+created.ID+"/cancel", map[string]string{"reason": "guest request"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status %d", resp.StatusCode)
	}
	var cancelled reservationResp
	decodeBody(t, resp, &cancelled)
	if cancelled.Status != "cancelled" {
		t.Fatalf("status = %s", cancelled.Status)
	}

	// Cancelling again is an invalid state, not a conflict or a 500.
	resp = postJSON(t, ts.URL+"/v1/bookings/"+created.ID+"/cancel", map[string]string{"reason": "again"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("second cancel status %d, want 422", resp.StatusCode)
	}
}

func TestUpdateBookingStatus(t *testing.T) {
	ts := newTestServer(t, testRoom(101, "101", 150))

	resp := postJSON(t, ts.URL+"/v1/bookings", bookingBody("k-1"))
	var created reservationResp
	decodeBody(t, resp, &created)

	patch := func(status string) *http.Response {
		b, _ := json.Marshal(map[string]string{"status": status})
		req, _ := http.NewRequest(http.MethodPatch, ts.URL+"/v1/bookings/"+created.ID+"/status", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PATCH: %v", err)
		}
		return resp
	}

	resp = patch("confirmed")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status %d", resp.StatusCode)
	}
	var confirmed reservationResp
	decodeBody(t, resp, &confirmed)
	if confirmed.Status != "confirmed" {
		t.Fatalf("status = %s", confirmed.Status)
	}

	// Skipping ahead in the lifecycle is rejected.
	resp = patch("checked_out")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("jump status %d, want 422", resp.StatusCode)
	}
}

func TestCheckAvailability_FiltersBookedRooms(t *testing.T) {
	ts := newTestServer(t, testRoom(101, "101", 150), testRoom(102, "102", 200))

	resp := postJSON(t, ts.URL+"/v1/bookings", bookingBody("k-1"))
	resp.Body.Close()

	get, err := http.Get(ts.URL + "/v1/hotels/7/availability?checkIn=2100-01-10&checkOut=2100-01-13")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if get.StatusCode != http.StatusOK {
		t.Fatalf("status %d", get.StatusCode)
	}
	etag := get.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag")
	}
	var rooms []struct {
		ID     int64  `json:"id"`
		Number string `json:"number"`
	}
	decodeBody(t, get, &rooms)
	if len(rooms) != 1 || rooms[0].ID != 102 {
		t.Fatalf("rooms = %+v", rooms)
	}

	// Conditional revalidation round-trips the ETag.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/hotels/7/availability?checkIn=2100-01-10&checkOut=2100-01-13", nil)
	req.Header.Set("If-None-Match", etag)
	again, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET again: %v", err)
	}
	again.Body.Close()
	if again.StatusCode != http.StatusNotModified {
		t.Fatalf("revalidation status %d, want 304", again.StatusCode)
	}
}

func TestCheckAvailability_BadDates(t *testing.T) {
	ts := newTestServer(t, testRoom(101, "101", 150))
	resp, err := http.Get(ts.URL + "/v1/hotels/7/availability?checkIn=nope&checkOut=2100-01-13")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestRoomStatus_SingleRoom(t *testing.T) {
	ts := newTestServer(t, testRoom(101, "101", 150))

	resp, err := http.Get(ts.URL + "/v1/hotels/7/rooms/status?roomId=101")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var views []struct {
		Room           struct{ ID int64 } `json:"room"`
		ComputedStatus string             `json:"computedStatus"`
	}
	decodeBody(t, resp, &views)
	if len(views) != 1 || views[0].Room.ID != 101 || views[0].ComputedStatus != "vacant" {
		t.Fatalf("views = %+v", views)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(body)) != "ok" {
		t.Fatalf("body = %q", body)
	}
}
