package app_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"hotelcore/internal/domain"
)

// memStore is an in-memory stand-in for the MySQL repo that honors the same
// contracts: idempotent replay, overlap rejection, compare-and-set status.
type memStore struct {
	mu           sync.Mutex
	rooms        map[int64]domain.Room
	reservations map[string]domain.Reservation
	byKey        map[string]string

	// conflictsLeft injects transient ErrConflict from CreateBooking before
	// letting it succeed, mimicking deadlock retries.
	conflictsLeft int
}

func newMemStore(rooms ...domain.Room) *memStore {
	s := &memStore{
		rooms:        map[int64]domain.Room{},
		reservations: map[string]domain.Reservation{},
		byKey:        map[string]string{},
	}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

// ---- RoomRepository ----

func (s *memStore) CreateRoom(ctx context.Context, r domain.Room) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.rooms) + 1)
	r.ID = id
	s.rooms[id] = r
	return id, nil
}

func (s *memStore) UpdateRoom(ctx context.Context, r domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[r.ID]; !ok {
		return domain.ErrNotFound
	}
	s.rooms[r.ID] = r
	return nil
}

func (s *memStore) SetRoomStatus(ctx context.Context, roomID int64, st domain.RoomStatus) error {
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

func (s *memStore) DeactivateRoom(ctx context.Context, roomID int64) error {
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

func (s *memStore) GetRoom(ctx context.Context, hotelID, roomID int64) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok || r.HotelID != hotelID {
		return domain.Room{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *memStore) ListRooms(ctx context.Context, hotelID int64) ([]domain.Room, error) {
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

// ---- ReservationRepository ----

func (s *memStore) CreateBooking(ctx context.Context, intent domain.BookingIntent, build domain.BuildReservation) (domain.Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[intent.IdempotencyKey]; ok {
		return s.reservations[id], true, nil
	}
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		return domain.Reservation{}, false, domain.ErrConflict
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

func (s *memStore) TransitionStatus(ctx context.Context, id string, from, to domain.ReservationStatus, reason *string) error {
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

func (s *memStore) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return res, nil
}

func (s *memStore) GetByIdempotencyKey(ctx context.Context, key string) (domain.Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return domain.Reservation{}, false, nil
	}
	return s.reservations[id], true, nil
}

func (s *memStore) HasOverlap(ctx context.Context, roomIDs []int64, checkIn, checkOut time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlapLocked(roomIDs, checkIn, checkOut), nil
}

func (s *memStore) overlapLocked(roomIDs []int64, checkIn, checkOut time.Time) bool {
	want := make(map[int64]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		want[id] = struct{}{}
	}
	for _, res := range s.reservations {
		if !res.Status.Active() {
			continue
		}
		if !domain.Overlaps(res.CheckIn, res.CheckOut, checkIn, checkOut) {
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

func (s *memStore) ListAvailableRooms(ctx context.Context, q domain.AvailabilityQuery) ([]domain.Room, error) {
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

func (s *memStore) OccupiedRoomIDs(ctx context.Context, hotelID int64, at time.Time) (map[int64]struct{}, error) {
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

func (s *memStore) ListOverdueArrivals(ctx context.Context, checkInBefore time.Time) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, res := range s.reservations {
		if res.Status == domain.StatusConfirmed && res.CheckIn.Before(checkInBefore) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (s *memStore) ListOverdueDepartures(ctx context.Context, checkOutBefore time.Time) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, res := range s.reservations {
		if res.Status == domain.StatusCheckedIn && !res.CheckOut.After(checkOutBefore) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reservations)
}

// ---- fake cache (JSON round-trip like the real adapter) ----

type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func newFakeCache() *fakeCache { return &fakeCache{store: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

// ---- fake notifier ----

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) record(ev string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *fakeNotifier) ReservationCreated(ctx context.Context, r domain.Reservation) {
	n.record("created:" + r.ID)
}

func (n *fakeNotifier) ReservationCancelled(ctx context.Context, r domain.Reservation) {
	n.record("cancelled:" + r.ID)
}

func (n *fakeNotifier) ReservationStatusChanged(ctx context.Context, r domain.Reservation) {
	n.record("status:" + r.ID)
}

// ---- helpers ----

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func room(id, hotelID int64, number string, rate float64) domain.Room {
	return domain.Room{
		ID:          id,
		HotelID:     hotelID,
		Number:      number,
		Type:        domain.RoomDouble,
		Floor:       1,
		Capacity:    2,
		BaseRate:    rate,
		CurrentRate: rate,
		Active:      true,
		Status:      domain.RoomVacant,
	}
}
