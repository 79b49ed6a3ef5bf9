package app

import (
	"context"
	"fmt"
	"time"

	"hotelcore/internal/domain"
)

// QueryService serves the read paths around the reservation store: the
// search/browse availability endpoint and reservation lookups. Pure queries,
// no retries; store errors propagate unchanged.
type QueryService struct {
	reservations domain.ReservationRepository
	cache        domain.Cache
	cacheTTL     time.Duration
}

func NewQueryService(reservations domain.ReservationRepository, cache domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{reservations: reservations, cache: cache, cacheTTL: ttl}
}

func (s *QueryService) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	return s.reservations.GetReservation(ctx, id)
}

// CheckAvailability returns the hotel's rooms free for [checkIn, checkOut).
// A hit here is advisory only; the booking transaction re-checks under locks.
func (s *QueryService) CheckAvailability(ctx context.Context, q domain.AvailabilityQuery) ([]domain.Room, error) {
	if q.HotelID <= 0 {
		return nil, domain.Validationf("hotelId", "must be positive")
	}
	q.CheckIn = domain.ToDay(q.CheckIn)
	q.CheckOut = domain.ToDay(q.CheckOut)
	if !q.CheckIn.Before(q.CheckOut) {
		return nil, domain.Validationf("checkOut", "must be after checkIn")
	}
	if q.Type != nil && !q.Type.IsValid() {
		return nil, domain.Validationf("type", "unknown room type %q", string(*q.Type))
	}

	// Only the common unfiltered search is cached; narrowed queries go to
	// the store directly.
	cacheable := s.cache != nil && len(q.RoomIDs) == 0 && q.Type == nil
	key := availabilityKey(q)
	if cacheable {
		var cached []domain.Room
		if ok, _ := s.cache.Get(ctx, key, &cached); ok {
			return cached, nil
		}
	}

	rooms, err := s.reservations.ListAvailableRooms(ctx, q)
	if err != nil {
		return nil, err
	}
	if cacheable {
		_ = s.cache.Set(ctx, key, rooms, int(s.cacheTTL.Seconds()))
	}
	return rooms, nil
}

// HasOverlap is the standalone pre-check form of the availability test.
func (s *QueryService) HasOverlap(ctx context.Context, roomIDs []int64, checkIn, checkOut time.Time) (bool, error) {
	if len(roomIDs) == 0 {
		return false, domain.Validationf("roomIds", "must not be empty")
	}
	checkIn = domain.ToDay(checkIn)
	checkOut = domain.ToDay(checkOut)
	if !checkIn.Before(checkOut) {
		return false, domain.Validationf("checkOut", "must be after checkIn")
	}
	return s.reservations.HasOverlap(ctx, roomIDs, checkIn, checkOut)
}

func availabilityKey(q domain.AvailabilityQuery) string {
	return fmt.Sprintf("avail:%d:%s:%s",
		q.HotelID, q.CheckIn.Format("2006-01-02"), q.CheckOut.Format("2006-01-02"))
}
