package app

import (
	"context"
	"time"

	"hotelcore/internal/domain"
)

// OccupancyService derives each room's live status from the active
// reservation set instead of trusting the persisted "occupied" flag. It is
// read-only and built for dashboard call rates: one pass per hotel, cached.
type OccupancyService struct {
	rooms        domain.RoomRepository
	reservations domain.ReservationRepository
	cache        domain.Cache
	cacheTTL     time.Duration
	now          func() time.Time
}

func NewOccupancyService(rooms domain.RoomRepository, reservations domain.ReservationRepository, cache domain.Cache, ttl time.Duration) *OccupancyService {
	return &OccupancyService{
		rooms:        rooms,
		reservations: reservations,
		cache:        cache,
		cacheTTL:     ttl,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// HotelRoomStatuses computes statuses for the whole hotel in one pass.
func (s *OccupancyService) HotelRoomStatuses(ctx context.Context, hotelID int64) ([]domain.RoomStatusView, error) {
	key := roomStatusKey(hotelID)
	if s.cache != nil {
		var cached []domain.RoomStatusView
		if ok, _ := s.cache.Get(ctx, key, &cached); ok {
			return cached, nil
		}
	}

	views, err := s.statusesAt(ctx, hotelID, s.now())
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, views, int(s.cacheTTL.Seconds()))
	}
	return views, nil
}

// RoomStatus resolves one room. Uncached: the single-room path is used by
// staff actions that want the freshest view.
func (s *OccupancyService) RoomStatus(ctx context.Context, hotelID, roomID int64) (domain.RoomStatusView, error) {
	room, err := s.rooms.GetRoom(ctx, hotelID, roomID)
	if err != nil {
		return domain.RoomStatusView{}, err
	}
	occupied, err := s.reservations.OccupiedRoomIDs(ctx, hotelID, s.now())
	if err != nil {
		return domain.RoomStatusView{}, err
	}
	_, occ := occupied[roomID]
	return domain.RoomStatusView{Room: room, ComputedStatus: domain.ResolveStatus(room, occ)}, nil
}

// StatusesAt is the point-in-time form: what would the board have shown at t.
func (s *OccupancyService) StatusesAt(ctx context.Context, hotelID int64, at time.Time) ([]domain.RoomStatusView, error) {
	return s.statusesAt(ctx, hotelID, at)
}

func (s *OccupancyService) statusesAt(ctx context.Context, hotelID int64, at time.Time) ([]domain.RoomStatusView, error) {
	rooms, err := s.rooms.ListRooms(ctx, hotelID)
	if err != nil {
		return nil, err
	}
	occupied, err := s.reservations.OccupiedRoomIDs(ctx, hotelID, at)
	if err != nil {
		return nil, err
	}

	views := make([]domain.RoomStatusView, len(rooms))
	for i, rm := range rooms {
		_, occ := occupied[rm.ID]
		views[i] = domain.RoomStatusView{Room: rm, ComputedStatus: domain.ResolveStatus(rm, occ)}
	}
	return views, nil
}
