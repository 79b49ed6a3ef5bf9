package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"hotelcore/internal/adapters/observability"
	"hotelcore/internal/domain"
)

// HousekeepingService runs the periodic lifecycle sweeps: confirmed
// reservations whose arrival day passed become no_show, and checked-in
// reservations past their check-out date are checked out with their rooms
// marked dirty. Both transitions are compare-and-set, so a concurrently
// acting front desk always wins.
type HousekeepingService struct {
	rooms        domain.RoomRepository
	reservations domain.ReservationRepository
	cache        domain.Cache
	workers      int64
}

func NewHousekeepingService(rooms domain.RoomRepository, reservations domain.ReservationRepository, cache domain.Cache, workers int) *HousekeepingService {
	if workers <= 0 {
		workers = 4
	}
	return &HousekeepingService{rooms: rooms, reservations: reservations, cache: cache, workers: int64(workers)}
}

// Sweep runs one pass of both sweeps and returns how many reservations moved.
func (s *HousekeepingService) Sweep(ctx context.Context, now time.Time) (int, error) {
	today := domain.ToDay(now)

	noShows, err := s.reservations.ListOverdueArrivals(ctx, today)
	if err != nil {
		return 0, err
	}
	departures, err := s.reservations.ListOverdueDepartures(ctx, today)
	if err != nil {
		return 0, err
	}

	moved := s.transitionAll(ctx, noShows, domain.StatusConfirmed, domain.StatusNoShow, "")
	moved += s.transitionAll(ctx, departures, domain.StatusCheckedIn, domain.StatusCheckedOut, string(domain.RoomDirty))

	observability.ObserveSweep(moved)
	return moved, nil
}

func (s *HousekeepingService) transitionAll(ctx context.Context, list []domain.Reservation, from, to domain.ReservationStatus, roomStatus string) int {
	sem := semaphore.NewWeighted(s.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	moved := 0

	for _, res := range list {
		res := res
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			if err := s.reservations.TransitionStatus(ctx, res.ID, from, to, nil); err != nil {
				// Conflict means the front desk acted first; not an error.
				log.Debug().Err(err).Str("reservation", res.ID).Str("to", string(to)).Msg("sweep transition skipped")
				return
			}
			if roomStatus != "" {
				for _, stay := range res.Rooms {
					if err := s.rooms.SetRoomStatus(ctx, stay.RoomID, domain.RoomStatus(roomStatus)); err != nil {
						log.Warn().Err(err).Int64("room", stay.RoomID).Msg("sweep room status update failed")
					}
				}
			}
			if s.cache != nil {
				_ = s.cache.Del(ctx, roomStatusKey(res.HotelID))
			}
			log.Info().Str("reservation", res.ID).Str("from", string(from)).Str("to", string(to)).Msg("sweep transition")

			mu.Lock()
			moved++
			mu.Unlock()
		}()
	}
	wg.Wait()
	return moved
}
