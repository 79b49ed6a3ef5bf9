package domain

import (
	"context"
	"time"
)

type RoomRepository interface {
	// Write paths (admin back office)
	CreateRoom(ctx context.Context, r Room) (int64, error)
	UpdateRoom(ctx context.Context, r Room) error
	SetRoomStatus(ctx context.Context, roomID int64, st RoomStatus) error
	DeactivateRoom(ctx context.Context, roomID int64) error

	// Read paths
	GetRoom(ctx context.Context, hotelID, roomID int64) (Room, error)
	ListRooms(ctx context.Context, hotelID int64) ([]Room, error)
}

// BookingIntent is what the coordinator asks the store to commit atomically.
type BookingIntent struct {
	HotelID        int64
	RoomIDs        []int64
	IdempotencyKey string
	CheckIn        time.Time
	CheckOut       time.Time
}

// BuildReservation runs inside the booking transaction, after the intent's
// rooms have been locked and validated, and produces the row to insert.
type BuildReservation func(rooms []Room) (Reservation, error)

type ReservationRepository interface {
	// CreateBooking performs the whole atomic unit: idempotency lookup,
	// room lock + validation, overlap re-check, insert, commit. The bool is
	// true when an existing reservation was replayed for the intent's key.
	// Availability and idempotency races surface as ErrConflict.
	CreateBooking(ctx context.Context, intent BookingIntent, build BuildReservation) (Reservation, bool, error)

	// TransitionStatus moves id from exactly `from` to `to` (compare-and-set).
	// A concurrent transition surfaces as ErrConflict.
	TransitionStatus(ctx context.Context, id string, from, to ReservationStatus, reason *string) error

	GetReservation(ctx context.Context, id string) (Reservation, error)
	GetByIdempotencyKey(ctx context.Context, key string) (Reservation, bool, error)

	// HasOverlap is the standalone availability pre-check: true when any
	// active reservation intersects [checkIn, checkOut) on any of roomIDs.
	HasOverlap(ctx context.Context, roomIDs []int64, checkIn, checkOut time.Time) (bool, error)

	// ListAvailableRooms returns the hotel's active rooms free for the
	// interval, optionally narrowed to a room set or a type.
	ListAvailableRooms(ctx context.Context, q AvailabilityQuery) ([]Room, error)

	// OccupiedRoomIDs returns, in one pass, the ids of the hotel's rooms
	// covered at `at` by a confirmed or checked-in reservation.
	OccupiedRoomIDs(ctx context.Context, hotelID int64, at time.Time) (map[int64]struct{}, error)

	// Housekeeping sweeps
	ListOverdueArrivals(ctx context.Context, checkInBefore time.Time) ([]Reservation, error)
	ListOverdueDepartures(ctx context.Context, checkOutBefore time.Time) ([]Reservation, error)
}

type AvailabilityQuery struct {
	HotelID  int64
	RoomIDs  []int64 // optional narrowing
	Type     *RoomType
	CheckIn  time.Time
	CheckOut time.Time
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Notifier delivers post-commit signals to collaborators (invoice creation,
// guest confirmation, dashboard refresh). Implementations are best-effort:
// they must never block or fail the booking write path.
type Notifier interface {
	ReservationCreated(ctx context.Context, r Reservation)
	ReservationCancelled(ctx context.Context, r Reservation)
	ReservationStatusChanged(ctx context.Context, r Reservation)
}
