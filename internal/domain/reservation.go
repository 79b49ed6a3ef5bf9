package domain

import "time"

// ReservationStatus is the booking lifecycle state.
type ReservationStatus string

const (
	StatusPending    ReservationStatus = "pending"
	StatusConfirmed  ReservationStatus = "confirmed"
	StatusCheckedIn  ReservationStatus = "checked_in"
	StatusCheckedOut ReservationStatus = "checked_out"
	StatusCancelled  ReservationStatus = "cancelled"
	StatusNoShow     ReservationStatus = "no_show"
)

func (s ReservationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCheckedIn, StatusCheckedOut,
		StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Active reports whether the reservation still holds inventory, i.e. takes
// part in the overlap invariant.
func (s ReservationStatus) Active() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCheckedIn:
		return true
	}
	return false
}

// Occupying reports whether the reservation makes its rooms show as occupied.
// Pending holds inventory but the guest has not arrived.
func (s ReservationStatus) Occupying() bool {
	return s == StatusConfirmed || s == StatusCheckedIn
}

// Cancellable reports whether a guest-facing cancel is still permitted.
func (s ReservationStatus) Cancellable() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransition reports whether to is a legal next state.
func (s ReservationStatus) CanTransition(to ReservationStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCheckedIn || to == StatusCancelled || to == StatusNoShow
	case StatusCheckedIn:
		return to == StatusCheckedOut
	}
	// checked_out, cancelled, no_show are terminal
	return false
}

// PaymentStatus tracks settlement independently of the stay lifecycle.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentRefunded, PaymentFailed:
		return true
	}
	return false
}

// RoomStay is one booked room with the nightly rate snapshotted at booking
// time, so later rate edits never alter historical totals.
type RoomStay struct {
	RoomID      int64
	NightlyRate float64
}

type Reservation struct {
	ID             string
	IdempotencyKey string
	HotelID        int64
	GuestID        int64
	TargetGuestID  *int64 // set when staff book on a guest's behalf
	Rooms          []RoomStay
	CheckIn        time.Time // UTC midnight
	CheckOut       time.Time // UTC midnight, exclusive
	Nights         int
	Status         ReservationStatus
	PaymentStatus  PaymentStatus
	TotalAmount    float64
	Currency       string
	CancelReason   *string
	GuestDetails   []byte // raw JSON as supplied by the client
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CoversRoomAt reports whether this reservation occupies roomID at the given
// instant under half-open interval semantics.
func (r *Reservation) CoversRoomAt(roomID int64, at time.Time) bool {
	if !r.Status.Occupying() {
		return false
	}
	if at.Before(r.CheckIn) || !at.Before(r.CheckOut) {
		return false
	}
	for _, rs := range r.Rooms {
		if rs.RoomID == roomID {
			return true
		}
	}
	return false
}

// Nights is the whole-day length of [checkIn, checkOut).
func Nights(checkIn, checkOut time.Time) int {
	return int(checkOut.Sub(checkIn) / (24 * time.Hour))
}

// Overlaps is the half-open interval intersection test: a checkout on day N
// and a check-in on day N for the same room do not collide.
func Overlaps(aIn, aOut, bIn, bOut time.Time) bool {
	return aIn.Before(bOut) && aOut.After(bIn)
}

// ToDay truncates a timestamp to UTC midnight, the granularity all stay
// intervals are kept at.
func ToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
