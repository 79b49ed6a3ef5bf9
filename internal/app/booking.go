package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"hotelcore/internal/adapters/observability"
	"hotelcore/internal/domain"
)

// cancelGrace is how long past check-in day start a pending/confirmed
// reservation remains guest-cancellable.
const cancelGrace = 24 * time.Hour

// BookingService is the booking transaction coordinator: the only component
// that mutates the reservation store, and the only one permitted to retry.
type BookingService struct {
	rooms        domain.RoomRepository
	reservations domain.ReservationRepository
	cache        domain.Cache
	notifier     domain.Notifier
	maxAttempts  int
}

func NewBookingService(rooms domain.RoomRepository, reservations domain.ReservationRepository, cache domain.Cache, n domain.Notifier, maxAttempts int) *BookingService {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &BookingService{
		rooms:        rooms,
		reservations: reservations,
		cache:        cache,
		notifier:     n,
		maxAttempts:  maxAttempts,
	}
}

type CreateBookingRequest struct {
	HotelID        int64
	RoomIDs        []int64
	CheckIn        time.Time
	CheckOut       time.Time
	GuestID        int64
	TargetGuestID  *int64
	IdempotencyKey string
	GuestDetails   json.RawMessage
	Currency       string

	// Staff/admin only
	OverrideAmount       *float64
	InitialStatus        *domain.ReservationStatus
	InitialPaymentStatus *domain.PaymentStatus
}

func (r *CreateBookingRequest) validate() error {
	if r.HotelID <= 0 {
		return domain.Validationf("hotelId", "must be positive")
	}
	if len(r.RoomIDs) == 0 {
		return domain.Validationf("roomIds", "must not be empty")
	}
	seen := make(map[int64]struct{}, len(r.RoomIDs))
	for _, id := range r.RoomIDs {
		if id <= 0 {
			return domain.Validationf("roomIds", "room id must be positive")
		}
		if _, dup := seen[id]; dup {
			return domain.Validationf("roomIds", "duplicate room id %d", id)
		}
		seen[id] = struct{}{}
	}
	if r.GuestID <= 0 {
		return domain.Validationf("guestId", "must be positive")
	}
	if r.IdempotencyKey == "" {
		return domain.Validationf("idempotencyKey", "must not be empty")
	}
	if !r.CheckIn.Before(r.CheckOut) {
		return domain.Validationf("checkOut", "must be after checkIn")
	}
	if r.OverrideAmount != nil && *r.OverrideAmount < 0 {
		return domain.Validationf("overrideAmount", "must not be negative")
	}
	if r.InitialStatus != nil && !r.InitialStatus.IsValid() {
		return domain.Validationf("initialStatus", "unknown status %q", string(*r.InitialStatus))
	}
	if r.InitialPaymentStatus != nil && !r.InitialPaymentStatus.IsValid() {
		return domain.Validationf("initialPaymentStatus", "unknown status %q", string(*r.InitialPaymentStatus))
	}
	return nil
}

// CreateBooking validates up front (never retried), then drives the atomic
// create with a bounded retry loop: duplicate-key and lock conflicts restart
// the flow from the idempotency lookup, so a racing duplicate resolves into
// a replay on the next attempt.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (domain.Reservation, error) {
	if err := req.validate(); err != nil {
		observability.ObserveBooking("invalid")
		return domain.Reservation{}, err
	}

	req.CheckIn = domain.ToDay(req.CheckIn)
	req.CheckOut = domain.ToDay(req.CheckOut)
	if domain.Nights(req.CheckIn, req.CheckOut) < 1 {
		observability.ObserveBooking("invalid")
		return domain.Reservation{}, domain.Validationf("checkOut", "stay must be at least one night")
	}

	intent := domain.BookingIntent{
		HotelID:        req.HotelID,
		RoomIDs:        req.RoomIDs,
		IdempotencyKey: req.IdempotencyKey,
		CheckIn:        req.CheckIn,
		CheckOut:       req.CheckOut,
	}

	var (
		res      domain.Reservation
		replayed bool
		err      error
	)
	for attempt := 1; ; attempt++ {
		res, replayed, err = s.reservations.CreateBooking(ctx, intent, func(rooms []domain.Room) (domain.Reservation, error) {
			return s.buildReservation(req, rooms)
		})
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrConflict) && attempt < s.maxAttempts {
			log.Debug().
				Str("key", req.IdempotencyKey).
				Int("attempt", attempt).
				Msg("booking conflict, retrying")
			continue
		}
		if errors.Is(err, domain.ErrConflict) {
			observability.ObserveBooking("conflict")
			return domain.Reservation{}, fmt.Errorf("rooms no longer available: %w", domain.ErrConflict)
		}
		observability.ObserveBooking("error")
		return domain.Reservation{}, err
	}

	if replayed {
		observability.ObserveBooking("replayed")
		return res, nil
	}

	observability.ObserveBooking("created")
	log.Info().
		Str("reservation", res.ID).
		Int64("hotel", res.HotelID).
		Int("nights", res.Nights).
		Float64("total", res.TotalAmount).
		Msg("booking created")

	s.afterCommit(res, func(ctx context.Context, r domain.Reservation) {
		s.notifier.ReservationCreated(ctx, r)
	})
	return res, nil
}

// buildReservation runs inside the store transaction, after the rooms were
// locked and validated. Rate snapshots come from the locked rows.
func (s *BookingService) buildReservation(req CreateBookingRequest, rooms []domain.Room) (domain.Reservation, error) {
	nights := domain.Nights(req.CheckIn, req.CheckOut)

	stays := make([]domain.RoomStay, len(rooms))
	var total float64
	for i, rm := range rooms {
		stays[i] = domain.RoomStay{RoomID: rm.ID, NightlyRate: rm.CurrentRate}
		total += rm.CurrentRate * float64(nights)
	}
	if req.OverrideAmount != nil {
		total = *req.OverrideAmount
	}

	status := domain.StatusPending
	if req.InitialStatus != nil {
		status = *req.InitialStatus
	}
	payStatus := domain.PaymentPending
	if req.InitialPaymentStatus != nil {
		payStatus = *req.InitialPaymentStatus
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	now := time.Now().UTC()
	return domain.Reservation{
		ID:             uuid.NewString(),
		IdempotencyKey: req.IdempotencyKey,
		HotelID:        req.HotelID,
		GuestID:        req.GuestID,
		TargetGuestID:  req.TargetGuestID,
		Rooms:          stays,
		CheckIn:        req.CheckIn,
		CheckOut:       req.CheckOut,
		Nights:         nights,
		Status:         status,
		PaymentStatus:  payStatus,
		TotalAmount:    total,
		Currency:       currency,
		GuestDetails:   req.GuestDetails,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Cancel transitions a cancellable reservation to cancelled, permanently
// excluding it from the overlap invariant and freeing its inventory.
func (s *BookingService) Cancel(ctx context.Context, id, reason string) (domain.Reservation, error) {
	if reason == "" {
		return domain.Reservation{}, domain.Validationf("reason", "must not be empty")
	}

	for attempt := 1; ; attempt++ {
		res, err := s.reservations.GetReservation(ctx, id)
		if err != nil {
			return domain.Reservation{}, err
		}
		if !res.Status.Cancellable() {
			return domain.Reservation{}, fmt.Errorf("cannot cancel reservation in status %s: %w", res.Status, domain.ErrInvalidState)
		}
		if !time.Now().UTC().Before(res.CheckIn.Add(cancelGrace)) {
			return domain.Reservation{}, fmt.Errorf("cancellation window closed: %w", domain.ErrInvalidState)
		}

		err = s.reservations.TransitionStatus(ctx, id, res.Status, domain.StatusCancelled, &reason)
		if errors.Is(err, domain.ErrConflict) && attempt < s.maxAttempts {
			continue // somebody moved the status; re-read and re-validate
		}
		if err != nil {
			return domain.Reservation{}, err
		}

		res.Status = domain.StatusCancelled
		res.CancelReason = &reason
		observability.ObserveBooking("cancelled")
		log.Info().Str("reservation", id).Str("reason", reason).Msg("booking cancelled")

		s.afterCommit(res, func(ctx context.Context, r domain.Reservation) {
			s.notifier.ReservationCancelled(ctx, r)
		})
		return res, nil
	}
}

// UpdateStatus drives staff transitions along the lifecycle graph. Check-in
// and check-out also update the rooms' persisted status, so housekeeping sees
// dirty rooms without consulting reservations.
func (s *BookingService) UpdateStatus(ctx context.Context, id string, next domain.ReservationStatus) (domain.Reservation, error) {
	if !next.IsValid() {
		return domain.Reservation{}, domain.Validationf("status", "unknown status %q", string(next))
	}

	for attempt := 1; ; attempt++ {
		res, err := s.reservations.GetReservation(ctx, id)
		if err != nil {
			return domain.Reservation{}, err
		}
		if !res.Status.CanTransition(next) {
			return domain.Reservation{}, fmt.Errorf("cannot move %s to %s: %w", res.Status, next, domain.ErrInvalidState)
		}

		err = s.reservations.TransitionStatus(ctx, id, res.Status, next, nil)
		if errors.Is(err, domain.ErrConflict) && attempt < s.maxAttempts {
			continue
		}
		if err != nil {
			return domain.Reservation{}, err
		}

		res.Status = next
		s.applyRoomSideEffects(ctx, res)
		observability.ObserveBooking(string(next))

		s.afterCommit(res, func(ctx context.Context, r domain.Reservation) {
			s.notifier.ReservationStatusChanged(ctx, r)
		})
		return res, nil
	}
}

func (s *BookingService) applyRoomSideEffects(ctx context.Context, res domain.Reservation) {
	var st domain.RoomStatus
	switch res.Status {
	case domain.StatusCheckedIn:
		st = domain.RoomOccupied
	case domain.StatusCheckedOut:
		st = domain.RoomDirty
	default:
		return
	}
	for _, stay := range res.Rooms {
		if err := s.rooms.SetRoomStatus(ctx, stay.RoomID, st); err != nil {
			log.Warn().Err(err).Int64("room", stay.RoomID).Str("status", string(st)).Msg("room status update failed")
		}
	}
}

// afterCommit runs post-commit collaborators on a detached context so a
// disconnecting client or slow webhook can never unwind a committed booking.
func (s *BookingService) afterCommit(res domain.Reservation, notify func(context.Context, domain.Reservation)) {
	if s.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.cache.Del(ctx, roomStatusKey(res.HotelID))
	}
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		notify(ctx, res)
	}()
}

func roomStatusKey(hotelID int64) string {
	return fmt.Sprintf("roomstatus:%d", hotelID)
}
