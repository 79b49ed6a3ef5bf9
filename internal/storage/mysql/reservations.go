package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hotelcore/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the reservation reads
// run identically inside and outside the booking transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateBooking runs the whole booking write as one transaction:
//
//  1. replay lookup by idempotency key
//  2. lock the room rows (FOR UPDATE) and validate them
//  3. overlap re-check under those locks
//  4. build + insert the reservation and its stays
//  5. commit
//
// Duplicate-key and deadlock failures come back as domain.ErrConflict so the
// coordinator can retry the flow from the top.
func (r *Repo) CreateBooking(ctx context.Context, intent domain.BookingIntent, build domain.BuildReservation) (domain.Reservation, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Reservation{}, false, err
	}
	defer tx.Rollback()

	// 1) idempotent replay: a retried request gets the original row back.
	existing, found, err := getByIdemKey(ctx, tx, intent.IdempotencyKey)
	if err != nil {
		return domain.Reservation{}, false, translateErr(err)
	}
	if found {
		return existing, true, nil
	}

	// 2) lock + resolve the rooms. A missing, inactive, or foreign-hotel id
	// shows up as a short row count.
	rooms, err := lockRooms(ctx, tx, intent.HotelID, intent.RoomIDs)
	if err != nil {
		return domain.Reservation{}, false, translateErr(err)
	}
	if len(rooms) != len(intent.RoomIDs) {
		return domain.Reservation{}, false, domain.ErrNotFound
	}

	// 3) overlap re-check inside the same transaction. The pre-check a
	// client may have done outside is advisory only.
	blocked, err := hasOverlapLocked(ctx, tx, intent.RoomIDs, intent.CheckIn, intent.CheckOut)
	if err != nil {
		return domain.Reservation{}, false, translateErr(err)
	}
	if blocked {
		return domain.Reservation{}, false, domain.ErrConflict
	}

	// 4) price + row construction happens under the locks so the rate
	// snapshot cannot drift.
	res, err := build(orderRooms(rooms, intent.RoomIDs))
	if err != nil {
		return domain.Reservation{}, false, err
	}

	if _, err := tx.ExecContext(ctx, insertReservationSQL,
		res.ID,
		res.IdempotencyKey,
		res.HotelID,
		res.GuestID,
		valInt64(res.TargetGuestID),
		res.CheckIn,
		res.CheckOut,
		res.Nights,
		string(res.Status),
		string(res.PaymentStatus),
		res.TotalAmount,
		res.Currency,
		valJSON(res.GuestDetails),
	); err != nil {
		return domain.Reservation{}, false, translateErr(err)
	}
	for i, stay := range res.Rooms {
		if _, err := tx.ExecContext(ctx, insertStaySQL, res.ID, stay.RoomID, stay.NightlyRate, i); err != nil {
			return domain.Reservation{}, false, translateErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Reservation{}, false, translateErr(err)
	}
	return res, false, nil
}

func (r *Repo) TransitionStatus(ctx context.Context, id string, from, to domain.ReservationStatus, reason *string) error {
	res, err := r.db.ExecContext(ctx, transitionStatusSQL, string(to), valStr(reason), id, string(from))
	if err != nil {
		return translateErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish "gone" from "moved under us".
		if _, gerr := r.GetReservation(ctx, id); errors.Is(gerr, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *Repo) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	row := r.db.QueryRowContext(ctx, getReservationSQL, id)
	res, err := scanReservation(row)
	if err != nil {
		return domain.Reservation{}, translateErr(err)
	}
	if res.Rooms, err = loadStays(ctx, r.db, res.ID); err != nil {
		return domain.Reservation{}, translateErr(err)
	}
	return res, nil
}

func (r *Repo) GetByIdempotencyKey(ctx context.Context, key string) (domain.Reservation, bool, error) {
	res, found, err := getByIdemKey(ctx, r.db, key)
	return res, found, translateErr(err)
}

func (r *Repo) HasOverlap(ctx context.Context, roomIDs []int64, checkIn, checkOut time.Time) (bool, error) {
	return hasOverlap(ctx, r.db, roomIDs, checkIn, checkOut)
}

func (r *Repo) ListAvailableRooms(ctx context.Context, q domain.AvailabilityQuery) ([]domain.Room, error) {
	sqlStr := availableRoomsBase
	args := []any{q.HotelID, q.CheckOut, q.CheckIn}
	if q.Type != nil {
		sqlStr += " AND type = ?"
		args = append(args, string(*q.Type))
	}
	if len(q.RoomIDs) > 0 {
		sqlStr += " AND id IN (" + placeholders(len(q.RoomIDs)) + ")"
		args = append(args, int64Args(q.RoomIDs)...)
	}
	sqlStr += " ORDER BY number"

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	return collectRooms(rows)
}

func (r *Repo) OccupiedRoomIDs(ctx context.Context, hotelID int64, at time.Time) (map[int64]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, occupiedRoomIDsSQL, hotelID, at, at)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func (r *Repo) ListOverdueArrivals(ctx context.Context, checkInBefore time.Time) ([]domain.Reservation, error) {
	return r.listReservations(ctx, overdueArrivalsSQL, checkInBefore)
}

func (r *Repo) ListOverdueDepartures(ctx context.Context, checkOutBefore time.Time) ([]domain.Reservation, error) {
	return r.listReservations(ctx, overdueDeparturesSQL, checkOutBefore)
}

func (r *Repo) listReservations(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Rooms, err = loadStays(ctx, r.db, out[i].ID); err != nil {
			return nil, translateErr(err)
		}
	}
	return out, nil
}

// ---- shared tx/db helpers ----

func getByIdemKey(ctx context.Context, q querier, key string) (domain.Reservation, bool, error) {
	row := q.QueryRowContext(ctx, getByIdemKeySQL, key)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reservation{}, false, nil
	}
	if err != nil {
		return domain.Reservation{}, false, err
	}
	if res.Rooms, err = loadStays(ctx, q, res.ID); err != nil {
		return domain.Reservation{}, false, err
	}
	return res, true, nil
}

func lockRooms(ctx context.Context, q querier, hotelID int64, ids []int64) ([]domain.Room, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("lockRooms: empty id set")
	}
	sqlStr := lockRoomsPrefix + placeholders(len(ids)) + lockRoomsSuffix
	args := append([]any{hotelID}, int64Args(ids)...)
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRooms(rows)
}

func hasOverlap(ctx context.Context, q querier, roomIDs []int64, checkIn, checkOut time.Time) (bool, error) {
	if len(roomIDs) == 0 {
		return false, fmt.Errorf("hasOverlap: empty room set")
	}
	sqlStr := hasOverlapPrefix + placeholders(len(roomIDs)) + hasOverlapSuffix
	args := append([]any{checkOut, checkIn}, int64Args(roomIDs)...)

	var blocked bool
	if err := q.QueryRowContext(ctx, sqlStr, args...).Scan(&blocked); err != nil {
		return false, err
	}
	return blocked, nil
}

// hasOverlapLocked reads at the latest committed version instead of the
// transaction snapshot. Only meaningful inside the booking transaction, after
// the room rows are locked.
func hasOverlapLocked(ctx context.Context, q querier, roomIDs []int64, checkIn, checkOut time.Time) (bool, error) {
	if len(roomIDs) == 0 {
		return false, fmt.Errorf("hasOverlapLocked: empty room set")
	}
	sqlStr := hasOverlapForSharePrefix + placeholders(len(roomIDs)) + hasOverlapForShareSuffix
	args := append([]any{checkOut, checkIn}, int64Args(roomIDs)...)

	var one int
	err := q.QueryRowContext(ctx, sqlStr, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// orderRooms returns rooms in the order the intent requested them.
func orderRooms(rooms []domain.Room, ids []int64) []domain.Room {
	byID := make(map[int64]domain.Room, len(rooms))
	for _, rm := range rooms {
		byID[rm.ID] = rm
	}
	out := make([]domain.Room, 0, len(ids))
	for _, id := range ids {
		if rm, ok := byID[id]; ok {
			out = append(out, rm)
		}
	}
	return out
}

func loadStays(ctx context.Context, q querier, reservationID string) ([]domain.RoomStay, error) {
	rows, err := q.QueryContext(ctx, listStaysSQL, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RoomStay
	for rows.Next() {
		var s domain.RoomStay
		if err := rows.Scan(&s.RoomID, &s.NightlyRate); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanReservation(s rowScanner) (domain.Reservation, error) {
	var res domain.Reservation
	var (
		targetGuest  sql.NullInt64
		status       string
		payStatus    string
		cancelReason sql.NullString
		details      []byte
		createdAt    sql.NullTime
		updatedAt    sql.NullTime
	)
	if err := s.Scan(
		&res.ID,
		&res.IdempotencyKey,
		&res.HotelID,
		&res.GuestID,
		&targetGuest,
		&res.CheckIn,
		&res.CheckOut,
		&res.Nights,
		&status,
		&payStatus,
		&res.TotalAmount,
		&res.Currency,
		&cancelReason,
		&details,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Reservation{}, err
	}
	if targetGuest.Valid {
		v := targetGuest.Int64
		res.TargetGuestID = &v
	}
	res.Status = domain.ReservationStatus(status)
	res.PaymentStatus = domain.PaymentStatus(payStatus)
	if cancelReason.Valid {
		v := cancelReason.String
		res.CancelReason = &v
	}
	if len(details) > 0 {
		res.GuestDetails = details
	}
	if createdAt.Valid {
		res.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		res.UpdatedAt = updatedAt.Time
	}
	return res, nil
}
