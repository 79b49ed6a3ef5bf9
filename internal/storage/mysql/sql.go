package mysql

// -----------------------------------------------------------------------------
// ROOMS
// -----------------------------------------------------------------------------

const insertRoomSQL = `
INSERT INTO rooms
  (hotel_id, number, type, floor, capacity, base_rate, current_rate, active, status)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const updateRoomSQL = `
UPDATE rooms SET
  number       = ?,
  type         = ?,
  floor        = ?,
  capacity     = ?,
  base_rate    = ?,
  current_rate = ?,
  updated_at   = CURRENT_TIMESTAMP
WHERE id = ?
`

const setRoomStatusSQL = `
UPDATE rooms SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
`

const deactivateRoomSQL = `
UPDATE rooms SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?
`

const roomColumns = `
  id, hotel_id, number, type, floor, capacity, base_rate, current_rate, active, status
`

const getRoomSQL = `
SELECT` + roomColumns + `
FROM rooms
WHERE hotel_id = ? AND id = ?
`

const listRoomsSQL = `
SELECT` + roomColumns + `
FROM rooms
WHERE hotel_id = ? AND active = 1
ORDER BY number
`

// lockRoomsPrefix locks the requested room rows for the duration of the
// booking transaction. Serializing writers on the room rows is what closes
// the check-then-insert race between concurrent bookings.
const lockRoomsPrefix = `
SELECT` + roomColumns + `
FROM rooms
WHERE hotel_id = ? AND active = 1 AND id IN (`

const lockRoomsSuffix = `) FOR UPDATE`

// -----------------------------------------------------------------------------
// RESERVATIONS
// -----------------------------------------------------------------------------

const insertReservationSQL = `
INSERT INTO reservations
  (id, idempotency_key, hotel_id, guest_id, target_guest_id,
   check_in, check_out, nights, status, payment_status,
   total_amount, currency, guest_details)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertStaySQL = `
INSERT INTO reservation_rooms (reservation_id, room_id, nightly_rate, position)
VALUES (?, ?, ?, ?)
`

const reservationColumns = `
  id, idempotency_key, hotel_id, guest_id, target_guest_id,
  check_in, check_out, nights, status, payment_status,
  total_amount, currency, cancel_reason, guest_details, created_at, updated_at
`

const getReservationSQL = `
SELECT` + reservationColumns + `
FROM reservations
WHERE id = ?
`

const getByIdemKeySQL = `
SELECT` + reservationColumns + `
FROM reservations
WHERE idempotency_key = ?
`

const listStaysSQL = `
SELECT room_id, nightly_rate
FROM reservation_rooms
WHERE reservation_id = ?
ORDER BY position
`

// transitionStatusSQL is a compare-and-set: zero rows affected means the
// reservation moved under us (or never existed).
const transitionStatusSQL = `
UPDATE reservations
SET status = ?, cancel_reason = COALESCE(?, cancel_reason), updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = ?
`

// hasOverlapPrefix tests half-open interval intersection against active
// reservations: R blocks [in, out) iff R.check_in < out AND R.check_out > in.
const hasOverlapPrefix = `
SELECT EXISTS (
  SELECT 1
  FROM reservations r
  JOIN reservation_rooms rr ON rr.reservation_id = r.id
  WHERE r.status IN ('pending','confirmed','checked_in')
    AND r.check_in < ? AND r.check_out > ?
    AND rr.room_id IN (`

const hasOverlapSuffix = `)
)`

// hasOverlapForShare is the in-transaction form of the overlap check. It must
// be a locking read: the transaction's consistent snapshot predates the room
// locks, so a plain SELECT would miss a competing reservation committed while
// we waited on them.
const hasOverlapForSharePrefix = `
SELECT 1
FROM reservations r
JOIN reservation_rooms rr ON rr.reservation_id = r.id
WHERE r.status IN ('pending','confirmed','checked_in')
  AND r.check_in < ? AND r.check_out > ?
  AND rr.room_id IN (`

const hasOverlapForShareSuffix = `)
LIMIT 1
FOR SHARE`

const occupiedRoomIDsSQL = `
SELECT DISTINCT rr.room_id
FROM reservations r
JOIN reservation_rooms rr ON rr.reservation_id = r.id
WHERE r.hotel_id = ?
  AND r.status IN ('confirmed','checked_in')
  AND r.check_in <= ? AND r.check_out > ?
`

// availableRoomsBase filters the hotel's sellable rooms down to those with no
// active reservation intersecting the interval. Out-of-service rooms are not
// offered to search even when their dates are free.
const availableRoomsBase = `
SELECT` + roomColumns + `
FROM rooms
WHERE hotel_id = ? AND active = 1
  AND status NOT IN ('maintenance','out_of_order')
  AND NOT EXISTS (
    SELECT 1
    FROM reservations r
    JOIN reservation_rooms rr ON rr.reservation_id = r.id
    WHERE rr.room_id = rooms.id
      AND r.status IN ('pending','confirmed','checked_in')
      AND r.check_in < ? AND r.check_out > ?
  )
`

const overdueArrivalsSQL = `
SELECT` + reservationColumns + `
FROM reservations
WHERE status = 'confirmed' AND check_in < ?
ORDER BY check_in
`

const overdueDeparturesSQL = `
SELECT` + reservationColumns + `
FROM reservations
WHERE status = 'checked_in' AND check_out <= ?
ORDER BY check_out
`
