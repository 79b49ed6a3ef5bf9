package mysql

import (
	"context"
	"database/sql"

	"hotelcore/internal/domain"
)

func (r *Repo) CreateRoom(ctx context.Context, rm domain.Room) (int64, error) {
	if rm.Status == "" {
		rm.Status = domain.RoomVacant
	}
	res, err := r.db.ExecContext(ctx, insertRoomSQL,
		rm.HotelID,
		rm.Number,
		string(rm.Type),
		rm.Floor,
		rm.Capacity,
		rm.BaseRate,
		rm.CurrentRate,
		rm.Active,
		string(rm.Status),
	)
	if err != nil {
		return 0, translateErr(err)
	}
	return res.LastInsertId()
}

func (r *Repo) UpdateRoom(ctx context.Context, rm domain.Room) error {
	res, err := r.db.ExecContext(ctx, updateRoomSQL,
		rm.Number,
		string(rm.Type),
		rm.Floor,
		rm.Capacity,
		rm.BaseRate,
		rm.CurrentRate,
		rm.ID,
	)
	if err != nil {
		return translateErr(err)
	}
	return noneAffectedIsNotFound(res)
}

func (r *Repo) SetRoomStatus(ctx context.Context, roomID int64, st domain.RoomStatus) error {
	res, err := r.db.ExecContext(ctx, setRoomStatusSQL, string(st), roomID)
	if err != nil {
		return translateErr(err)
	}
	return noneAffectedIsNotFound(res)
}

func (r *Repo) DeactivateRoom(ctx context.Context, roomID int64) error {
	res, err := r.db.ExecContext(ctx, deactivateRoomSQL, roomID)
	if err != nil {
		return translateErr(err)
	}
	return noneAffectedIsNotFound(res)
}

func (r *Repo) GetRoom(ctx context.Context, hotelID, roomID int64) (domain.Room, error) {
	row := r.db.QueryRowContext(ctx, getRoomSQL, hotelID, roomID)
	rm, err := scanRoom(row)
	if err != nil {
		return domain.Room{}, translateErr(err)
	}
	return rm, nil
}

func (r *Repo) ListRooms(ctx context.Context, hotelID int64) ([]domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, listRoomsSQL, hotelID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	return collectRooms(rows)
}

// ---- scanning ----

type rowScanner interface{ Scan(dest ...any) error }

func scanRoom(s rowScanner) (domain.Room, error) {
	var rm domain.Room
	var typ, status string
	if err := s.Scan(
		&rm.ID,
		&rm.HotelID,
		&rm.Number,
		&typ,
		&rm.Floor,
		&rm.Capacity,
		&rm.BaseRate,
		&rm.CurrentRate,
		&rm.Active,
		&status,
	); err != nil {
		return domain.Room{}, err
	}
	rm.Type = domain.RoomType(typ)
	rm.Status = domain.RoomStatus(status)
	return rm, nil
}

func collectRooms(rows *sql.Rows) ([]domain.Room, error) {
	var out []domain.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func noneAffectedIsNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
