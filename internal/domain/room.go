package domain

// RoomType classifies a sellable room.
type RoomType string

const (
	RoomSingle RoomType = "single"
	RoomDouble RoomType = "double"
	RoomSuite  RoomType = "suite"
	RoomDeluxe RoomType = "deluxe"
)

func (t RoomType) IsValid() bool {
	switch t {
	case RoomSingle, RoomDouble, RoomSuite, RoomDeluxe:
		return true
	}
	return false
}

// RoomStatus is the persisted status column. It is authoritative only for
// out-of-service states; "occupied" must come from the occupancy resolver,
// which derives it from active reservations.
type RoomStatus string

const (
	RoomVacant      RoomStatus = "vacant"
	RoomOccupied    RoomStatus = "occupied"
	RoomDirty       RoomStatus = "dirty"
	RoomMaintenance RoomStatus = "maintenance"
	RoomOutOfOrder  RoomStatus = "out_of_order"
)

func (s RoomStatus) IsValid() bool {
	switch s {
	case RoomVacant, RoomOccupied, RoomDirty, RoomMaintenance, RoomOutOfOrder:
		return true
	}
	return false
}

type Room struct {
	ID          int64
	HotelID     int64
	Number      string
	Type        RoomType
	Floor       int
	Capacity    int
	BaseRate    float64
	CurrentRate float64
	Active      bool
	Status      RoomStatus
}

// ResolveStatus computes the live status of a room. A room covered by a
// confirmed or checked-in reservation is occupied regardless of the persisted
// column; otherwise the persisted status stands.
func ResolveStatus(room Room, occupied bool) RoomStatus {
	if occupied {
		return RoomOccupied
	}
	if room.Status == RoomOccupied {
		// Persisted "occupied" with no covering reservation is stale.
		return RoomVacant
	}
	return room.Status
}

// RoomStatusView pairs a room with its computed status for dashboards.
type RoomStatusView struct {
	Room           Room
	ComputedStatus RoomStatus
}
