package models

type BlocklistStatus string

const (
	BlocklistActive   BlocklistStatus = "ACTIVE"
	BlocklistInactive BlocklistStatus = "INACTIVE"
)

// BlocklistEntry marks a driver who is served only behind non-blocklisted
// drivers, after the deferral window elapses.
type BlocklistEntry struct {
	DriverID int64           `json:"driver_id"`
	Status   BlocklistStatus `json:"status"`
}
