package models

import "time"

type RouteStatus string

const (
	RouteAvailable RouteStatus = "AVAILABLE"
	RouteAssigned  RouteStatus = "ASSIGNED"
	RouteBlocked   RouteStatus = "BLOCKED"
)

// Route is shared across the core and the external spreadsheet export.
type Route struct {
	ID           string      `json:"id"`
	VehicleType  string      `json:"vehicle_type"`
	FromLocation string      `json:"from_location"`
	ToLocation   string      `json:"to_location"`
	Price        int         `json:"price"`
	DriverID     *int64      `json:"driver_id"`
	Status       RouteStatus `json:"status"`
	AssignedAt   *time.Time  `json:"assigned_at"`
}

// RouteRef is the snapshot stored inside a DriverSession's
// AvailableRoutes. It is taken at CHOOSING_ROUTE entry and is never
// refreshed against live data on wakeup — the claim executor is the only
// place routes are re-validated.
type RouteRef struct {
	ID           string `json:"id"`
	FromLocation string `json:"from_location"`
	ToLocation   string `json:"to_location"`
	Price        int    `json:"price"`
}
