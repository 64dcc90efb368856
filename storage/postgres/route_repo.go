package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

type routeRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewRouteRepo(db *pgxpool.Pool, log logger.ILogger) storage.IRouteStorage {
	return &routeRepo{db: db, log: log}
}

func (r *routeRepo) ListAvailableForVehicle(ctx context.Context, vehicleType string) ([]models.Route, error) {
	query := `
		SELECT id, vehicle_type, from_location, to_location, price, driver_id, status, assigned_at
		FROM routes
		WHERE vehicle_type = $1 AND status = $2
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, vehicleType, models.RouteAvailable)
	if err != nil {
		r.log.Error("failed to list available routes", logger.Error(err))
		return nil, err
	}
	defer rows.Close()

	var routes []models.Route
	for rows.Next() {
		var route models.Route
		if err := rows.Scan(&route.ID, &route.VehicleType, &route.FromLocation, &route.ToLocation,
			&route.Price, &route.DriverID, &route.Status, &route.AssignedAt); err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

func (r *routeRepo) ListAvailableExcludingVehicle(ctx context.Context, vehicleType string) ([]models.Route, error) {
	query := `
		SELECT id, vehicle_type, from_location, to_location, price, driver_id, status, assigned_at
		FROM routes
		WHERE vehicle_type != $1 AND status = $2
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, vehicleType, models.RouteAvailable)
	if err != nil {
		r.log.Error("failed to list available routes", logger.Error(err))
		return nil, err
	}
	defer rows.Close()

	var routes []models.Route
	for rows.Next() {
		var route models.Route
		if err := rows.Scan(&route.ID, &route.VehicleType, &route.FromLocation, &route.ToLocation,
			&route.Price, &route.DriverID, &route.Status, &route.AssignedAt); err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

func (r *routeRepo) GetByID(ctx context.Context, routeID string) (*models.Route, error) {
	query := `
		SELECT id, vehicle_type, from_location, to_location, price, driver_id, status, assigned_at
		FROM routes
		WHERE id = $1
	`
	var route models.Route
	err := r.db.QueryRow(ctx, query, routeID).Scan(&route.ID, &route.VehicleType, &route.FromLocation,
		&route.ToLocation, &route.Price, &route.DriverID, &route.Status, &route.AssignedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("failed to get route", logger.Error(err))
		return nil, err
	}
	return &route, nil
}

// AssignIfAvailable is the optimistic conditional claim of spec section
// 4.F: it wins only when the row is still AVAILABLE and unassigned at the
// instant the UPDATE runs, so two drivers racing on the same route always
// leave exactly one winner regardless of application-level timing.
func (r *routeRepo) AssignIfAvailable(ctx context.Context, routeID string, driverID int64) (bool, error) {
	query := `
		UPDATE routes
		SET status = $1, driver_id = $2, assigned_at = now()
		WHERE id = $3 AND status = $4 AND driver_id IS NULL
	`
	tag, err := r.db.Exec(ctx, query, models.RouteAssigned, driverID, routeID, models.RouteAvailable)
	if err != nil {
		r.log.Error("failed to assign route", logger.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DriverAlreadyAssigned returns the most recently assigned ASSIGNED route
// held by driverID, or nil if it holds none. The session machine checks it
// before a driver enters the queue and again before each claim.
func (r *routeRepo) DriverAlreadyAssigned(ctx context.Context, driverID int64) (*models.Route, error) {
	query := `
		SELECT id, vehicle_type, from_location, to_location, price, driver_id, status, assigned_at
		FROM routes
		WHERE driver_id = $1 AND status = $2
		ORDER BY assigned_at DESC
		LIMIT 1
	`
	var route models.Route
	err := r.db.QueryRow(ctx, query, driverID, models.RouteAssigned).Scan(&route.ID, &route.VehicleType,
		&route.FromLocation, &route.ToLocation, &route.Price, &route.DriverID, &route.Status, &route.AssignedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("failed to check existing assignment", logger.Error(err))
		return nil, err
	}
	return &route, nil
}
