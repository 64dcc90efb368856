package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchbot/pkg/models"
)

// IStorage is the composition root's single handle onto Postgres, mirrored
// after the teacher's repository-of-repositories: each sub-interface owns
// one table family and the pool is only exposed for migration bootstrap.
type IStorage interface {
	Driver() IDriverStorage
	Route() IRouteStorage
	Blocklist() IBlocklistStorage
	Close()
	GetPool() *pgxpool.Pool
}

// IDriverStorage resolves driver identity at WAITING_ID and the priority
// fields the queue's total order depends on.
type IDriverStorage interface {
	FindByID(ctx context.Context, driverID int64) (*models.Driver, error)
}

// IRouteStorage is the claim system's only write path: AssignIfAvailable
// is the optimistic conditional UPDATE of spec section 4.F, and
// DriverAlreadyAssigned backs the "you already have a route" check made
// before queue entry and before each claim.
type IRouteStorage interface {
	ListAvailableForVehicle(ctx context.Context, vehicleType string) ([]models.Route, error)
	ListAvailableExcludingVehicle(ctx context.Context, vehicleType string) ([]models.Route, error)
	GetByID(ctx context.Context, routeID string) (*models.Route, error)
	AssignIfAvailable(ctx context.Context, routeID string, driverID int64) (bool, error)
	DriverAlreadyAssigned(ctx context.Context, driverID int64) (*models.Route, error)
}

// IBlocklistStorage backs the queue engine's blocklist-deferral check.
type IBlocklistStorage interface {
	IsActive(ctx context.Context, driverID int64) (bool, error)
}
