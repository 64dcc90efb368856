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

type driverRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewDriverRepo(db *pgxpool.Pool, log logger.ILogger) storage.IDriverStorage {
	return &driverRepo{db: db, log: log}
}

// ErrDriverNotFound is returned by FindByID when the chat's typed ID does
// not match any registered driver, the trigger for the UnknownDriver
// error kind at WAITING_ID.
var ErrDriverNotFound = errors.New("postgres: driver not found")

func (r *driverRepo) FindByID(ctx context.Context, driverID int64) (*models.Driver, error) {
	query := `SELECT id, name, vehicle_type, priority_score FROM drivers WHERE id = $1`

	var d models.Driver
	err := r.db.QueryRow(ctx, query, driverID).Scan(&d.ID, &d.Name, &d.VehicleType, &d.PriorityScore)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDriverNotFound
	}
	if err != nil {
		r.log.Error("failed to find driver", logger.Error(err))
		return nil, err
	}
	return &d, nil
}
