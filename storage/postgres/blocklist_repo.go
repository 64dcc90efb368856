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

type blocklistRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewBlocklistRepo(db *pgxpool.Pool, log logger.ILogger) storage.IBlocklistStorage {
	return &blocklistRepo{db: db, log: log}
}

func (r *blocklistRepo) IsActive(ctx context.Context, driverID int64) (bool, error) {
	query := `SELECT status FROM blocklist WHERE driver_id = $1`

	var status models.BlocklistStatus
	err := r.db.QueryRow(ctx, query, driverID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		r.log.Error("failed to check blocklist", logger.Error(err))
		return false, err
	}
	return status == models.BlocklistActive, nil
}
