// Package claim implements the orchestration core's only write path
// against route state: the optimistic conditional claim of spec section
// 4.F and its best-effort external export.
package claim

import (
	"context"
	"errors"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

// ErrClaimRaced is returned when the conditional UPDATE affects zero
// rows: the route was already taken by another driver's session between
// the menu render and this claim attempt.
var ErrClaimRaced = errors.New("claim: route no longer available")

// ExportSink is the best-effort external writeback (spreadsheet, ledger,
// whatever downstream system the dispatcher's office keeps). Its failure
// is logged and never reverses a committed claim: the database, not the
// export sink, is authoritative.
type ExportSink interface {
	ExportAssignment(ctx context.Context, route models.Route, driver models.Driver) error
}

// Executor is the single place route ownership changes.
type Executor struct {
	routes storage.IRouteStorage
	export ExportSink
	log    logger.ILogger
}

func NewExecutor(routes storage.IRouteStorage, export ExportSink, log logger.ILogger) *Executor {
	return &Executor{routes: routes, export: export, log: log}
}

// Claim attempts to assign routeID to driver. On success it also fires
// the best-effort export; an export failure is logged but the returned
// route and error are unaffected, since the commit already happened.
func (e *Executor) Claim(ctx context.Context, driver models.Driver, routeID string) (*models.Route, error) {
	ok, err := e.routes.AssignIfAvailable(ctx, routeID, driver.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrClaimRaced
	}

	route, err := e.routes.GetByID(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, ErrClaimRaced
	}

	if e.export != nil {
		if err := e.export.ExportAssignment(ctx, *route, driver); err != nil {
			e.log.Warning("external export failed, keeping DB assignment",
				logger.String("route_id", routeID), logger.Int64("driver_id", driver.ID), logger.Error(err))
		}
	}

	return route, nil
}

// AlreadyAssigned implements the belt-and-braces check of spec section
// 4.F: called both before a driver enters the queue and again before
// each claim, so the same human driving two chats can't double-book.
func (e *Executor) AlreadyAssigned(ctx context.Context, driverID int64) (*models.Route, error) {
	return e.routes.DriverAlreadyAssigned(ctx, driverID)
}
