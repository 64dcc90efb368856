package claim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
)

type fakeRouteStorage struct {
	routes     map[string]*models.Route
	assignedTo map[int64]*models.Route
	assignErr  error
	assignOK   bool
}

func newFakeRouteStorage() *fakeRouteStorage {
	return &fakeRouteStorage{routes: make(map[string]*models.Route), assignedTo: make(map[int64]*models.Route)}
}

func (f *fakeRouteStorage) ListAvailableForVehicle(ctx context.Context, vehicleType string) ([]models.Route, error) {
	return nil, nil
}

func (f *fakeRouteStorage) ListAvailableExcludingVehicle(ctx context.Context, vehicleType string) ([]models.Route, error) {
	return nil, nil
}

func (f *fakeRouteStorage) GetByID(ctx context.Context, routeID string) (*models.Route, error) {
	return f.routes[routeID], nil
}

func (f *fakeRouteStorage) AssignIfAvailable(ctx context.Context, routeID string, driverID int64) (bool, error) {
	if f.assignErr != nil {
		return false, f.assignErr
	}
	if !f.assignOK {
		return false, nil
	}
	r := f.routes[routeID]
	r.DriverID = &driverID
	r.Status = models.RouteAssigned
	return true, nil
}

func (f *fakeRouteStorage) DriverAlreadyAssigned(ctx context.Context, driverID int64) (*models.Route, error) {
	return f.assignedTo[driverID], nil
}

type fakeExportSink struct {
	err     error
	called  bool
	lastRte models.Route
}

func (f *fakeExportSink) ExportAssignment(ctx context.Context, route models.Route, driver models.Driver) error {
	f.called = true
	f.lastRte = route
	return f.err
}

func testLogger() logger.ILogger { return logger.New("test") }

func TestClaimSucceedsAndExports(t *testing.T) {
	routes := newFakeRouteStorage()
	routes.assignOK = true
	routes.routes["R1"] = &models.Route{ID: "R1", Status: models.RouteAvailable}
	export := &fakeExportSink{}

	e := NewExecutor(routes, export, testLogger())
	driver := models.Driver{ID: 7, Name: "Ana"}

	route, err := e.Claim(context.Background(), driver, "R1")
	require.NoError(t, err)
	require.NotNil(t, route)
	assert.Equal(t, models.RouteAssigned, route.Status)
	assert.True(t, export.called)
	assert.Equal(t, "R1", export.lastRte.ID)
}

func TestClaimReturnsErrClaimRacedWhenAssignFails(t *testing.T) {
	routes := newFakeRouteStorage()
	routes.assignOK = false
	routes.routes["R1"] = &models.Route{ID: "R1", Status: models.RouteAssigned}

	e := NewExecutor(routes, nil, testLogger())
	driver := models.Driver{ID: 7}

	_, err := e.Claim(context.Background(), driver, "R1")
	assert.ErrorIs(t, err, ErrClaimRaced)
}

func TestClaimSurvivesExportFailure(t *testing.T) {
	routes := newFakeRouteStorage()
	routes.assignOK = true
	routes.routes["R1"] = &models.Route{ID: "R1", Status: models.RouteAvailable}
	export := &fakeExportSink{err: assertError{"sheets down"}}

	e := NewExecutor(routes, export, testLogger())
	driver := models.Driver{ID: 7}

	route, err := e.Claim(context.Background(), driver, "R1")
	require.NoError(t, err, "an export failure must never reverse a DB-committed claim")
	assert.Equal(t, "R1", route.ID)
}

func TestAlreadyAssignedDelegatesToStorage(t *testing.T) {
	routes := newFakeRouteStorage()
	want := &models.Route{ID: "R2"}
	routes.assignedTo[9] = want

	e := NewExecutor(routes, nil, testLogger())
	got, err := e.AlreadyAssigned(context.Background(), 9)
	require.NoError(t, err)
	assert.Same(t, want, got)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
