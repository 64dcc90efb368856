package session

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"dispatchbot/claim"
	"dispatchbot/kv"
	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/storage"
)

// Sender is the outbound chat delivery seam of spec section 4.I.
// Failures are logged by the caller and never block a state transition
// that already committed.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Machine wires the session state table to the queue/slot/timer
// primitives and the claim executor. One Machine instance serves both
// queue groups; per-group collaborators are looked up by
// models.QueueGroup.
type Machine struct {
	sessions *Store
	kv       kv.Store
	log      logger.ILogger

	queues map[models.QueueGroup]*kv.Queue
	slots  map[models.QueueGroup]*kv.Slot
	timer  *kv.Timer

	drivers  storage.IDriverStorage
	routes   storage.IRouteStorage
	claims   *claim.Executor
	eventlog *kv.EventLog
	sender   Sender

	syncRunner   SyncRunner
	syncPassword string
}

type Deps struct {
	Sessions     *Store
	KV           kv.Store
	Log          logger.ILogger
	Queues       map[models.QueueGroup]*kv.Queue
	Slots        map[models.QueueGroup]*kv.Slot
	Timer        *kv.Timer
	Drivers      storage.IDriverStorage
	Routes       storage.IRouteStorage
	Claims       *claim.Executor
	EventLog     *kv.EventLog
	Sender       Sender
	SyncRunner   SyncRunner
	SyncPassword string
}

func NewMachine(d Deps) *Machine {
	m := &Machine{
		sessions:     d.Sessions,
		kv:           d.KV,
		log:          d.Log,
		queues:       d.Queues,
		slots:        d.Slots,
		timer:        d.Timer,
		drivers:      d.Drivers,
		routes:       d.Routes,
		claims:       d.Claims,
		eventlog:     d.EventLog,
		sender:       d.Sender,
		syncRunner:   d.SyncRunner,
		syncPassword: d.SyncPassword,
	}
	for _, slot := range m.slots {
		slot := slot
		slot.OnNotifyNext(func(ctx context.Context, chatID int64, g models.QueueGroup) { m.notifyNext(ctx, chatID, g) })
		slot.OnTimeout(func(ctx context.Context, chatID int64, g models.QueueGroup) { m.handleTimeout(ctx, chatID, g) })
	}
	d.Timer.OnExpire(func(ctx context.Context, chatID int64, g models.QueueGroup) { m.handleTimeout(ctx, chatID, g) })
	return m
}

func (m *Machine) send(ctx context.Context, chatID int64, text string) {
	if err := m.sender.Send(ctx, chatID, text); err != nil {
		m.log.Warning("chat send failed", logger.Int64("chat_id", chatID), logger.Error(err))
	}
}

func (m *Machine) logEvent(ctx context.Context, action string, fields map[string]string) {
	if err := m.eventlog.Append(ctx, action, fields); err != nil {
		m.log.Warning("event log append failed", logger.String("action", action), logger.Error(err))
	}
}

// Handle is the single entrypoint from the inbound webhook adapter, one
// call per chat message. The webhook adapter is responsible for
// serializing calls per chatId (spec section 5's ordering guarantee);
// Handle itself assumes single-threaded-per-chat execution.
func (m *Machine) Handle(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)

	sess, err := m.sessions.Get(ctx, chatID)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return err
	}
	if sess == nil {
		sess = models.NewSession(chatID)
		m.send(ctx, chatID, msg("greet_waiting_id"))
		return m.sessions.Save(ctx, sess)
	}

	if handled, err := m.handleAdminCommand(ctx, sess, text); handled {
		return err
	}

	if m.syncInProgress(ctx) {
		m.send(ctx, chatID, msg("sync_in_progress"))
		return nil
	}

	if sess.InQueue {
		return m.handleQueuedEvent(ctx, sess, text)
	}

	switch sess.State {
	case models.StateWaitingID:
		return m.handleWaitingID(ctx, sess, text)
	case models.StateMenu:
		return m.handleMenu(ctx, sess, text)
	case models.StateHelpMenu:
		return m.handleHelpMenu(ctx, sess, text)
	case models.StateChoosingRoute:
		return m.handleChoosingRoute(ctx, sess, text)
	default:
		sess.State = models.StateWaitingID
		m.send(ctx, chatID, msg("greet_waiting_id"))
		return m.sessions.Save(ctx, sess)
	}
}

func isEnd(text string) bool { return text == "encerrar" || text == "0" }

func (m *Machine) clear(ctx context.Context, chatID int64) error {
	return m.sessions.Clear(ctx, chatID)
}

func (m *Machine) handleWaitingID(ctx context.Context, sess *models.DriverSession, text string) error {
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		m.send(ctx, sess.ChatID, msg("invalid_id"))
		return nil
	}

	driver, err := m.drivers.FindByID(ctx, id)
	if err != nil {
		m.send(ctx, sess.ChatID, msg("invalid_id"))
		return nil
	}

	sess.DriverID = driver.ID
	sess.DriverName = driver.Name
	sess.VehicleType = driver.VehicleType
	sess.PriorityScore = driver.PriorityScore
	sess.QueueGroup = models.GroupForVehicle(driver.VehicleType)
	sess.State = models.StateMenu

	m.send(ctx, sess.ChatID, msg("greet_by_name", driver.Name))
	m.send(ctx, sess.ChatID, msg("menu"))
	m.logEvent(ctx, "identified", map[string]string{"chat_id": strconv.FormatInt(sess.ChatID, 10), "driver_id": strconv.FormatInt(driver.ID, 10)})
	return m.sessions.Save(ctx, sess)
}

func (m *Machine) handleMenu(ctx context.Context, sess *models.DriverSession, text string) error {
	switch {
	case isEnd(text):
		return m.clear(ctx, sess.ChatID)
	case text == "1":
		return m.enterQueueFlow(ctx, sess)
	case text == "2":
		sess.State = models.StateHelpMenu
		m.send(ctx, sess.ChatID, msg("help_menu"))
		return m.sessions.Save(ctx, sess)
	default:
		m.send(ctx, sess.ChatID, msg("menu_invalid"))
		m.send(ctx, sess.ChatID, msg("menu"))
		return nil
	}
}

// enterQueueFlow implements the MENU "1" branch: belt-and-braces assigned
// check, then enqueue and tryAcquire per spec section 4.E.
func (m *Machine) enterQueueFlow(ctx context.Context, sess *models.DriverSession) error {
	existing, err := m.claims.AlreadyAssigned(ctx, sess.DriverID)
	if err != nil {
		return err
	}
	if existing != nil {
		m.send(ctx, sess.ChatID, msg("already_assigned"))
		return m.clear(ctx, sess.ChatID)
	}

	queue := m.queues[sess.QueueGroup]
	slot := m.slots[sess.QueueGroup]

	position, err := queue.Enqueue(ctx, sess.ChatID)
	if err != nil {
		return err
	}
	m.logEvent(ctx, "enqueue", map[string]string{"chat_id": strconv.FormatInt(sess.ChatID, 10), "group": string(sess.QueueGroup), "position": strconv.Itoa(position)})

	acquired, err := slot.TryAcquire(ctx, sess.ChatID)
	if err != nil {
		return err
	}
	if acquired {
		return m.enterChoosingRoute(ctx, sess)
	}

	sess.InQueue = true
	m.send(ctx, sess.ChatID, msg("entered_queue", position))
	return m.sessions.Save(ctx, sess)
}

// handleQueuedEvent implements the global preprocessing rule 3 for
// sessions parked with inQueue=true, applied ahead of per-state dispatch.
func (m *Machine) handleQueuedEvent(ctx context.Context, sess *models.DriverSession, text string) error {
	if isEnd(text) {
		if err := m.queues[sess.QueueGroup].Remove(ctx, sess.ChatID); err != nil {
			return err
		}
		return m.clear(ctx, sess.ChatID)
	}

	queue := m.queues[sess.QueueGroup]
	slot := m.slots[sess.QueueGroup]

	if _, err := queue.Enqueue(ctx, sess.ChatID); err != nil {
		return err
	}

	acquired, err := slot.TryAcquire(ctx, sess.ChatID)
	if err != nil {
		return err
	}
	if acquired {
		sess.InQueue = false
		return m.enterChoosingRoute(ctx, sess)
	}

	m.send(ctx, sess.ChatID, msg("still_in_queue"))
	return nil
}

func (m *Machine) handleHelpMenu(ctx context.Context, sess *models.DriverSession, text string) error {
	switch {
	case isEnd(text):
		return m.clear(ctx, sess.ChatID)
	case text == "voltar":
		sess.State = models.StateMenu
		m.send(ctx, sess.ChatID, msg("menu"))
		return m.sessions.Save(ctx, sess)
	case text == "1":
		m.send(ctx, sess.ChatID, msg("help_faq_1"))
		m.send(ctx, sess.ChatID, msg("help_menu"))
		return nil
	case text == "2":
		m.send(ctx, sess.ChatID, msg("help_faq_2"))
		m.send(ctx, sess.ChatID, msg("help_menu"))
		return nil
	default:
		m.send(ctx, sess.ChatID, msg("menu_invalid"))
		m.send(ctx, sess.ChatID, msg("help_menu"))
		return nil
	}
}

// enterChoosingRoute implements the spec section 4.E entry sequence:
// fetch routes filtered/ordered by vehicle type, persist them on the
// session, render the menu, refresh the slot window, and arm the
// response timer. If no routes are available for the driver's vehicle
// type, the slot is released back to the queue instead of parking the
// holder in CHOOSING_ROUTE until the response timer fires (spec
// section 8).
func (m *Machine) enterChoosingRoute(ctx context.Context, sess *models.DriverSession) error {
	routes, err := m.routesForVehicle(ctx, sess.VehicleType)
	if err != nil {
		return err
	}

	if len(routes) == 0 {
		m.send(ctx, sess.ChatID, msg("routes_empty"))
		if err := m.slots[sess.QueueGroup].ReleaseAndNotifyNext(ctx); err != nil {
			return err
		}
		sess.State = models.StateMenu
		m.send(ctx, sess.ChatID, msg("menu"))
		return m.sessions.Save(ctx, sess)
	}

	refs := make([]models.RouteRef, len(routes))
	for i, r := range routes {
		refs[i] = models.RouteRef{ID: r.ID, FromLocation: r.FromLocation, ToLocation: r.ToLocation, Price: r.Price}
	}
	sess.AvailableRoutes = refs
	sess.State = models.StateChoosingRoute

	m.renderRoutes(ctx, sess)

	if err := m.slots[sess.QueueGroup].RefreshMeta(ctx, sess.ChatID); err != nil {
		return err
	}
	if err := m.timer.Arm(ctx, sess.ChatID, sess.QueueGroup, m.activeChatOf); err != nil {
		return err
	}
	return m.sessions.Save(ctx, sess)
}

func (m *Machine) activeChatOf(ctx context.Context, group models.QueueGroup) (int64, bool) {
	active, err := m.kv.Get(ctx, activeKeyFor(group))
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(active, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func activeKeyFor(group models.QueueGroup) string { return "queue:active:" + string(group) }

// routesForVehicle implements the moto-only-sees-moto, everyone-else-
// sees-non-moto-then-moto filtering rule of spec section 4.E.
func (m *Machine) routesForVehicle(ctx context.Context, vehicleType string) ([]models.Route, error) {
	if vehicleType == models.VehicleMoto {
		return m.routes.ListAvailableForVehicle(ctx, models.VehicleMoto)
	}

	nonMoto, err := m.routes.ListAvailableExcludingVehicle(ctx, models.VehicleMoto)
	if err != nil {
		return nil, err
	}
	moto, err := m.routes.ListAvailableForVehicle(ctx, models.VehicleMoto)
	if err != nil {
		return nil, err
	}
	return append(nonMoto, moto...), nil
}

func (m *Machine) renderRoutes(ctx context.Context, sess *models.DriverSession) {
	if len(sess.AvailableRoutes) == 0 {
		m.send(ctx, sess.ChatID, msg("routes_empty"))
		return
	}
	var b strings.Builder
	b.WriteString(msg("routes_header"))
	for i, r := range sess.AvailableRoutes {
		b.WriteString(msg("routes_line", i+1, r.FromLocation, r.ToLocation, r.Price))
	}
	m.send(ctx, sess.ChatID, b.String())
}

func (m *Machine) handleChoosingRoute(ctx context.Context, sess *models.DriverSession, text string) error {
	if isEnd(text) {
		if err := m.timer.Disarm(ctx, sess.ChatID); err != nil {
			return err
		}
		if err := m.slots[sess.QueueGroup].ReleaseAndNotifyNext(ctx); err != nil {
			return err
		}
		return m.clear(ctx, sess.ChatID)
	}

	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > len(sess.AvailableRoutes) {
		m.send(ctx, sess.ChatID, msg("route_invalid"))
		m.renderRoutes(ctx, sess)
		return nil
	}

	existing, err := m.claims.AlreadyAssigned(ctx, sess.DriverID)
	if err != nil {
		return err
	}
	if existing != nil {
		m.send(ctx, sess.ChatID, msg("already_assigned"))
		if err := m.timer.Disarm(ctx, sess.ChatID); err != nil {
			return err
		}
		if err := m.slots[sess.QueueGroup].ReleaseAndNotifyNext(ctx); err != nil {
			return err
		}
		return m.clear(ctx, sess.ChatID)
	}

	ref := sess.AvailableRoutes[n-1]
	driver := models.Driver{ID: sess.DriverID, Name: sess.DriverName, VehicleType: sess.VehicleType, PriorityScore: sess.PriorityScore}

	route, err := m.claims.Claim(ctx, driver, ref.ID)
	if err != nil {
		if errors.Is(err, claim.ErrClaimRaced) {
			m.send(ctx, sess.ChatID, msg("route_unavailable"))
			refreshed, rerr := m.routesForVehicle(ctx, sess.VehicleType)
			if rerr != nil {
				return rerr
			}
			refs := make([]models.RouteRef, len(refreshed))
			for i, r := range refreshed {
				refs[i] = models.RouteRef{ID: r.ID, FromLocation: r.FromLocation, ToLocation: r.ToLocation, Price: r.Price}
			}
			sess.AvailableRoutes = refs
			m.renderRoutes(ctx, sess)
			m.logEvent(ctx, "claim_raced", map[string]string{"chat_id": strconv.FormatInt(sess.ChatID, 10), "route_id": ref.ID})
			return m.sessions.Save(ctx, sess)
		}
		return err
	}

	m.send(ctx, sess.ChatID, msg("route_claimed", route.FromLocation, route.ToLocation, route.Price))
	m.logEvent(ctx, "claim_success", map[string]string{"chat_id": strconv.FormatInt(sess.ChatID, 10), "route_id": route.ID, "driver_id": strconv.FormatInt(sess.DriverID, 10)})

	if err := m.timer.Disarm(ctx, sess.ChatID); err != nil {
		return err
	}
	if err := m.slots[sess.QueueGroup].ReleaseAndNotifyNext(ctx); err != nil {
		return err
	}
	return m.clear(ctx, sess.ChatID)
}

// notifyNext is the slot controller's callback when activation hands the
// slot to a chat other than the caller that just triggered it.
func (m *Machine) notifyNext(ctx context.Context, chatID int64, group models.QueueGroup) {
	sess, err := m.sessions.Get(ctx, chatID)
	if err != nil || sess == nil {
		m.log.Warning("notifyNext: session missing for activated chat", logger.Int64("chat_id", chatID))
		return
	}
	sess.InQueue = false
	m.send(ctx, chatID, msg("your_turn"))
	if err := m.enterChoosingRoute(ctx, sess); err != nil {
		m.log.Error("notifyNext: enterChoosingRoute failed", logger.Int64("chat_id", chatID), logger.Error(err))
	}
}

// handleTimeout is wired to both the per-chat timer and the background
// sweeper's reclaim path; spec section 4.G.
func (m *Machine) handleTimeout(ctx context.Context, chatID int64, group models.QueueGroup) {
	if err := m.slots[group].ReleaseAndNotifyNext(ctx); err != nil {
		m.log.Error("handleTimeout: release failed", logger.Int64("chat_id", chatID), logger.Error(err))
	}
	if err := m.clear(ctx, chatID); err != nil {
		m.log.Error("handleTimeout: clear session failed", logger.Int64("chat_id", chatID), logger.Error(err))
	}
	m.send(ctx, chatID, msg("timeout_closed"))
	m.logEvent(ctx, "timeout", map[string]string{"chat_id": strconv.FormatInt(chatID, 10), "group": string(group)})
}
