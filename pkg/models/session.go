package models

type SessionState string

const (
	StateWaitingID     SessionState = "WAITING_ID"
	StateMenu          SessionState = "MENU"
	StateHelpMenu      SessionState = "HELP_MENU"
	StateChoosingRoute SessionState = "CHOOSING_ROUTE"
)

// DriverSession is the stateful conversational context for a single chat.
// It is persisted as JSON under session:<chatId> with a soft TTL
// (STATE_TTL, default 3h of inactivity).
type DriverSession struct {
	ChatID          int64        `json:"chat_id"`
	State           SessionState `json:"state"`
	InQueue         bool         `json:"in_queue"`
	DriverID        int64        `json:"driver_id,omitempty"`
	DriverName      string       `json:"driver_name,omitempty"`
	VehicleType     string       `json:"vehicle_type,omitempty"`
	PriorityScore   int          `json:"priority_score,omitempty"`
	QueueGroup      QueueGroup   `json:"queue_group,omitempty"`
	AvailableRoutes []RouteRef   `json:"available_routes,omitempty"`

	// AdminPending names the admin handshake awaiting a password
	// ("sync_all" or "sync_driver"), or "" when none is in flight.
	AdminPending string `json:"admin_pending,omitempty"`
}

func NewSession(chatID int64) *DriverSession {
	return &DriverSession{ChatID: chatID, State: StateWaitingID}
}

func (s *DriverSession) HasIdentity() bool {
	return s.DriverID != 0
}
