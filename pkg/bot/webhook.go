package bot

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"dispatchbot/kv"
	"dispatchbot/pkg/logger"
)

// inboundUpdate mirrors the slice of the Telegram Bot API payload the
// dispatcher actually reads: chat id and raw text (spec section 6).
type inboundUpdate struct {
	Message struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// handler is the narrow seam the webhook drives; *session.Machine
// satisfies it in production.
type handler interface {
	Handle(ctx context.Context, chatID int64, text string) error
}

// Server is the inbound HTTP adapter: a Telegram webhook plus a couple
// of operational endpoints. It owns per-chat serialization so that two
// rapid-fire updates for the same driver are never handled concurrently
// out of order (spec section 5's ordering guarantee).
type Server struct {
	machine  handler
	eventlog *kv.EventLog
	log      logger.ILogger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewServer(machine handler, eventlog *kv.EventLog, log logger.ILogger) *Server {
	return &Server{
		machine:  machine,
		eventlog: eventlog,
		log:      log,
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (s *Server) chatLock(chatID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	return l
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	r.POST("/telegram/webhook", s.handleWebhook)

	admin := r.Group("/admin")
	{
		admin.GET("/logs/:date", s.handleLogs)
	}

	return r
}

// handleWebhook always answers 200/{ok:true}: Telegram retries on
// non-2xx, and delivery failures are handled inside the state machine
// (logged, not surfaced as webhook errors).
func (s *Server) handleWebhook(c *gin.Context) {
	var upd inboundUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	chatID := upd.Message.Chat.ID
	if chatID == 0 {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	ctx := context.Background()
	if err := s.machine.Handle(ctx, chatID, upd.Message.Text); err != nil {
		s.log.Error("handle update failed", logger.Int64("chat_id", chatID), logger.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleLogs(c *gin.Context) {
	date := c.Param("date")
	lines, err := s.eventlog.Day(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "lines": lines})
}
