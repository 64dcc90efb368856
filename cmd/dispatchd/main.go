package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"dispatchbot/claim"
	"dispatchbot/config"
	"dispatchbot/kv"
	"dispatchbot/pkg/bot"
	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/session"
	"dispatchbot/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.ServiceName)

	pgStore, err := postgres.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to connect to postgres", logger.Error(err))
		os.Exit(1)
	}
	defer pgStore.Close()

	redisURL := cfg.RedisURL
	if redisURL == "" {
		redisURL = "redis://" + cfg.RedisHost + ":" + cfg.RedisPort
	}
	kvStore, err := kv.NewRedisStore(redisURL)
	if err != nil {
		log.Error("failed to connect to redis", logger.Error(err))
		os.Exit(1)
	}

	sessions := session.NewStore(kvStore, cfg.StateTTL)
	lookup := session.NewQueueLookup(sessions, kvStore, pgStore.Blocklist())

	queues := map[models.QueueGroup]*kv.Queue{
		models.GroupMoto:    kv.NewQueue(kvStore, lookup, log, models.GroupMoto, cfg.BlocklistWaitSeconds),
		models.GroupGeneral: kv.NewQueue(kvStore, lookup, log, models.GroupGeneral, cfg.BlocklistWaitSeconds),
	}
	slots := map[models.QueueGroup]*kv.Slot{
		models.GroupMoto:    kv.NewSlot(kvStore, queues[models.GroupMoto], log, models.GroupMoto, cfg.QueueTTL),
		models.GroupGeneral: kv.NewSlot(kvStore, queues[models.GroupGeneral], log, models.GroupGeneral, cfg.QueueTTL),
	}

	timer := kv.NewTimer(kvStore, sessions, log, cfg.QueueTTL)
	eventlog := kv.NewEventLog(kvStore)

	exportSink, err := claim.NewSheetsExportSink(context.Background(), cfg.GoogleSheetsCredentialsFile, cfg.GoogleSheetsSpreadsheetID)
	if err != nil {
		log.Error("failed to initialize sheets export sink", logger.Error(err))
		os.Exit(1)
	}
	executor := claim.NewExecutor(pgStore.Route(), exportSink, log)

	sender, err := bot.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize telegram client", logger.Error(err))
		os.Exit(1)
	}

	machine := session.NewMachine(session.Deps{
		Sessions:     sessions,
		KV:           kvStore,
		Log:          log,
		Queues:       queues,
		Slots:        slots,
		Timer:        timer,
		Drivers:      pgStore.Driver(),
		Routes:       pgStore.Route(),
		Claims:       executor,
		EventLog:     eventlog,
		Sender:       sender,
		SyncRunner:   session.NoopSyncRunner{},
		SyncPassword: cfg.SyncPassword,
	})

	sweeper := kv.NewSweeper(log, slots)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Run(ctx)

	srv := bot.NewServer(machine, eventlog, log)
	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.AppPort),
		Handler: srv.Router(),
	}

	go func() {
		log.Info("dispatchbot is starting", logger.Int("port", cfg.AppPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down dispatchbot")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
