// Command flushqueue clears the KV-resident queue/slot state for one or
// both dispatch groups (moto, general). It clears nothing in Postgres,
// though it does connect at startup, which applies any pending
// migrations. It
// exists for the case the automatic sweeper can't resolve on its own: a
// group visibly stuck with no session willing to claim the active slot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"dispatchbot/config"
	"dispatchbot/kv"
	"dispatchbot/pkg/logger"
	"dispatchbot/pkg/models"
	"dispatchbot/session"
	"dispatchbot/storage/postgres"
)

func main() {
	group := flag.String("group", "all", "queue group to flush: moto, general, or all")
	flag.Parse()

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

	targets := map[models.QueueGroup]bool{}
	switch *group {
	case "moto":
		targets[models.GroupMoto] = true
	case "general":
		targets[models.GroupGeneral] = true
	case "all":
		targets[models.GroupMoto] = true
		targets[models.GroupGeneral] = true
	default:
		fmt.Fprintf(os.Stderr, "unknown group %q: want moto, general, or all\n", *group)
		os.Exit(1)
	}

	ctx := context.Background()
	for g := range targets {
		queue := kv.NewQueue(kvStore, lookup, log, g, cfg.BlocklistWaitSeconds)
		slot := kv.NewSlot(kvStore, queue, log, g, cfg.QueueTTL)
		if err := slot.Reset(ctx); err != nil {
			log.Error("failed to reset slot", logger.String("group", string(g)), logger.Error(err))
			os.Exit(1)
		}
		if err := queue.Reset(ctx); err != nil {
			log.Error("failed to reset queue", logger.String("group", string(g)), logger.Error(err))
			os.Exit(1)
		}
		log.Info("flushed group", logger.String("group", string(g)))
	}
}
