package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/redis/go-redis/v9"
)

const probeTimeout = 2 * time.Second

type ProbeConfig struct {
	RedisURI  string
	QueueFile string
}

// Probe picks the trigger backend once at startup. When the asynq job registry
// (Redis) answers, triggers go there and fire on their own; otherwise they are
// appended to the local queue file and need an external pulse. Callers must keep
// the result for the life of the process instead of probing again.
func Probe(ctx context.Context, cfg ProbeConfig, log logging.Logger) Backend {
	if cfg.RedisURI != "" && registryReachable(ctx, cfg.RedisURI) {
		log.WithField("redis", cfg.RedisURI).Info("job registry reachable, using asynq trigger backend")
		return NewAsynqBackend(asynq.RedisClientOpt{Addr: cfg.RedisURI}, log)
	}

	log.WithField("queue_file", cfg.QueueFile).Warn("job registry unavailable, using local queue file; publishing needs an external pulse")
	return NewFileQueueBackend(cfg.QueueFile, log)
}

func registryReachable(ctx context.Context, addr string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	return rdb.Ping(ctx).Err() == nil
}
