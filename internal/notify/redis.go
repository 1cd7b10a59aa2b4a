package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"gangs/internal/gang"
)

const publishTimeout = 2 * time.Second

func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Redis publishes gang events on a pub/sub channel so other game server
// processes can refresh their clients.
type Redis struct {
	rdb     *redis.Client
	channel string
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewRedis(rdb *redis.Client, channel string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{rdb: rdb, channel: channel, logger: logger}
}

// Notify publishes in the background and never blocks the caller.
func (p *Redis) Notify(ev gang.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("encode gang event", "err", err)
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
			p.logger.Warn("publish gang event", "kind", ev.Kind, "gang", ev.GangID, "err", err)
		}
	}()
}

// Wait blocks until in-flight publishes finish.
func (p *Redis) Wait() {
	p.wg.Wait()
}

// Multi fans one event out to several notifiers.
type Multi []gang.Notifier

func (m Multi) Notify(ev gang.Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ev)
		}
	}
}
