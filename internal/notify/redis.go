package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/metrics"
)

const DefaultChannelPrefix = "brainstorm:session:"

// Publisher is the part of a Redis client the relay uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type RelayOptions struct {
	Prefix    string
	QueueSize int
	Timeout   time.Duration
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
}

// RedisRelay forwards events to "<prefix><sessionID>" channels. Publish only
// enqueues; Run drains the queue. Delivery is at most once.
type RedisRelay struct {
	client  Publisher
	prefix  string
	timeout time.Duration
	queue   chan engine.Event
	metrics *metrics.Recorder
	log     *zap.Logger
}

// DialRedis connects and pings, failing fast on a bad address.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func NewRedisRelay(client Publisher, opts RelayOptions) *RedisRelay {
	r := &RedisRelay{
		client:  client,
		prefix:  opts.Prefix,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
	if r.prefix == "" {
		r.prefix = DefaultChannelPrefix
	}
	if r.timeout <= 0 {
		r.timeout = 250 * time.Millisecond
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	r.queue = make(chan engine.Event, opts.QueueSize)
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

func (r *RedisRelay) Channel(sessionID string) string { return r.prefix + sessionID }

func (r *RedisRelay) Publish(ev engine.Event) {
	select {
	case r.queue <- ev:
	default:
		r.metrics.NotificationDropped("redis")
		r.log.Warn("redis relay queue full, dropping event",
			zap.String("session_id", ev.SessionID),
			zap.String("kind", string(ev.Kind)))
	}
}

// Run forwards queued events until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.queue:
			if err := r.forward(ctx, ev); err != nil {
				r.metrics.NotificationDropped("redis")
				r.log.Warn("redis relay", zap.String("session_id", ev.SessionID), zap.Error(err))
			}
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context, ev engine.Event) error {
	body, err := json.Marshal(EnvelopeOf(ev))
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Kind, err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Publish(ctx, r.Channel(ev.SessionID), body).Err()
}
