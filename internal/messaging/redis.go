package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"gpio-server/internal/logger"
	"gpio-server/internal/types"
)

const (
	// StateKey is both the hash holding the latest state and the channel
	// announcing which field changed.
	StateKey = "gpio-server"

	// Requests are served one at a time, so a dead Redis must not hold
	// them up for long.
	opTimeout = 250 * time.Millisecond

	breakerMaxFailures uint32 = 5
	breakerTimeout            = 30 * time.Second
	breakerInterval           = 60 * time.Second
)

// ErrSkipped is returned while the breaker is open and nothing was sent.
var ErrSkipped = errors.New("state publishing suspended")

type RedisClient struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRedisClient(addr string, db int, l *logger.Logger) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DB:           db,
			DialTimeout:  opTimeout,
			ReadTimeout:  opTimeout,
			WriteTimeout: opTimeout,
			MaxRetries:   -1,
		}),
		logger: l,
		ctx:    ctx,
		cancel: cancel,
	}
	r.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "redis:" + addr,
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warnf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return r
}

// Connect checks that Redis answers. Publishing works without it; failures
// are counted by the breaker.
func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// publishHashSet atomically updates hash fields and publishes a notification.
func (r *RedisClient) publishHashSet(fields map[string]interface{}, payload string) error {
	_, err := r.breaker.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
		defer cancel()

		pipe := r.client.Pipeline()
		pipe.HSet(ctx, StateKey, fields)
		pipe.Publish(ctx, StateKey, payload)
		_, err := pipe.Exec(ctx)
		return struct{}{}, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrSkipped
	}
	return err
}

func (r *RedisClient) PublishLedState(led string, state types.LedState) error {
	r.logger.Debugf("Publishing %s state: %s", led, state)
	if err := r.publishHashSet(map[string]interface{}{led: string(state)}, led); err != nil {
		return fmt.Errorf("publish %s state: %w", led, err)
	}
	return nil
}

func (r *RedisClient) PublishDistance(cm float64) error {
	r.logger.Debugf("Publishing distance: %.2fcm", cm)
	fields := map[string]interface{}{
		"distance":           strconv.FormatFloat(cm, 'f', 2, 64),
		"distance:timestamp": time.Now().Format(time.RFC3339Nano),
	}
	if err := r.publishHashSet(fields, "distance"); err != nil {
		return fmt.Errorf("publish distance: %w", err)
	}
	return nil
}

func (r *RedisClient) PublishServerState(state types.ServerState) error {
	r.logger.Infof("Publishing server state: %s", state)
	fields := map[string]interface{}{
		"state":           string(state),
		"state:timestamp": time.Now().Format(time.RFC3339),
	}
	if err := r.publishHashSet(fields, "state"); err != nil {
		return fmt.Errorf("publish server state: %w", err)
	}
	return nil
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()
	return r.client.Close()
}
