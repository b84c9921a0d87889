package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mediationai/mediator/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannel = "mediator:events"

// ConnectRedis initializes a Redis client from URL or host:port input.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisBridge publishes events to the local hub and to a Redis channel, and
// replays events published by other instances into the local hub.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	origin string
	logger *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewRedisBridge(client *redis.Client, hub *Hub, logger *zap.Logger) *RedisBridge {
	return &RedisBridge{
		client: client,
		hub:    hub,
		origin: uuid.NewString(),
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

func (b *RedisBridge) Publish(ctx context.Context, e domain.Event) {
	e.Origin = b.origin
	b.hub.Publish(ctx, e)

	payload, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("failed to encode event", zap.Error(err))
		return
	}
	if err := b.client.Publish(ctx, redisChannel, payload).Err(); err != nil {
		b.logger.Warn("failed to relay event to redis",
			zap.String("dispute_id", e.DisputeID.String()),
			zap.Error(err))
	}
}

// Start subscribes to the relay channel in a background goroutine.
func (b *RedisBridge) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, redisChannel)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer cancel()
		defer func() { _ = pubsub.Close() }()

		b.logger.Info("redis event relay started", zap.String("origin", b.origin))
		msgs := pubsub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				b.deliver(ctx, msg.Payload)
			case <-b.stopCh:
				b.logger.Info("redis event relay stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the relay.
func (b *RedisBridge) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}

func (b *RedisBridge) deliver(ctx context.Context, payload string) {
	var e domain.Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		b.logger.Warn("ignoring malformed relayed event", zap.Error(err))
		return
	}
	if e.Origin == b.origin {
		return
	}
	b.hub.Publish(ctx, e)
}
