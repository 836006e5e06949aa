package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

// DefaultChannelPrefix prefixes the per-project Redis channel.
const DefaultChannelPrefix = "taskflow:events:"

const reconnectDelay = time.Second

// RedisBridge shares events between engine instances. Handle publishes local
// events to a per-project channel; Run relays events from other instances
// into the local bus.
type RedisBridge struct {
	client *redis.Client
	bus    *Bus
	prefix string
	origin string
	logger *slog.Logger
}

// NewRedisBridge creates a bridge. Events whose Origin equals origin are not
// relayed back.
func NewRedisBridge(client *redis.Client, bus *Bus, prefix, origin string, logger *slog.Logger) *RedisBridge {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBridge{
		client: client,
		bus:    bus,
		prefix: prefix,
		origin: origin,
		logger: logger,
	}
}

// Channel returns the Redis channel of a project.
func (r *RedisBridge) Channel(projectID string) string {
	return r.prefix + projectID
}

// Handle publishes evt to Redis. It is registered as a bus handler.
func (r *RedisBridge) Handle(ctx context.Context, evt domain.DomainEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, r.Channel(evt.ProjectID), data).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Run relays remote events until ctx is cancelled, resubscribing when the
// connection drops.
func (r *RedisBridge) Run(ctx context.Context) error {
	for {
		r.relay(ctx)
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Error("redis subscription closed, reconnecting", "pattern", r.prefix+"*")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (r *RedisBridge) relay(ctx context.Context) {
	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			r.logger.Error("redis psubscribe failed", "error", err)
		}
		return
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.deliver(msg)
		}
	}
}

func (r *RedisBridge) deliver(msg *redis.Message) {
	var evt domain.DomainEvent
	if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
		r.logger.Error("unable to decode relayed event", "channel", msg.Channel, "error", err)
		return
	}
	if r.origin != "" && evt.Origin == r.origin {
		return
	}
	if evt.ProjectID == "" {
		evt.ProjectID = strings.TrimPrefix(msg.Channel, r.prefix)
	}
	r.bus.Deliver(evt)
}
