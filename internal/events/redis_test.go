package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

func newMiniredis(t *testing.T) *redis.Client {
	t.Helper()
	m := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func TestRedisBridge_HandlePublishesToProjectChannel(t *testing.T) {
	rc := newMiniredis(t)
	bridge := NewRedisBridge(rc, NewBus(), "", "node-a", nil)

	ctx := context.Background()
	sub := rc.Subscribe(ctx, bridge.Channel("p1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	evt := event("p1", "t1", domain.EventTaskStatusChanged)
	evt.Origin = "node-a"
	require.NoError(t, bridge.Handle(ctx, evt))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultChannelPrefix+"p1", msg.Channel)

	var got domain.DomainEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, domain.EventTaskStatusChanged, got.Kind)
	assert.Equal(t, "t1", got.Task.ID)
}

func TestRedisBridge_RunRelaysRemoteEventsOnly(t *testing.T) {
	rc := newMiniredis(t)
	bus := NewBus()
	defer bus.Close()
	local := bus.Subscribe("p1")

	bridge := NewRedisBridge(rc, bus, "", "node-a", nil)
	remote := NewRedisBridge(rc, NewBus(), "", "node-b", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	// wait for the pattern subscription
	require.Eventually(t, func() bool {
		n, err := rc.PubSubNumPat(context.Background()).Result()
		return err == nil && n > 0
	}, time.Second, 10*time.Millisecond)

	own := event("p1", "own", domain.EventTaskUpdated)
	own.Origin = "node-a"
	require.NoError(t, bridge.Handle(context.Background(), own))

	foreign := event("p1", "foreign", domain.EventTaskUpdated)
	foreign.Origin = "node-b"
	require.NoError(t, remote.Handle(context.Background(), foreign))

	got := receive(t, local)
	assert.Equal(t, "foreign", got.Task.ID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit")
	}
	assert.Empty(t, local.Events())
}
