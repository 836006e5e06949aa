package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/metrics"
)

func event(projectID, taskID string, kind domain.EventKind) domain.DomainEvent {
	return domain.DomainEvent{
		Kind:       kind,
		ProjectID:  projectID,
		Task:       domain.Task{ID: taskID, ProjectID: projectID, Status: domain.TaskStatusOpen},
		OccurredAt: time.Now(),
	}
}

func receive(t *testing.T, sub *Subscription) domain.DomainEvent {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return domain.DomainEvent{}
	}
}

func TestBus_DeliversToProjectSubscribersOnly(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	p1 := bus.Subscribe("p1")
	p2 := bus.Subscribe("p2")

	bus.Publish(context.Background(), event("p1", "t1", domain.EventTaskCreated))

	got := receive(t, p1)
	assert.Equal(t, "t1", got.Task.ID)
	assert.Empty(t, p2.Events())
}

func TestBus_HandlerFailureIsIsolated(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	bus := NewBus(WithMetrics(m))
	defer bus.Close()

	var ok atomic.Int32
	bus.Handle("failing", func(context.Context, domain.DomainEvent) error {
		return errors.New("boom")
	})
	bus.Handle("panicking", func(context.Context, domain.DomainEvent) error {
		panic("handler bug")
	})
	bus.Handle("healthy", func(context.Context, domain.DomainEvent) error {
		ok.Add(1)
		return nil
	})

	sub := bus.Subscribe("p1")
	bus.Publish(context.Background(), event("p1", "t1", domain.EventTaskUpdated))
	bus.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, "t1", receive(t, sub).Task.ID)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventHandlerFailures.WithLabelValues("failing")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventHandlerFailures.WithLabelValues("panicking")))
}

func TestBus_HandlerContextSurvivesCallerCancel(t *testing.T) {
	bus := NewBus(WithHandlerTimeout(time.Second))
	defer bus.Close()

	errCh := make(chan error, 1)
	bus.Handle("probe", func(ctx context.Context, _ domain.DomainEvent) error {
		errCh <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, event("p1", "t1", domain.EventTaskUpdated))
	bus.Wait()

	assert.NoError(t, <-errCh)
}

func TestBus_PublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewBus(WithBufferSize(1))
	defer bus.Close()

	sub := bus.Subscribe("p1")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			bus.Publish(context.Background(), event("p1", "t1", domain.EventTaskUpdated))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
	assert.Equal(t, uint64(4), sub.Dropped())
}

func TestSubscription_Close(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe("p1")
	require.Equal(t, 1, bus.Subscribers("p1"))

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, bus.Subscribers("p1"))
	_, open := <-sub.Events()
	assert.False(t, open)

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), event("p1", "t1", domain.EventTaskUpdated))
	})
}

func TestBus_CloseClosesSubscriptions(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("p1")

	bus.Close()

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), event("p1", "t1", domain.EventTaskUpdated))
		sub.Close()
	})

	late := bus.Subscribe("p1")
	_, open = <-late.Events()
	assert.False(t, open)
}
