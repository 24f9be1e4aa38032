package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerPublishSubscribe(t *testing.T) {
	b := NewMemoryBroker()
	ch := b.Subscribe("r1")
	other := b.Subscribe("r2")

	b.Publish("r1", New(TypeStopTransitioned, "r1", map[string]any{"x": 1}))

	select {
	case got := <-ch:
		require.Equal(t, TypeStopTransitioned, got.Type)
		require.Equal(t, 1, got.Data["x"])
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case evt := <-other:
		t.Fatalf("unexpected event on other route: %+v", evt)
	default:
	}

	b.Unsubscribe("r1", ch)
	_, ok := <-ch
	require.False(t, ok, "channel closed after unsubscribe")
	// second unsubscribe is a no-op
	b.Unsubscribe("r1", ch)
}

func TestMemoryBrokerDropsWhenFull(t *testing.T) {
	b := NewMemoryBroker()
	ch := b.Subscribe("r1")
	for i := 0; i < 100; i++ {
		b.Publish("r1", New(TypeRouteOptimized, "r1", nil))
	}
	require.Len(t, ch, cap(ch))
}

type recorder struct{ got []Event }

func (r *recorder) Publish(_ string, evt Event) { r.got = append(r.got, evt) }

func TestFanout(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Fanout{a, nil, b}.Publish("r1", New(TypeRouteStatusChanged, "r1", nil))
	require.Len(t, a.got, 1)
	require.Len(t, b.got, 1)
}

func TestRedisBroker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := NewRedisBroker(rdb, zerolog.Nop())
	ch := b.Subscribe("r1")
	b.Publish("r1", New(TypeRouteOptimized, "r1", map[string]any{"solver": "exact"}))

	select {
	case got := <-ch:
		require.Equal(t, TypeRouteOptimized, got.Type)
		require.Equal(t, "r1", got.RouteID)
		require.Equal(t, "exact", got.Data["solver"])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}

	b.Unsubscribe("r1", ch)
	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestBuildPublishing(t *testing.T) {
	evt := New(TypeStopTransitioned, "r9", map[string]any{"stopId": "s1"})
	msg, err := buildPublishing(evt)
	require.NoError(t, err)
	require.Equal(t, "application/json", msg.ContentType)
	require.Equal(t, amqp.Persistent, msg.DeliveryMode)
	require.Equal(t, TypeStopTransitioned, msg.Type)
	require.Equal(t, "r9", msg.Headers["route_id"])

	var back Event
	require.NoError(t, json.Unmarshal(msg.Body, &back))
	require.Equal(t, "s1", back.Data["stopId"])
}

func TestAMQPPublisherBacksOffWhenBrokerDown(t *testing.T) {
	p := NewAMQPPublisher("amqp://unused", "", zerolog.Nop())
	dials := 0
	p.dial = func(string) (*amqp.Connection, error) {
		dials++
		return nil, errors.New("connection refused")
	}
	p.Publish("r1", New(TypeRouteOptimized, "r1", nil))
	p.Publish("r1", New(TypeRouteOptimized, "r1", nil))
	require.Equal(t, 1, dials, "redial waits for the retry delay")
	require.NoError(t, p.Close())
}
