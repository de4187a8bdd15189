package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type change struct {
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
}

func receive(t *testing.T, sub Subscription) change {
	t.Helper()
	select {
	case raw, ok := <-sub.Messages():
		require.True(t, ok)
		var c change
		require.NoError(t, json.Unmarshal(raw, &c))
		return c
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
	return change{}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub(NewMemoryBroker())
	ctx := context.Background()

	byNumber, err := hub.Subscribe(ctx, "orders:number:RK1")
	require.NoError(t, err)
	defer byNumber.Close()
	byUser, err := hub.Subscribe(ctx, "orders:user:u1")
	require.NoError(t, err)
	defer byUser.Close()

	hub.Publish(ctx, change{OrderNumber: "RK1", Status: "confirmed"}, "orders:number:RK1", "orders:user:u1", "")

	assert.Equal(t, "confirmed", receive(t, byNumber).Status)
	assert.Equal(t, "RK1", receive(t, byUser).OrderNumber)
}

func TestSubscriptionClose(t *testing.T) {
	broker := NewMemoryBroker()
	sub, err := broker.Subscribe(context.Background(), "orders:number:RK2")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	assert.Empty(t, broker.subs)

	// 无订阅者时发布不报错
	assert.NoError(t, broker.Publish(context.Background(), "orders:number:RK2", []byte(`{}`)))
}

func TestNilHub(t *testing.T) {
	var hub *Hub
	hub.Publish(context.Background(), change{}, "x")
	_, err := hub.Subscribe(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}
