package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

type keyedChange struct {
	change
}

func (c keyedChange) EventKey() string { return c.OrderNumber }

func TestKafkaStream(t *testing.T) {
	ctx := context.Background()

	t.Run("keyed by order number", func(t *testing.T) {
		w := &recordingWriter{}
		s := NewKafkaStream(w)
		s.Publish(ctx, keyedChange{change{OrderNumber: "RK1", Status: "confirmed"}}, "orders:number:RK1")

		require.Len(t, w.msgs, 1)
		assert.Equal(t, "RK1", string(w.msgs[0].Key))
		var got change
		require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
		assert.Equal(t, "confirmed", got.Status)

		require.NoError(t, s.Close(ctx))
		assert.True(t, w.closed)
	})

	t.Run("unkeyed payload", func(t *testing.T) {
		w := &recordingWriter{}
		NewKafkaStream(w).Publish(ctx, change{OrderNumber: "RK2"})
		require.Len(t, w.msgs, 1)
		assert.Nil(t, w.msgs[0].Key)
	})

	t.Run("write failure is swallowed", func(t *testing.T) {
		w := &recordingWriter{err: errors.New("broker down")}
		assert.NotPanics(t, func() { NewKafkaStream(w).Publish(ctx, change{OrderNumber: "RK3"}) })
	})

	t.Run("nil stream", func(t *testing.T) {
		var s *KafkaStream
		assert.NotPanics(t, func() { s.Publish(ctx, change{}) })
		assert.NoError(t, s.Close(ctx))
	})
}

func TestFanout(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(NewMemoryBroker())
	sub, err := hub.Subscribe(ctx, "orders:number:RK1")
	require.NoError(t, err)
	defer sub.Close()

	w := &recordingWriter{}
	Fanout{hub, NewKafkaStream(w)}.Publish(ctx, change{OrderNumber: "RK1", Status: "shipped"}, "orders:number:RK1")

	assert.Equal(t, "shipped", receive(t, sub).Status)
	assert.Len(t, w.msgs, 1)
}
