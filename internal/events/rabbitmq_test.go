package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingChannel struct {
	exchange string
	key      string
	msgs     []amqp.Publishing
	err      error
	closed   bool
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.exchange, c.key = exchange, key
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return nil
}

func TestRabbitMQ_PublishSync(t *testing.T) {
	ch := &recordingChannel{}
	pub := &RabbitMQ{channel: ch, exchange: "tubemetrics", routingKey: "sync.completed", logger: zap.NewNop()}

	event := SyncEvent{
		RunID:      "run-1",
		ChannelID:  "UC1",
		Mode:       "incremental",
		VideoCount: 12,
		Success:    true,
		FinishedAt: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.PublishSync(context.Background(), event))

	require.Len(t, ch.msgs, 1)
	assert.Equal(t, "tubemetrics", ch.exchange)
	assert.Equal(t, "sync.completed", ch.key)
	msg := ch.msgs[0]
	assert.Equal(t, uint8(amqp.Persistent), msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "run-1:UC1", msg.MessageId)

	var decoded SyncEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, event, decoded)

	require.NoError(t, pub.Close())
	assert.True(t, ch.closed)
}

func TestRabbitMQ_PublishSyncError(t *testing.T) {
	ch := &recordingChannel{err: errors.New("channel closed")}
	pub := &RabbitMQ{channel: ch, logger: zap.NewNop()}

	err := pub.PublishSync(context.Background(), SyncEvent{RunID: "r", ChannelID: "c"})
	assert.ErrorContains(t, err, "channel closed")
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.PublishSync(context.Background(), SyncEvent{}))
	assert.NoError(t, p.Close())
}
