package activity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/punchamoorthee/goalledger/internal/domain"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	entries []domain.ActivityEntry
	err     error
}

func (w *memWriter) AppendActivity(_ context.Context, e domain.ActivityEntry) error {
	if w.err != nil {
		return w.err
	}
	w.entries = append(w.entries, e)
	return nil
}

type fakeChannel struct {
	exchange, key string
	msg           amqp091.Publishing
	err           error
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func (c *fakeChannel) Close() error { return nil }

var entry = domain.ActivityEntry{
	OwnerID: 3,
	Action:  ActionGoalCreated,
	Detail:  "created goal 9",
	At:      time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
}

func TestStoreRecorder(t *testing.T) {
	w := &memWriter{}
	require.NoError(t, NewStoreRecorder(w).Record(context.Background(), entry))
	assert.Equal(t, []domain.ActivityEntry{entry}, w.entries)
}

func TestMultiAttemptsEveryRecorder(t *testing.T) {
	failing := &memWriter{err: errors.New("disk full")}
	ok := &memWriter{}

	err := Multi{NewStoreRecorder(failing), NewStoreRecorder(ok)}.Record(context.Background(), entry)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, ok.entries, 1, "later recorders still run")
	assert.NoError(t, Multi{}.Record(context.Background(), entry))
}

func TestPublisherRecord(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{channel: ch, exchange: "activity", routingKey: "activity.log"}

	require.NoError(t, p.Record(context.Background(), entry))

	assert.Equal(t, "activity", ch.exchange)
	assert.Equal(t, "activity.log", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, ActionGoalCreated, ch.msg.Type)

	var got Message
	require.NoError(t, json.Unmarshal(ch.msg.Body, &got))
	assert.Equal(t, int64(3), got.OwnerID)
	assert.Equal(t, "created goal 9", got.Detail)
	assert.True(t, got.Timestamp.Equal(entry.At))
}

func TestPublisherRecordError(t *testing.T) {
	p := &Publisher{channel: &fakeChannel{err: amqp091.ErrClosed}, exchange: "activity"}
	err := p.Record(context.Background(), entry)
	assert.ErrorIs(t, err, amqp091.ErrClosed)
}
