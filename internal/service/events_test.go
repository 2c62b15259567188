package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"portal/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedMessage struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	messages []publishedMessage
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, publishedMessage{topic: topic, payload: payload})
	return "msg-1", nil
}

func TestEventSink_PublishesFileEventJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewEventSink(pub, "file-events", zerolog.Nop())

	before := time.Now().UTC()
	sink.Emit(context.Background(), model.FileEvent{
		Type:    model.EventFileUploaded,
		FileID:  "f1",
		UserID:  "u1",
		Field:   "coding",
		Size:    1024,
		ActorID: "u1",
	})

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "file-events", pub.messages[0].topic)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(pub.messages[0].payload, &raw))
	assert.Equal(t, "file.uploaded", raw["type"])
	assert.Equal(t, "f1", raw["file_id"])
	assert.Equal(t, "coding", raw["field"])
	assert.EqualValues(t, 1024, raw["size"])

	var ev model.FileEvent
	require.NoError(t, json.Unmarshal(pub.messages[0].payload, &ev))
	assert.False(t, ev.OccurredAt.Before(before.Truncate(time.Second)), "occurred_at is stamped")
}

func TestEventSink_UserDeletedOmitsFileFields(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewEventSink(pub, "file-events", zerolog.Nop())
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sink.Emit(context.Background(), model.FileEvent{Type: model.EventUserDeleted, UserID: "u1", ActorID: "root", OccurredAt: at})

	require.Len(t, pub.messages, 1)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(pub.messages[0].payload, &raw))
	assert.NotContains(t, raw, "file_id")
	assert.NotContains(t, raw, "field")
	assert.Equal(t, "2026-03-01T12:00:00Z", raw["occurred_at"])
}

func TestEventSink_PublishFailureIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("pubsub down")}
	sink := NewEventSink(pub, "file-events", zerolog.Nop())

	assert.NotPanics(t, func() {
		sink.Emit(context.Background(), model.FileEvent{Type: model.EventFileDeleted, FileID: "f1"})
	})
	assert.Empty(t, pub.messages)
}

func TestEventSink_DisabledWithoutPublisherOrTopic(t *testing.T) {
	pub := &fakePublisher{}
	NewEventSink(pub, "", zerolog.Nop()).Emit(context.Background(), model.FileEvent{Type: model.EventFileUploaded})
	assert.Empty(t, pub.messages)

	assert.IsType(t, noopEvents{}, NewEventSink(nil, "file-events", zerolog.Nop()))
}

func TestCleanupQueue_NilClientDropsJobs(t *testing.T) {
	q := NewCleanupQueue(nil, "storage_cleanup_queue")
	assert.NoError(t, q.Enqueue(context.Background(), model.CleanupJob{StorageKey: "uploads/u/coding/x.pdf"}))
}
