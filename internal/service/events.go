package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"portal/internal/model"
	"portal/internal/pgmq"
	"portal/internal/pubsub"
	"portal/internal/storage"

	"github.com/rs/zerolog"
)

// EventSink receives submission lifecycle events. Emit never fails the
// operation that produced the event.
type EventSink interface {
	Emit(ctx context.Context, ev model.FileEvent)
}

type pubSubEvents struct {
	publisher pubsub.Publisher
	topic     string
	logger    zerolog.Logger
}

// NewEventSink publishes events to topic. It returns a sink that drops
// events when publisher is nil or topic is empty.
func NewEventSink(publisher pubsub.Publisher, topic string, logger zerolog.Logger) EventSink {
	if publisher == nil || topic == "" {
		return noopEvents{}
	}
	return &pubSubEvents{
		publisher: publisher,
		topic:     topic,
		logger:    logger.With().Str("component", "EventSink").Logger(),
	}
}

func (e *pubSubEvents) Emit(ctx context.Context, ev model.FileEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		e.logger.Error().Err(err).Str("type", ev.Type).Msg("Failed to marshal event")
		return
	}
	if _, err := e.publisher.Publish(ctx, e.topic, payload); err != nil {
		e.logger.Error().Err(err).
			Str("type", ev.Type).
			Str("file_id", ev.FileID).
			Msg("Failed to publish event")
	}
}

type noopEvents struct{}

func (noopEvents) Emit(context.Context, model.FileEvent) {}

// CleanupQueue schedules removal of objects the store failed to delete.
type CleanupQueue interface {
	Enqueue(ctx context.Context, job model.CleanupJob) error
}

type pgmqCleanupQueue struct {
	client *pgmq.Client
	queue  string
}

// NewCleanupQueue sends jobs to the named pgmq queue. A nil client yields a
// queue that accepts and drops every job.
func NewCleanupQueue(client *pgmq.Client, queue string) CleanupQueue {
	if client == nil || queue == "" {
		return noopCleanup{}
	}
	return &pgmqCleanupQueue{client: client, queue: queue}
}

func (q *pgmqCleanupQueue) Enqueue(ctx context.Context, job model.CleanupJob) error {
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal cleanup job: %w", err)
	}
	return q.client.Send(ctx, q.queue, payload)
}

type noopCleanup struct{}

func (noopCleanup) Enqueue(context.Context, model.CleanupJob) error { return nil }

// janitor removes object bytes on behalf of the file and user services.
// Store failures become warnings plus a cleanup job instead of errors.
type janitor struct {
	store   storage.ObjectStore
	cleanup CleanupQueue
	logger  zerolog.Logger
}

// remove deletes the bytes of f. It returns a non-empty warning when the
// bytes could not be removed; the caller proceeds with the record deletion.
func (j *janitor) remove(ctx context.Context, f model.UploadedFile, reason string) string {
	err := j.store.Delete(ctx, f.StorageKey)
	if err == nil {
		return ""
	}
	if errors.Is(err, storage.ErrNotFound) {
		j.logger.Warn().
			Str("file_id", f.ID).
			Str("storage_key", f.StorageKey).
			Msg("Object already missing from store")
		return ""
	}

	j.logger.Error().Err(err).
		Str("file_id", f.ID).
		Str("storage_key", f.StorageKey).
		Msg("Failed to delete object, scheduling cleanup")
	job := model.CleanupJob{StorageKey: f.StorageKey, FileID: f.ID, UserID: f.UserID, Reason: reason}
	if qerr := j.cleanup.Enqueue(ctx, job); qerr != nil {
		j.logger.Error().Err(qerr).Str("storage_key", f.StorageKey).Msg("Failed to enqueue cleanup job")
	}
	return fmt.Sprintf("file %s: stored object could not be removed: %v", f.ID, err)
}

// discard drops bytes of an upload attempt that was rejected after they
// reached the store.
func (j *janitor) discard(ctx context.Context, key string) {
	err := j.store.Delete(ctx, key)
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		return
	}
	j.logger.Error().Err(err).Str("storage_key", key).Msg("Failed to discard rejected upload")
	job := model.CleanupJob{StorageKey: key, Reason: "rejected_upload"}
	if qerr := j.cleanup.Enqueue(ctx, job); qerr != nil {
		j.logger.Error().Err(qerr).Str("storage_key", key).Msg("Failed to enqueue cleanup job")
	}
}
