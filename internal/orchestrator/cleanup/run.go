// Package cleanup removes objects whose deletion failed while their records
// were already gone. Jobs arrive on a pgmq queue; a job that keeps failing
// is moved to a dead-letter queue after MaxRetries reads.
package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"portal/internal/metrics"
	"portal/internal/model"
	"portal/internal/pgmq"
	"portal/internal/storage"

	"github.com/rs/zerolog"
)

// Queue is the pgmq surface the worker uses.
type Queue interface {
	ReadWithPoll(ctx context.Context, queue string, visibilitySec, maxMessages, pollSec int) ([]*pgmq.Message, error)
	Send(ctx context.Context, queue string, payload []byte) error
	Delete(ctx context.Context, queue string, msgIDs []int64) error
}

// Deleter removes an object by key.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Queue           string
	DeadLetterQueue string
	VisibilitySec   int
	MaxMessages     int
	PollSec         int
	MaxRetries      int
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
}

type Worker struct {
	queue   Queue
	store   Deleter
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewWorker(queue Queue, store Deleter, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Worker {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = cfg.BackoffInitial
	}
	return &Worker{
		queue:   queue,
		store:   store,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("orchestrator", "cleanup").Logger(),
	}
}

// Run polls the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Str("queue", w.cfg.Queue).Msg("Starting cleanup orchestrator")
	backoff := w.cfg.BackoffInitial
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Shutting down cleanup orchestrator")
			return nil
		default:
		}

		msgs, err := w.queue.ReadWithPoll(ctx, w.cfg.Queue, w.cfg.VisibilitySec, w.cfg.MaxMessages, w.cfg.PollSec)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error().Err(err).Dur("backoff", backoff).Msg("Error reading cleanup queue")
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, w.cfg.BackoffMax)
			continue
		}
		backoff = w.cfg.BackoffInitial

		for _, msg := range msgs {
			w.handle(ctx, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg *pgmq.Message) {
	var job model.CleanupJob
	if err := json.Unmarshal(msg.Data, &job); err != nil || job.StorageKey == "" {
		w.logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Malformed cleanup job")
		w.deadLetter(ctx, msg)
		return
	}

	err := w.store.Delete(ctx, job.StorageKey)
	switch {
	case err == nil:
		if w.metrics != nil {
			w.metrics.OrphansCleaned.Inc()
		}
		w.logger.Info().Str("storage_key", job.StorageKey).Str("reason", job.Reason).Msg("Orphaned object removed")
		w.ack(ctx, msg)
	case errors.Is(err, storage.ErrNotFound):
		w.logger.Debug().Str("storage_key", job.StorageKey).Msg("Object already gone")
		w.ack(ctx, msg)
	case msg.ReadCount >= w.cfg.MaxRetries:
		w.logger.Error().Err(err).
			Str("storage_key", job.StorageKey).
			Int("read_count", msg.ReadCount).
			Msg("Cleanup retries exhausted")
		w.deadLetter(ctx, msg)
	default:
		// Left on the queue; it becomes visible again after the visibility timeout.
		w.logger.Warn().Err(err).
			Str("storage_key", job.StorageKey).
			Int("read_count", msg.ReadCount).
			Msg("Cleanup failed, will retry")
	}
}

func (w *Worker) ack(ctx context.Context, msg *pgmq.Message) {
	if err := w.queue.Delete(ctx, w.cfg.Queue, []int64{msg.ID}); err != nil {
		w.logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Error deleting cleanup message")
	}
}

func (w *Worker) deadLetter(ctx context.Context, msg *pgmq.Message) {
	if w.cfg.DeadLetterQueue != "" {
		if err := w.queue.Send(ctx, w.cfg.DeadLetterQueue, msg.Data); err != nil {
			w.logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Error moving message to dead-letter queue")
			return
		}
	}
	w.ack(ctx, msg)
}
