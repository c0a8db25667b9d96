// Package queue schedules deferred artifact cleanup through asynq. Converted
// documents are kept for the configured retention window and then removed by
// the worker process.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/image2doc/image2doc/internal/event"
)

const (
	// CleanupArtifactTask is scheduled once per finished conversion.
	CleanupArtifactTask = "artifact:cleanup"
)

// CleanupPayload tells the worker which objects to delete.
type CleanupPayload struct {
	FileID      string `json:"file_id"`
	ObjectKey   string `json:"object_key"`
	DownloadKey string `json:"download_key"`
}

// EnqueueCleanup schedules a cleanup job to run after the retention window.
func EnqueueCleanup(ctx context.Context, client *asynq.Client, payload CleanupPayload, retention time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(CleanupArtifactTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.ProcessIn(retention), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue cleanup task: %w", err)
	}
	return nil
}

// Scheduler listens for finished conversions and books their cleanup.
type Scheduler struct {
	client    *asynq.Client
	retention time.Duration
	log       zerolog.Logger
}

// NewScheduler builds a Scheduler.
func NewScheduler(client *asynq.Client, retention time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{client: client, retention: retention, log: log}
}

// Bind subscribes the scheduler to conversion completions.
func (s *Scheduler) Bind(bus *event.Bus) string {
	return bus.Subscribe(event.TypeConversionCompleted, func(e event.Event) error {
		ev, ok := e.(event.ConversionCompletedEvent)
		if !ok {
			return nil
		}
		payload := CleanupPayload{
			FileID:      ev.File.ID,
			ObjectKey:   ev.File.ObjectKey,
			DownloadKey: ev.File.DownloadKey,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := EnqueueCleanup(ctx, s.client, payload, s.retention); err != nil {
			s.log.Warn().Err(err).Str("file_id", ev.File.ID).Msg("schedule cleanup")
			return err
		}
		return nil
	})
}
