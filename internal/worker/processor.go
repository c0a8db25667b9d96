// Package worker runs the asynq handlers for deferred artifact cleanup.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/image2doc/image2doc/internal/queue"
	"github.com/image2doc/image2doc/internal/storage"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	blobs storage.Blob
	log   zerolog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(blobs storage.Blob, log zerolog.Logger) *Processor {
	return &Processor{blobs: blobs, log: log}
}

// Handler registers the cleanup job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.CleanupArtifactTask, p.handleCleanup)
	return mux
}

func (p *Processor) handleCleanup(ctx context.Context, task *asynq.Task) error {
	var payload queue.CleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	for _, key := range []string{payload.ObjectKey, payload.DownloadKey} {
		if key == "" {
			continue
		}
		if err := p.blobs.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			p.log.Warn().Err(err).Str("key", key).Msg("cleanup delete failed")
			return err
		}
	}
	p.log.Info().Str("file_id", payload.FileID).Msg("expired artifacts removed")
	return nil
}
