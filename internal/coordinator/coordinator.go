// Package coordinator owns the file lifecycle: validation, upload into blob
// storage, the serialized conversion queue, downloads and removal. Every
// state change is announced on the event bus; presentation layers subscribe
// instead of being called directly.
package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/image2doc/image2doc/internal/event"
	"github.com/image2doc/image2doc/internal/model"
	"github.com/image2doc/image2doc/internal/ocr"
	"github.com/image2doc/image2doc/internal/preprocess"
	"github.com/image2doc/image2doc/internal/storage"
)

var (
	// ErrBackendUnavailable is returned when the conversion backend fails
	// its health check at enqueue time.
	ErrBackendUnavailable = errors.New("conversion service unavailable")
	// ErrNotReady is returned when an operation does not apply to the
	// file's current status.
	ErrNotReady = errors.New("file is not in a valid state for this operation")
)

// ValidationError carries every reason an upload was rejected. It is a
// distinct type so the API layer can map it to a 400.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string { return strings.Join(e.Reasons, "; ") }

// Validation is the outcome of checking a file against the configured
// limits. All violated limits are reported, not just the first.
type Validation struct {
	Valid  bool     `json:"isValid"`
	Errors []string `json:"errors"`
}

// Converter is the conversion backend as the coordinator sees it. The ocr
// package provides the production implementation.
type Converter interface {
	Convert(ctx context.Context, req ocr.Request, onProgress func(float64)) (*ocr.Result, error)
	Health(ctx context.Context) error
}

// Upload carries one incoming file.
type Upload struct {
	Name        string
	Size        int64
	ContentType string
	Data        io.Reader
}

// Options tune validation limits and queue behavior.
type Options struct {
	MaxFileSize     int64
	AllowedTypes    []string
	MaxNameLen      int
	DefaultFormat   string
	DefaultLanguage string
	// QueuePacing is the delay inserted between consecutive queue items.
	QueuePacing time.Duration
}

type queueItem struct {
	fileID   string
	format   string
	language string
}

// Coordinator serializes all conversions through a single background loop
// and guards shared state with one mutex.
type Coordinator struct {
	opts  Options
	store *storage.MemoryStore
	blobs storage.Blob
	bus   *event.Bus
	conv  Converter
	log   zerolog.Logger

	mu         sync.Mutex
	pending    []queueItem
	processing bool
	cancels    map[string]context.CancelFunc

	wake    chan struct{}
	baseCtx context.Context
	stop    context.CancelFunc
	stopped chan struct{}
}

// New builds a Coordinator and starts its queue loop. Call Close to stop it.
func New(opts Options, store *storage.MemoryStore, blobs storage.Blob, bus *event.Bus, conv Converter, log zerolog.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		opts:    opts,
		store:   store,
		blobs:   blobs,
		bus:     bus,
		conv:    conv,
		log:     log,
		cancels: make(map[string]context.CancelFunc),
		wake:    make(chan struct{}, 1),
		baseCtx: ctx,
		stop:    cancel,
		stopped: make(chan struct{}),
	}
	go c.run()
	return c
}

// Close stops the queue loop and waits for the in-flight item to settle.
func (c *Coordinator) Close() {
	c.stop()
	<-c.stopped
}

// Validate checks a file against the configured limits. It has no side
// effects and reports every violation at once.
func (c *Coordinator) Validate(name string, size int64, contentType string) Validation {
	return ValidateFile(c.opts, name, size, contentType)
}

// ValidateFile applies the upload limits without needing a running
// Coordinator. The CLI uses it to reject files before contacting the
// backend.
func ValidateFile(opts Options, name string, size int64, contentType string) Validation {
	var errs []string
	if strings.TrimSpace(name) == "" {
		errs = append(errs, "file name is empty")
	} else if opts.MaxNameLen > 0 && len(name) > opts.MaxNameLen {
		errs = append(errs, fmt.Sprintf("file name exceeds %d characters", opts.MaxNameLen))
	}
	if size <= 0 {
		errs = append(errs, "file is empty")
	} else if opts.MaxFileSize > 0 && size > opts.MaxFileSize {
		errs = append(errs, fmt.Sprintf("file exceeds the %d MB limit", opts.MaxFileSize>>20))
	}
	allowed := false
	for _, t := range opts.AllowedTypes {
		if strings.EqualFold(t, contentType) {
			allowed = true
			break
		}
	}
	if !allowed {
		errs = append(errs, fmt.Sprintf("unsupported file type %q", contentType))
	}
	return Validation{Valid: len(errs) == 0, Errors: errs}
}

// ProcessUpload validates and stores an incoming file. Cancelling ctx rolls
// the record back to idle without publishing a failure; every other error
// marks the record failed and publishes upload.failed.
func (c *Coordinator) ProcessUpload(ctx context.Context, up Upload) (*model.FileRecord, error) {
	if v := c.Validate(up.Name, up.Size, up.ContentType); !v.Valid {
		verr := &ValidationError{Reasons: v.Errors}
		c.bus.Publish(event.NewUploadFailedEvent("", up.Name, verr.Error()))
		return nil, verr
	}

	id := uuid.NewString()
	rec := &model.FileRecord{
		ID:          id,
		Name:        up.Name,
		Size:        up.Size,
		ContentType: up.ContentType,
		Status:      model.StatusUploading,
		ObjectKey:   "uploads/" + id + "/" + up.Name,
	}
	c.store.Save(rec)
	c.bus.Publish(event.NewUploadStartedEvent(id, up.Name, up.Size))

	upCtx, cancel := context.WithCancel(ctx)
	c.setCancel(id, cancel)
	defer c.clearCancel(id)

	data, err := c.readUpload(upCtx, id, up)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// User cancellation is not a failure. The record returns to
			// idle and nothing partial remains in blob storage.
			_ = c.store.Update(id, func(r *model.FileRecord) {
				r.Status = model.StatusIdle
				r.Progress = 0
			})
			return nil, context.Canceled
		}
		c.failUpload(id, up.Name, fmt.Sprintf("upload failed: %v", err))
		return nil, err
	}

	if err := c.blobs.Put(upCtx, rec.ObjectKey, bytes.NewReader(data), int64(len(data)), up.ContentType); err != nil {
		if errors.Is(err, context.Canceled) {
			_ = c.store.Update(id, func(r *model.FileRecord) {
				r.Status = model.StatusIdle
				r.Progress = 0
			})
			_ = c.blobs.Delete(context.Background(), rec.ObjectKey)
			return nil, context.Canceled
		}
		c.failUpload(id, up.Name, fmt.Sprintf("store file: %v", err))
		return nil, err
	}

	// Metadata extraction is best effort; a file the decoder rejects can
	// still be converted by the backend.
	var meta *model.ImageMetadata
	if m, err := preprocess.Inspect(bytes.NewReader(data)); err == nil {
		meta = &m
	}

	now := time.Now().UTC()
	err = c.store.Update(id, func(r *model.FileRecord) {
		r.Status = model.StatusUploaded
		r.Progress = 100
		r.UploadedAt = now
		r.Metadata = meta
		r.Message = ""
	})
	if err != nil {
		// Record was removed mid-upload; clean up the orphan blob.
		_ = c.blobs.Delete(context.Background(), rec.ObjectKey)
		return nil, err
	}
	out, _ := c.store.Get(id)
	c.bus.Publish(event.NewUploadCompletedEvent(*out))
	return out, nil
}

// readUpload drains the upload reader, reporting progress as it goes.
func (c *Coordinator) readUpload(ctx context.Context, id string, up Upload) ([]byte, error) {
	buf := make([]byte, 0, up.Size)
	chunk := make([]byte, 32*1024)
	var lastPct int
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := up.Data.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if int64(len(buf)) > up.Size {
				return nil, fmt.Errorf("payload larger than declared size %d", up.Size)
			}
			pct := int(float64(len(buf)) / float64(up.Size) * 100)
			if pct > lastPct {
				lastPct = pct
				_ = c.store.Update(id, func(r *model.FileRecord) { r.Progress = float64(pct) })
				c.bus.Publish(event.NewUploadProgressEvent(id, float64(pct)))
			}
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c *Coordinator) failUpload(id, name, reason string) {
	_ = c.store.Update(id, func(r *model.FileRecord) {
		r.Status = model.StatusError
		r.Message = reason
	})
	c.bus.Publish(event.NewUploadFailedEvent(id, name, reason))
}

// StartConversion moves an uploaded file to converting and queues it. Only
// files in uploaded state may be queued; anything else is rejected without
// mutating the record. The backend health check gates enqueueing so the
// queue never fills with doomed work.
func (c *Coordinator) StartConversion(ctx context.Context, fileID, format, language string) error {
	rec, err := c.store.Get(fileID)
	if err != nil {
		c.bus.Publish(event.NewSystemErrorEvent("cannot start conversion", "file not found"))
		return err
	}
	if rec.Status != model.StatusUploaded {
		c.bus.Publish(event.NewSystemErrorEvent("cannot start conversion",
			fmt.Sprintf("%s is %s, not uploaded", rec.Name, rec.Status)))
		return fmt.Errorf("%w: status %s", ErrNotReady, rec.Status)
	}
	if format == "" {
		format = c.opts.DefaultFormat
	}
	if language == "" {
		language = c.opts.DefaultLanguage
	}

	if err := c.conv.Health(ctx); err != nil {
		c.bus.Publish(event.NewSystemErrorEvent("conversion service unavailable", err.Error()))
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	started := time.Now().UTC()
	_ = c.store.Update(fileID, func(r *model.FileRecord) {
		r.Status = model.StatusConverting
		r.TargetFormat = format
		r.Language = language
		r.Message = ""
		r.Progress = 0
		r.ConversionStartedAt = &started
	})
	if queued, err := c.store.Get(fileID); err == nil {
		c.bus.Publish(event.NewConversionStartedEvent(*queued, format))
	}

	c.mu.Lock()
	c.pending = append(c.pending, queueItem{fileID: fileID, format: format, language: language})
	c.mu.Unlock()
	c.signal()
	return nil
}

// Cancel aborts the file's in-flight upload or conversion, or removes it
// from the queue if it has not started yet. It reports whether anything was
// cancelled.
func (c *Coordinator) Cancel(fileID string) bool {
	c.mu.Lock()
	if cancel, ok := c.cancels[fileID]; ok {
		c.mu.Unlock()
		cancel()
		return true
	}
	for i, item := range c.pending {
		if item.fileID == fileID {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			c.mu.Unlock()
			// The item never ran, so the converting transition made at
			// queue time is rolled back.
			_ = c.store.Update(fileID, func(r *model.FileRecord) {
				r.Status = model.StatusUploaded
				r.Progress = 0
				r.ConversionStartedAt = nil
			})
			return true
		}
	}
	c.mu.Unlock()
	return false
}

// Download streams the converted document to w.
func (c *Coordinator) Download(ctx context.Context, fileID string, w io.Writer) (*model.FileRecord, error) {
	rec, err := c.store.Get(fileID)
	if err != nil {
		c.bus.Publish(event.NewSystemErrorEvent("cannot download document", "file not found"))
		return nil, err
	}
	if rec.Status != model.StatusConverted {
		c.bus.Publish(event.NewSystemErrorEvent("cannot download document",
			fmt.Sprintf("%s is %s, not converted", rec.Name, rec.Status)))
		return nil, fmt.Errorf("%w: status %s", ErrNotReady, rec.Status)
	}
	c.bus.Publish(event.NewDownloadStartedEvent(*rec))
	r, _, err := c.blobs.Get(ctx, rec.DownloadKey)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	defer r.Close()
	if _, err := io.Copy(w, r); err != nil {
		return nil, fmt.Errorf("stream document: %w", err)
	}
	c.bus.Publish(event.NewDownloadCompletedEvent(*rec))
	return rec, nil
}

// RemoveFile cancels any active work, deletes blobs and forgets the record.
func (c *Coordinator) RemoveFile(ctx context.Context, fileID string) error {
	c.Cancel(fileID)
	rec, err := c.store.Delete(fileID)
	if err != nil {
		return err
	}
	c.deleteBlobs(ctx, rec)
	c.bus.Publish(event.NewFileRemovedEvent(rec.ID, rec.Name))
	return nil
}

// ClearAllFiles cancels everything and removes every record and blob.
func (c *Coordinator) ClearAllFiles(ctx context.Context) int {
	c.mu.Lock()
	for _, cancel := range c.cancels {
		cancel()
	}
	c.pending = nil
	c.mu.Unlock()

	records := c.store.Clear()
	for _, rec := range records {
		c.deleteBlobs(ctx, rec)
	}
	c.bus.Publish(event.NewFilesClearedEvent(len(records)))
	return len(records)
}

func (c *Coordinator) deleteBlobs(ctx context.Context, rec *model.FileRecord) {
	if rec.ObjectKey != "" {
		if err := c.blobs.Delete(ctx, rec.ObjectKey); err != nil {
			c.log.Warn().Err(err).Str("key", rec.ObjectKey).Msg("delete upload blob")
		}
	}
	if rec.DownloadKey != "" {
		if err := c.blobs.Delete(ctx, rec.DownloadKey); err != nil {
			c.log.Warn().Err(err).Str("key", rec.DownloadKey).Msg("delete document blob")
		}
	}
}

// File returns a copy of one record.
func (c *Coordinator) File(fileID string) (*model.FileRecord, error) {
	return c.store.Get(fileID)
}

// Files returns copies of all records in insertion order.
func (c *Coordinator) Files() []*model.FileRecord {
	return c.store.List()
}

// Stats aggregates record counts and queue state.
func (c *Coordinator) Stats() model.Stats {
	stats := model.Stats{}
	for _, rec := range c.store.List() {
		stats.Total++
		switch rec.Status {
		case model.StatusUploading:
			stats.Uploading++
		case model.StatusUploaded:
			stats.Uploaded++
		case model.StatusConverting:
			stats.Converting++
		case model.StatusConverted:
			stats.Converted++
		case model.StatusError:
			stats.Error++
		}
	}
	c.mu.Lock()
	stats.QueueLen = len(c.pending)
	stats.Processing = c.processing
	c.mu.Unlock()
	return stats
}

func (c *Coordinator) setCancel(fileID string, cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancels[fileID] = cancel
	c.mu.Unlock()
}

func (c *Coordinator) clearCancel(fileID string) {
	c.mu.Lock()
	delete(c.cancels, fileID)
	c.mu.Unlock()
}

func (c *Coordinator) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// documentName derives the converted artifact's file name when the backend
// does not supply one.
func documentName(original, format string) string {
	base := strings.TrimSuffix(original, path.Ext(original))
	if base == "" {
		base = "document"
	}
	return base + "." + format
}
