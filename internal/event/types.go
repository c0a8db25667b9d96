// Package event defines the typed events that decouple the file coordinator,
// the notification center, and the presentation layers.
package event

import (
	"time"

	"github.com/image2doc/image2doc/internal/model"
)

// Event type identifiers. The set is closed: producers publish only these
// kinds and every kind has exactly one payload struct below.
const (
	TypeUploadStarted       = "upload.started"
	TypeUploadProgress      = "upload.progress"
	TypeUploadCompleted     = "upload.completed"
	TypeUploadFailed        = "upload.failed"
	TypeConversionStarted   = "conversion.started"
	TypeConversionProgress  = "conversion.progress"
	TypeConversionCompleted = "conversion.completed"
	TypeConversionFailed    = "conversion.failed"
	TypeDownloadStarted     = "download.started"
	TypeDownloadCompleted   = "download.completed"
	TypeFileRemoved         = "file.removed"
	TypeFilesCleared        = "files.cleared"
	TypeSystemError         = "system.error"
	TypeSystemWarning       = "system.warning"
	TypeSystemInfo          = "system.info"
	// TypeHandlerFailed is published by the bus itself when a subscriber
	// returns an error or panics during dispatch.
	TypeHandlerFailed = "bus.handler_failed"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns the identifier for this event kind.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events. Embed it in concrete
// event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Upload lifecycle
// -----------------------------------------------------------------------------

// UploadStartedEvent is emitted when a validated file begins uploading.
type UploadStartedEvent struct {
	baseEvent
	FileID string
	Name   string
	Size   int64
}

// NewUploadStartedEvent creates an UploadStartedEvent.
func NewUploadStartedEvent(fileID, name string, size int64) UploadStartedEvent {
	return UploadStartedEvent{
		baseEvent: newBaseEvent(TypeUploadStarted),
		FileID:    fileID,
		Name:      name,
		Size:      size,
	}
}

// UploadProgressEvent reports upload progress in percent (0-100).
type UploadProgressEvent struct {
	baseEvent
	FileID   string
	Progress float64
}

// NewUploadProgressEvent creates an UploadProgressEvent.
func NewUploadProgressEvent(fileID string, progress float64) UploadProgressEvent {
	return UploadProgressEvent{
		baseEvent: newBaseEvent(TypeUploadProgress),
		FileID:    fileID,
		Progress:  progress,
	}
}

// UploadCompletedEvent is emitted when a file reaches the uploaded state.
// File is a snapshot; mutating it has no effect on the coordinator.
type UploadCompletedEvent struct {
	baseEvent
	File model.FileRecord
}

// NewUploadCompletedEvent creates an UploadCompletedEvent.
func NewUploadCompletedEvent(file model.FileRecord) UploadCompletedEvent {
	return UploadCompletedEvent{
		baseEvent: newBaseEvent(TypeUploadCompleted),
		File:      file,
	}
}

// UploadFailedEvent is emitted when an upload attempt ends in error.
type UploadFailedEvent struct {
	baseEvent
	FileID string
	Name   string
	Reason string
}

// NewUploadFailedEvent creates an UploadFailedEvent.
func NewUploadFailedEvent(fileID, name, reason string) UploadFailedEvent {
	return UploadFailedEvent{
		baseEvent: newBaseEvent(TypeUploadFailed),
		FileID:    fileID,
		Name:      name,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Conversion lifecycle
// -----------------------------------------------------------------------------

// ConversionStartedEvent is emitted when a file is accepted for conversion
// and enters the queue.
type ConversionStartedEvent struct {
	baseEvent
	File         model.FileRecord
	TargetFormat string
}

// NewConversionStartedEvent creates a ConversionStartedEvent.
func NewConversionStartedEvent(file model.FileRecord, targetFormat string) ConversionStartedEvent {
	return ConversionStartedEvent{
		baseEvent:    newBaseEvent(TypeConversionStarted),
		File:         file,
		TargetFormat: targetFormat,
	}
}

// ConversionProgressEvent reports conversion progress in percent (0-100).
type ConversionProgressEvent struct {
	baseEvent
	FileID   string
	Progress float64
}

// NewConversionProgressEvent creates a ConversionProgressEvent.
func NewConversionProgressEvent(fileID string, progress float64) ConversionProgressEvent {
	return ConversionProgressEvent{
		baseEvent: newBaseEvent(TypeConversionProgress),
		FileID:    fileID,
		Progress:  progress,
	}
}

// ConversionCompletedEvent is emitted when a conversion reaches the
// converted state and a download reference is available.
type ConversionCompletedEvent struct {
	baseEvent
	File   model.FileRecord
	Format string
}

// NewConversionCompletedEvent creates a ConversionCompletedEvent.
func NewConversionCompletedEvent(file model.FileRecord, format string) ConversionCompletedEvent {
	return ConversionCompletedEvent{
		baseEvent: newBaseEvent(TypeConversionCompleted),
		File:      file,
		Format:    format,
	}
}

// ConversionFailedEvent is emitted when a conversion attempt ends in error.
type ConversionFailedEvent struct {
	baseEvent
	File   model.FileRecord
	Reason string
}

// NewConversionFailedEvent creates a ConversionFailedEvent.
func NewConversionFailedEvent(file model.FileRecord, reason string) ConversionFailedEvent {
	return ConversionFailedEvent{
		baseEvent: newBaseEvent(TypeConversionFailed),
		File:      file,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Download lifecycle
// -----------------------------------------------------------------------------

// DownloadStartedEvent is emitted when a converted artifact starts streaming
// to the caller.
type DownloadStartedEvent struct {
	baseEvent
	File model.FileRecord
}

// NewDownloadStartedEvent creates a DownloadStartedEvent.
func NewDownloadStartedEvent(file model.FileRecord) DownloadStartedEvent {
	return DownloadStartedEvent{
		baseEvent: newBaseEvent(TypeDownloadStarted),
		File:      file,
	}
}

// DownloadCompletedEvent is emitted after a download finished successfully.
type DownloadCompletedEvent struct {
	baseEvent
	File model.FileRecord
}

// NewDownloadCompletedEvent creates a DownloadCompletedEvent.
func NewDownloadCompletedEvent(file model.FileRecord) DownloadCompletedEvent {
	return DownloadCompletedEvent{
		baseEvent: newBaseEvent(TypeDownloadCompleted),
		File:      file,
	}
}

// -----------------------------------------------------------------------------
// Record management
// -----------------------------------------------------------------------------

// FileRemovedEvent is emitted when a record is discarded.
type FileRemovedEvent struct {
	baseEvent
	FileID string
	Name   string
}

// NewFileRemovedEvent creates a FileRemovedEvent.
func NewFileRemovedEvent(fileID, name string) FileRemovedEvent {
	return FileRemovedEvent{
		baseEvent: newBaseEvent(TypeFileRemoved),
		FileID:    fileID,
		Name:      name,
	}
}

// FilesClearedEvent is emitted when all records are discarded at once.
type FilesClearedEvent struct {
	baseEvent
	Count int
}

// NewFilesClearedEvent creates a FilesClearedEvent.
func NewFilesClearedEvent(count int) FilesClearedEvent {
	return FilesClearedEvent{
		baseEvent: newBaseEvent(TypeFilesCleared),
		Count:     count,
	}
}

// -----------------------------------------------------------------------------
// System events
// -----------------------------------------------------------------------------

// SystemErrorEvent carries a user-facing error outside any single record's
// lifecycle (validation rejections, backend unavailability, bad requests).
type SystemErrorEvent struct {
	baseEvent
	Message string
	Details string
}

// NewSystemErrorEvent creates a SystemErrorEvent.
func NewSystemErrorEvent(message, details string) SystemErrorEvent {
	return SystemErrorEvent{
		baseEvent: newBaseEvent(TypeSystemError),
		Message:   message,
		Details:   details,
	}
}

// SystemWarningEvent carries a user-facing warning.
type SystemWarningEvent struct {
	baseEvent
	Message string
	Details string
}

// NewSystemWarningEvent creates a SystemWarningEvent.
func NewSystemWarningEvent(message, details string) SystemWarningEvent {
	return SystemWarningEvent{
		baseEvent: newBaseEvent(TypeSystemWarning),
		Message:   message,
		Details:   details,
	}
}

// SystemInfoEvent carries user-facing informational text.
type SystemInfoEvent struct {
	baseEvent
	Message string
	Details string
}

// NewSystemInfoEvent creates a SystemInfoEvent.
func NewSystemInfoEvent(message, details string) SystemInfoEvent {
	return SystemInfoEvent{
		baseEvent: newBaseEvent(TypeSystemInfo),
		Message:   message,
		Details:   details,
	}
}

// -----------------------------------------------------------------------------
// Bus-internal events
// -----------------------------------------------------------------------------

// HandlerFailedEvent is published by the bus when a subscriber returns an
// error or panics. It references the failing event so diagnostics keep the
// original payload.
type HandlerFailedEvent struct {
	baseEvent
	FailedType string
	Err        error
	Original   Event
}

// NewHandlerFailedEvent creates a HandlerFailedEvent.
func NewHandlerFailedEvent(failedType string, err error, original Event) HandlerFailedEvent {
	return HandlerFailedEvent{
		baseEvent:  newBaseEvent(TypeHandlerFailed),
		FailedType: failedType,
		Err:        err,
		Original:   original,
	}
}
