// Package model contains simple struct definitions shared across packages.
package model

import (
	"time"
)

// FileStatus describes the upload/conversion lifecycle of a file record.
type FileStatus string

const (
	// StatusIdle is the pre-operation state. A record returns here when an
	// in-flight upload is cancelled by the user.
	StatusIdle       FileStatus = "idle"
	StatusUploading  FileStatus = "uploading"
	StatusUploaded   FileStatus = "uploaded"
	StatusConverting FileStatus = "converting"
	StatusConverted  FileStatus = "converted"
	StatusError      FileStatus = "error"
)

// Terminal reports whether no further automatic transition occurs without
// explicit caller action.
func (s FileStatus) Terminal() bool {
	return s == StatusConverted || s == StatusError
}

// ImageMetadata holds opportunistically extracted image properties. Absence
// of metadata is never an error.
type ImageMetadata struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format,omitempty"`
}

// FileRecord holds the coordinator's view of one user file through its
// upload/conversion lifecycle. The coordinator is the sole mutator; every
// record handed to other components is a copy.
type FileRecord struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Size        int64      `json:"size"`
	ContentType string     `json:"contentType"`
	Status      FileStatus `json:"status"`
	// Progress is 0-100 within the current phase and resets when a new
	// phase begins.
	Progress float64 `json:"progress"`
	// ObjectKey references the uploaded payload in blob storage. It is
	// omitted from JSON output because of the "-" struct tag.
	ObjectKey string `json:"-"`

	TargetFormat string         `json:"targetFormat,omitempty"`
	Language     string         `json:"language,omitempty"`
	Metadata     *ImageMetadata `json:"metadata,omitempty"`

	UploadedAt          time.Time  `json:"uploadedAt"`
	ConversionStartedAt *time.Time `json:"conversionStartedAt,omitempty"`
	ConversionEndedAt   *time.Time `json:"conversionEndedAt,omitempty"`

	// Download* describe the converted artifact once Status is converted.
	DownloadKey  string `json:"-"`
	DownloadName string `json:"downloadName,omitempty"`
	DownloadType string `json:"downloadType,omitempty"`
	TextLength   int    `json:"textLength,omitempty"`
	// Pages is set for PDF artifacts when inspection succeeds.
	Pages int `json:"pages,omitempty"`

	// Message carries the most recent error description, if any.
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy safe to hand outside the coordinator.
func (r *FileRecord) Clone() *FileRecord {
	cp := *r
	if r.Metadata != nil {
		m := *r.Metadata
		cp.Metadata = &m
	}
	if r.ConversionStartedAt != nil {
		t := *r.ConversionStartedAt
		cp.ConversionStartedAt = &t
	}
	if r.ConversionEndedAt != nil {
		t := *r.ConversionEndedAt
		cp.ConversionEndedAt = &t
	}
	return &cp
}

// Stats is a point-in-time aggregate over all file records and the
// conversion queue. It is computed fresh on every call, never cached.
type Stats struct {
	Total      int  `json:"total"`
	Uploading  int  `json:"uploading"`
	Uploaded   int  `json:"uploaded"`
	Converting int  `json:"converting"`
	Converted  int  `json:"converted"`
	Error      int  `json:"error"`
	QueueLen   int  `json:"queueLength"`
	Processing bool `json:"isProcessing"`
}
