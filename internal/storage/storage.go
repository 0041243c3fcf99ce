package storage

// Package storage contains the patient-document blob storage adapter for
// S3-compatible object stores. Keys are namespaced per patient; the adapter is
// the sole writer and reader of raw bytes.

import (
	"context"
	"time"
)

// UploadResult describes where an uploaded file landed.
type UploadResult struct {
	Key           string
	URL           string
	SanitizedName string
}

// Entry is one object listed under a patient's prefix.
type Entry struct {
	Key          string
	Size         int64
	URL          string
	LastModified time.Time
}

// Storage is the blob storage adapter. Implementations must be safe for
// concurrent use by multiple goroutines.
type Storage interface {
	// Upload validates the patient id, sanitizes fileName, manufactures a
	// unique per-patient key, and writes data with the declared media type
	// and descriptive metadata.
	Upload(ctx context.Context, patientID, fileName string, data []byte, mediaType string) (UploadResult, error)
	// Download returns the full content of an object; accepts a bare key or a full URL.
	Download(ctx context.Context, keyOrURL string) ([]byte, error)
	// ListByPatient lists all objects under the patient's prefix. Each entry
	// carries a time-limited URL when one could be minted, otherwise the
	// direct URL.
	ListByPatient(ctx context.Context, patientID string) ([]Entry, error)
	// Delete removes an object; accepts a bare key or a full URL.
	Delete(ctx context.Context, keyOrURL string) error
	// PresignGet produces a signed, read-only URL valid for the given duration.
	PresignGet(ctx context.Context, keyOrURL string, validity time.Duration) (string, error)
}
