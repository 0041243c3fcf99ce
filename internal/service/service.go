// Package service implements the upload and retrieval pipelines for patient
// documents. Handlers stay thin; all validation, authorization, and
// persistence ordering lives here.
package service

import (
	"context"
	"errors"
	"io"
	"time"

	"patientdocs/internal/model"
)

var (
	ErrUnauthorized     = errors.New("authorization required")
	ErrForbidden        = errors.New("access to this patient's records is not allowed")
	ErrMalformedBody    = errors.New("malformed multipart body")
	ErrPatientIDMissing = errors.New("patientId is required")
	ErrPatientIDInvalid = errors.New("patientId contains invalid characters")
	ErrNoValidFiles     = errors.New("no valid files in request")
	ErrAllFilesFailed   = errors.New("no files were successfully uploaded")
)

// UploadError carries the warnings accumulated during streaming alongside the
// rejection, so a zero-accepted request can still report why each file was
// skipped.
type UploadError struct {
	Err      error
	Warnings model.UploadWarnings
}

func (e *UploadError) Error() string { return e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }

// UploadRequest is the raw upload input: the multipart body, its declared
// content type (carrying the boundary), and the caller's bearer token.
type UploadRequest struct {
	Body        io.Reader
	ContentType string
	Token       string
}

// UploadedFileInfo describes one persisted file in the upload response.
type UploadedFileInfo struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
	BlobName string `json:"blobName"`
}

// UploadResult is the success payload of the upload pipeline.
type UploadResult struct {
	Files      []UploadedFileInfo   `json:"files"`
	Warnings   model.UploadWarnings `json:"warnings"`
	UploadedBy string               `json:"uploadedBy"`
}

// PatientFile is one entry in the retrieval response.
type PatientFile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
	URL        string    `json:"url"`
	BlobPath   string    `json:"blobPath"`
	UploadedBy string    `json:"uploadedBy"`
}

// ListWarnings aggregates per-row retrieval degradations.
type ListWarnings struct {
	SASGenerationFailedFor []string `json:"sasGenerationFailedFor,omitempty"`
}

// ListResult is the payload of the retrieval pipeline.
type ListResult struct {
	PatientID string        `json:"patientId"`
	Files     []PatientFile `json:"files"`
	Warnings  ListWarnings  `json:"warnings"`
}

// FileService defines the use cases for patient document handling.
type FileService interface {
	// Upload runs the multipart upload pipeline: stream-parse and validate
	// each part, authorize the caller, persist accepted files one at a time,
	// and report per-file rejections as warnings.
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)

	// ListPatientFiles authorizes the caller and returns the patient's
	// documents, newest first, each with a fresh time-limited URL.
	ListPatientFiles(ctx context.Context, token, patientID string) (*ListResult, error)
}
