package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"

	"patientdocs/internal/audit"
	"patientdocs/internal/auth"
	"patientdocs/internal/config"
	"patientdocs/internal/model"
	"patientdocs/internal/repository"
	"patientdocs/internal/storage"
)

// allowedMediaTypes is the closed set of accepted upload media types.
var allowedMediaTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

const patientIDField = "patientId"

// maxFieldBytes bounds non-file form field values during streaming; a field
// exceeding it rejects the request rather than being truncated.
const maxFieldBytes = 1024

type fileService struct {
	store     storage.Storage
	docs      repository.DocumentRepository
	users     repository.UserRepository
	resolver  auth.Resolver
	audit     audit.Logger
	cfg       config.UploadConfig
	container string
}

// NewFileService constructs the upload/retrieval service. The container name
// is recorded on every document row and must match the storage adapter's
// bucket.
func NewFileService(
	store storage.Storage,
	docs repository.DocumentRepository,
	users repository.UserRepository,
	resolver auth.Resolver,
	auditLog audit.Logger,
	cfg config.UploadConfig,
	container string,
) FileService {
	return &fileService{
		store:     store,
		docs:      docs,
		users:     users,
		resolver:  resolver,
		audit:     auditLog,
		cfg:       cfg,
		container: container,
	}
}

func (s *fileService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	// Credential presence is checked before any body parsing.
	if req.Token == "" {
		return nil, ErrUnauthorized
	}

	patientID, outcomes, err := s.parseMultipart(req)
	if err != nil {
		return nil, err
	}
	warnings := aggregateWarnings(outcomes)

	if patientID == "" {
		return nil, &UploadError{Err: ErrPatientIDMissing, Warnings: warnings}
	}
	if storage.ValidatePatientID(patientID) != nil {
		return nil, &UploadError{Err: ErrPatientIDInvalid, Warnings: warnings}
	}

	accepted := acceptedFiles(outcomes)
	if len(accepted) == 0 {
		return nil, &UploadError{Err: ErrNoValidFiles, Warnings: warnings}
	}

	// Identity is resolved only after the body parsed cleanly, so a malformed
	// request causes no user-upsert or audit side effects.
	identity, err := s.resolver.Resolve(ctx, req.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	user, err := s.ensureUser(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	if !auth.CanAccessPatient(identity, patientID) {
		s.recordAudit(ctx, audit.Event{
			Kind:      audit.KindUploadDenied,
			UserID:    identity.UserID,
			PatientID: patientID,
			Detail:    map[string]any{"role": identity.Role, "attempted_files": len(accepted)},
		})
		return nil, ErrForbidden
	}

	// Persist sequentially so a partial failure is attributable to a specific
	// file. One file's failure never blocks the rest.
	var persisted []UploadedFileInfo
	var totalBytes int64
	for _, f := range accepted {
		stored, err := s.store.Upload(ctx, patientID, f.FileName, f.Data, f.MediaType)
		if err != nil {
			log.Printf("upload: storing %q for patient %s failed: %v", f.FileName, patientID, err)
			continue
		}

		doc := &model.Document{
			ID:            uuid.New().String(),
			PatientID:     patientID,
			UserID:        user.ID,
			FileName:      stored.SanitizedName,
			FileType:      f.MediaType,
			FileSize:      f.Size,
			BlobURL:       stored.URL,
			BlobPath:      stored.Key,
			BlobContainer: s.container,
			UploadedBy:    identity.UserID,
			CreatedAt:     time.Now().UTC(),
		}
		if _, err := s.docs.Create(ctx, doc); err != nil {
			log.Printf("upload: recording %q for patient %s failed: %v", f.FileName, patientID, err)
			// Compensate: remove the just-written blob so it cannot orphan.
			if delErr := s.store.Delete(ctx, stored.Key); delErr != nil {
				log.Printf("upload: orphaned blob %s: delete failed: %v", stored.Key, delErr)
			}
			continue
		}

		persisted = append(persisted, UploadedFileInfo{
			Filename: stored.SanitizedName,
			Size:     f.Size,
			URL:      stored.URL,
			BlobName: stored.Key,
		})
		totalBytes += f.Size
	}

	if len(persisted) == 0 {
		return nil, &UploadError{Err: ErrAllFilesFailed, Warnings: warnings}
	}

	s.recordAudit(ctx, audit.Event{
		Kind:      audit.KindUploadCompleted,
		UserID:    identity.UserID,
		PatientID: patientID,
		Detail:    map[string]any{"files": len(persisted), "bytes": totalBytes},
	})

	return &UploadResult{
		Files:      persisted,
		Warnings:   warnings,
		UploadedBy: uploadedByLabel(identity),
	}, nil
}

// parseMultipart streams the body part by part. File parts with a disallowed
// media type are never buffered; buffered parts are dropped the moment they
// exceed the per-file cap; parts past the per-request count cap are skipped.
func (s *fileService) parseMultipart(req UploadRequest) (patientID string, outcomes []model.FileOutcome, err error) {
	mediaType, params, err := mime.ParseMediaType(req.ContentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return "", nil, ErrMalformedBody
	}

	mr := multipart.NewReader(req.Body, params["boundary"])
	fileParts := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}

		if part.FileName() == "" {
			if part.FormName() == patientIDField {
				v, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
				if err != nil {
					return "", nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
				}
				// The value must be taken whole; truncating would silently
				// file documents under an identifier the caller never sent.
				if len(v) > maxFieldBytes {
					return "", nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrPatientIDInvalid, patientIDField, maxFieldBytes)
				}
				// Last value wins if the field is repeated.
				patientID = string(v)
			}
			continue
		}

		fileParts++
		outcome := model.FileOutcome{
			File: model.UploadedFile{
				FieldName: part.FormName(),
				FileName:  part.FileName(),
			},
		}

		if fileParts > s.cfg.MaxFilesPerRequest {
			outcome.Status = model.FileRejectedByLimit
			outcomes = append(outcomes, outcome)
			continue
		}

		declared, _, ctErr := mime.ParseMediaType(part.Header.Get("Content-Type"))
		outcome.File.MediaType = declared
		if ctErr != nil || !allowedMediaTypes[declared] {
			// Disallowed type: the part is not read; NextPart discards it.
			outcome.Status = model.FileRejectedInvalidType
			outcomes = append(outcomes, outcome)
			continue
		}

		var buf bytes.Buffer
		n, copyErr := io.Copy(&buf, io.LimitReader(part, s.cfg.MaxFileBytes+1))
		if copyErr != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformedBody, copyErr)
		}
		if n > s.cfg.MaxFileBytes {
			outcome.Status = model.FileRejectedOversized
			outcomes = append(outcomes, outcome)
			continue
		}

		outcome.Status = model.FileAccepted
		outcome.File.Data = buf.Bytes()
		outcome.File.Size = n
		outcomes = append(outcomes, outcome)
	}

	return patientID, outcomes, nil
}

// ensureUser upserts the authenticated identity into the metadata store.
func (s *fileService) ensureUser(ctx context.Context, identity *auth.Identity) (*model.User, error) {
	return s.users.Upsert(ctx, &model.User{
		ID:         uuid.New().String(),
		ExternalID: identity.UserID,
		Email:      identity.Email,
		Role:       identity.Role,
		PatientID:  identity.PatientID,
		FirstName:  identity.FirstName,
		LastName:   identity.LastName,
		CreatedAt:  time.Now().UTC(),
	})
}

// recordAudit logs audit failures instead of failing the request.
func (s *fileService) recordAudit(ctx context.Context, ev audit.Event) {
	if err := s.audit.Record(ctx, ev); err != nil {
		log.Printf("audit: recording %s failed: %v", ev.Kind, err)
	}
}

func aggregateWarnings(outcomes []model.FileOutcome) model.UploadWarnings {
	var w model.UploadWarnings
	for _, o := range outcomes {
		switch o.Status {
		case model.FileRejectedInvalidType:
			w.UnsupportedFiles = append(w.UnsupportedFiles, o.File.FileName)
		case model.FileRejectedOversized:
			w.OversizedFiles = append(w.OversizedFiles, o.File.FileName)
		case model.FileRejectedByLimit:
			w.MaxFilesExceeded = true
		}
	}
	return w
}

func acceptedFiles(outcomes []model.FileOutcome) []model.UploadedFile {
	var files []model.UploadedFile
	for _, o := range outcomes {
		if o.Status == model.FileAccepted {
			files = append(files, o.File)
		}
	}
	return files
}

func uploadedByLabel(identity *auth.Identity) string {
	if identity.Email != "" {
		return identity.Email
	}
	return identity.UserID
}
