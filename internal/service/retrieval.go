package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"patientdocs/internal/audit"
	"patientdocs/internal/auth"
	"patientdocs/internal/storage"
)

func (s *fileService) ListPatientFiles(ctx context.Context, token, patientID string) (*ListResult, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	if patientID == "" {
		return nil, ErrPatientIDMissing
	}
	if storage.ValidatePatientID(patientID) != nil {
		return nil, ErrPatientIDInvalid
	}

	identity, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if _, err := s.ensureUser(ctx, identity); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	if !auth.CanAccessPatient(identity, patientID) {
		s.recordAudit(ctx, audit.Event{
			Kind:      audit.KindListDenied,
			UserID:    identity.UserID,
			PatientID: patientID,
			Detail:    map[string]any{"role": identity.Role},
		})
		return nil, ErrForbidden
	}

	docs, err := s.docs.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	// Rows are already newest-first; minting is fanned out over a bounded
	// group because each row's presign is independent and failure-isolated.
	files := make([]PatientFile, len(docs))
	ttl := time.Duration(s.cfg.PresignTTLHours) * time.Hour

	var mu sync.Mutex
	var failed []string

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.PresignConcurrency > 0 {
		g.SetLimit(s.cfg.PresignConcurrency)
	}
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			url, err := s.store.PresignGet(gctx, doc.BlobPath, ttl)
			if err != nil {
				// Fall back to the stored direct URL for this row only.
				url = doc.BlobURL
				mu.Lock()
				failed = append(failed, doc.ID)
				mu.Unlock()
			}
			files[i] = PatientFile{
				ID:         doc.ID,
				Name:       doc.FileName,
				Size:       doc.FileSize,
				UploadedAt: doc.CreatedAt,
				URL:        url,
				BlobPath:   doc.BlobPath,
				UploadedBy: doc.UploadedBy,
			}
			return nil
		})
	}
	_ = g.Wait()

	s.recordAudit(ctx, audit.Event{
		Kind:      audit.KindListCompleted,
		UserID:    identity.UserID,
		PatientID: patientID,
		Detail:    map[string]any{"files": len(files), "url_fallbacks": len(failed)},
	})

	return &ListResult{
		PatientID: patientID,
		Files:     files,
		Warnings:  ListWarnings{SASGenerationFailedFor: failed},
	}, nil
}
