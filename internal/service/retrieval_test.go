package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"patientdocs/internal/audit"
	"patientdocs/internal/auth"
	"patientdocs/internal/model"
)

func patientDocs(n int) []model.Document {
	docs := make([]model.Document, n)
	base := time.Now().UTC()
	for i := range docs {
		docs[i] = model.Document{
			ID:         string(rune('a' + i)),
			PatientID:  "PAT-001",
			FileName:   "file.pdf",
			FileSize:   int64(10 * (i + 1)),
			BlobURL:    "https://s/direct-" + string(rune('a'+i)),
			BlobPath:   "PAT-001/key-" + string(rune('a'+i)),
			UploadedBy: "ext-1",
			CreatedAt:  base.Add(-time.Duration(i) * time.Minute),
		}
	}
	return docs
}

func TestListPatientFiles_InputValidation(t *testing.T) {
	svc, _ := newUploadService(defaultUploadConfig())
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		_, err := svc.ListPatientFiles(ctx, "", "PAT-001")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("missing patient id", func(t *testing.T) {
		_, err := svc.ListPatientFiles(ctx, "token", "")
		assert.ErrorIs(t, err, ErrPatientIDMissing)
	})

	t.Run("invalid patient id", func(t *testing.T) {
		_, err := svc.ListPatientFiles(ctx, "token", "a/b")
		assert.ErrorIs(t, err, ErrPatientIDInvalid)
	})
}

func TestListPatientFiles_Authorization(t *testing.T) {
	ctx := context.Background()

	t.Run("patient listing another record is denied and audited once", func(t *testing.T) {
		svc, m := newUploadService(defaultUploadConfig())

		expectIdentity(m, &auth.Identity{UserID: "ext-2", Role: model.RolePatient, PatientID: "A"})
		m.audit.On("Record", mock.Anything, mock.MatchedBy(func(ev audit.Event) bool {
			return ev.Kind == audit.KindListDenied && ev.PatientID == "B"
		})).Return(nil).Once()

		_, err := svc.ListPatientFiles(ctx, "token", "B")

		assert.ErrorIs(t, err, ErrForbidden)
		m.audit.AssertNumberOfCalls(t, "Record", 1)
		m.docs.AssertNotCalled(t, "ListByPatient", mock.Anything, mock.Anything)
	})

	t.Run("unresolvable token", func(t *testing.T) {
		svc, m := newUploadService(defaultUploadConfig())
		m.resolver.On("Resolve", mock.Anything, "token").Return(nil, auth.ErrTokenInvalid)

		_, err := svc.ListPatientFiles(ctx, "token", "PAT-001")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestListPatientFiles_PresignsEachRow(t *testing.T) {
	svc, m := newUploadService(defaultUploadConfig())
	ctx := context.Background()

	docs := patientDocs(2)
	expectIdentity(m, clinician())
	m.docs.On("ListByPatient", mock.Anything, "PAT-001").Return(docs, nil)
	m.store.On("PresignGet", mock.Anything, docs[0].BlobPath, 24*time.Hour).Return("https://signed/a", nil)
	m.store.On("PresignGet", mock.Anything, docs[1].BlobPath, 24*time.Hour).Return("https://signed/b", nil)
	m.audit.On("Record", mock.Anything, mock.MatchedBy(func(ev audit.Event) bool {
		return ev.Kind == audit.KindListCompleted
	})).Return(nil)

	res, err := svc.ListPatientFiles(ctx, "token", "PAT-001")

	require.NoError(t, err)
	assert.Equal(t, "PAT-001", res.PatientID)
	require.Len(t, res.Files, 2)
	// Row order follows the repository's newest-first ordering.
	assert.Equal(t, docs[0].ID, res.Files[0].ID)
	assert.Equal(t, "https://signed/a", res.Files[0].URL)
	assert.Equal(t, "https://signed/b", res.Files[1].URL)
	assert.Empty(t, res.Warnings.SASGenerationFailedFor)
}

func TestListPatientFiles_PresignFallback(t *testing.T) {
	svc, m := newUploadService(defaultUploadConfig())
	ctx := context.Background()

	docs := patientDocs(5)
	expectIdentity(m, clinician())
	m.docs.On("ListByPatient", mock.Anything, "PAT-001").Return(docs, nil)
	for i, d := range docs {
		if i == 2 {
			m.store.On("PresignGet", mock.Anything, d.BlobPath, 24*time.Hour).
				Return("", errors.New("signing unavailable"))
			continue
		}
		m.store.On("PresignGet", mock.Anything, d.BlobPath, 24*time.Hour).
			Return("https://signed/"+d.ID, nil)
	}
	m.audit.On("Record", mock.Anything, mock.Anything).Return(nil)

	res, err := svc.ListPatientFiles(ctx, "token", "PAT-001")

	require.NoError(t, err)
	require.Len(t, res.Files, 5)
	assert.Equal(t, docs[2].BlobURL, res.Files[2].URL)
	assert.Equal(t, []string{docs[2].ID}, res.Warnings.SASGenerationFailedFor)
	for i, f := range res.Files {
		if i != 2 {
			assert.Equal(t, "https://signed/"+docs[i].ID, f.URL)
		}
	}
}

func TestListPatientFiles_RepositoryError(t *testing.T) {
	svc, m := newUploadService(defaultUploadConfig())
	ctx := context.Background()

	expectIdentity(m, clinician())
	m.docs.On("ListByPatient", mock.Anything, "PAT-001").Return(nil, errors.New("db down"))

	_, err := svc.ListPatientFiles(ctx, "token", "PAT-001")
	assert.Error(t, err)
}

func TestListPatientFiles_EmptyList(t *testing.T) {
	svc, m := newUploadService(defaultUploadConfig())
	ctx := context.Background()

	expectIdentity(m, clinician())
	m.docs.On("ListByPatient", mock.Anything, "PAT-001").Return([]model.Document{}, nil)
	m.audit.On("Record", mock.Anything, mock.Anything).Return(nil)

	res, err := svc.ListPatientFiles(ctx, "token", "PAT-001")

	require.NoError(t, err)
	assert.Empty(t, res.Files)
}
