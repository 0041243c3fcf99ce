package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"patientdocs/internal/audit"
	auditMocks "patientdocs/internal/audit/mocks"
	"patientdocs/internal/auth"
	authMocks "patientdocs/internal/auth/mocks"
	"patientdocs/internal/config"
	"patientdocs/internal/model"
	repoMocks "patientdocs/internal/repository/mocks"
	"patientdocs/internal/storage"
	storeMocks "patientdocs/internal/storage/mocks"
)

const testContainer = "patient-docs"

type testPart struct {
	name      string
	mediaType string
	data      []byte
}

func buildMultipart(t *testing.T, patientID string, parts []testPart) (io.Reader, string) {
	t.Helper()
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	if patientID != "" {
		require.NoError(t, w.WriteField("patientId", patientID))
	}
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, p.name))
		h.Set("Content-Type", p.mediaType)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &b, w.FormDataContentType()
}

type uploadMocks struct {
	store    *storeMocks.MockStorage
	docs     *repoMocks.MockDocumentRepository
	users    *repoMocks.MockUserRepository
	resolver *authMocks.MockResolver
	audit    *auditMocks.MockLogger
}

func newUploadService(cfg config.UploadConfig) (FileService, *uploadMocks) {
	m := &uploadMocks{
		store:    new(storeMocks.MockStorage),
		docs:     new(repoMocks.MockDocumentRepository),
		users:    new(repoMocks.MockUserRepository),
		resolver: new(authMocks.MockResolver),
		audit:    new(auditMocks.MockLogger),
	}
	svc := NewFileService(m.store, m.docs, m.users, m.resolver, m.audit, cfg, testContainer)
	return svc, m
}

func defaultUploadConfig() config.UploadConfig {
	return config.UploadConfig{
		MaxFileBytes:       20 * 1024 * 1024,
		MaxFilesPerRequest: 5,
		PresignTTLHours:    24,
		PresignConcurrency: 4,
	}
}

func expectIdentity(m *uploadMocks, identity *auth.Identity) {
	m.resolver.On("Resolve", mock.Anything, "token").Return(identity, nil)
	m.users.On("Upsert", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		return u.ExternalID == identity.UserID
	})).Return(&model.User{ID: "user-uuid", ExternalID: identity.UserID}, nil)
}

func clinician() *auth.Identity {
	return &auth.Identity{UserID: "ext-1", Email: "doc@example.com", Role: "clinician"}
}

func TestUpload_RejectsBeforeParsing(t *testing.T) {
	svc, _ := newUploadService(defaultUploadConfig())
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		_, err := svc.Upload(ctx, UploadRequest{Body: strings.NewReader("x"), ContentType: "multipart/form-data; boundary=b"})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("missing boundary", func(t *testing.T) {
		_, err := svc.Upload(ctx, UploadRequest{Body: strings.NewReader("x"), ContentType: "multipart/form-data", Token: "token"})
		assert.ErrorIs(t, err, ErrMalformedBody)
	})

	t.Run("not multipart", func(t *testing.T) {
		_, err := svc.Upload(ctx, UploadRequest{Body: strings.NewReader("{}"), ContentType: "application/json", Token: "token"})
		assert.ErrorIs(t, err, ErrMalformedBody)
	})

	t.Run("malformed framing", func(t *testing.T) {
		_, err := svc.Upload(ctx, UploadRequest{
			Body:        strings.NewReader("--b\r\ngarbage"),
			ContentType: "multipart/form-data; boundary=b",
			Token:       "token",
		})
		assert.ErrorIs(t, err, ErrMalformedBody)
	})
}

func TestUpload_PatientIDValidation(t *testing.T) {
	svc, _ := newUploadService(defaultUploadConfig())
	ctx := context.Background()

	t.Run("missing patient id", func(t *testing.T) {
		body, ct := buildMultipart(t, "", []testPart{{"a.pdf", "application/pdf", []byte("pdf")}})
		_, err := svc.Upload(ctx, UploadRequest{Body: body, ContentType: ct, Token: "token"})
		assert.ErrorIs(t, err, ErrPatientIDMissing)
	})

	t.Run("invalid patient id", func(t *testing.T) {
		body, ct := buildMultipart(t, "../etc", []testPart{{"a.pdf", "application/pdf", []byte("pdf")}})
		_, err := svc.Upload(ctx, UploadRequest{Body: body, ContentType: ct, Token: "token"})
		assert.ErrorIs(t, err, ErrPatientIDInvalid)
	})

	t.Run("overlong patient id is rejected, not truncated", func(t *testing.T) {
		svc, m := newUploadService(defaultUploadConfig())
		longID := strings.Repeat("a", 1500)
		body, ct := buildMultipart(t, longID, []testPart{{"a.pdf", "application/pdf", []byte("pdf")}})

		_, err := svc.Upload(ctx, UploadRequest{Body: body, ContentType: ct, Token: "token"})

		assert.ErrorIs(t, err, ErrPatientIDInvalid)
		m.store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("last patient id value wins", func(t *testing.T) {
		var b bytes.Buffer
		w := multipart.NewWriter(&b)
		require.NoError(t, w.WriteField("patientId", "FIRST"))
		require.NoError(t, w.WriteField("patientId", "bad/id"))
		require.NoError(t, w.Close())

		_, err := svc.Upload(ctx, UploadRequest{Body: &b, ContentType: w.FormDataContentType(), Token: "token"})
		assert.ErrorIs(t, err, ErrPatientIDInvalid)
	})
}

func TestUpload_StreamingRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unsupported type only", func(t *testing.T) {
		svc, _ := newUploadService(defaultUploadConfig())
		body, ct := buildMultipart(t, "PAT-001", []testPart{{"notes.txt", "text/plain", []byte("hello")}})

		_, err := svc.Upload(ctx, UploadRequest{Body: body, ContentType: ct, Token: "token"})

		assert.ErrorIs(t, err, ErrNoValidFiles)
		var ue *UploadError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, []string{"notes.txt"}, ue.Warnings.UnsupportedFiles)
	})

	t.Run("oversized rejected, valid sibling persists", func(t *testing.T) {
		cfg := defaultUploadConfig()
		cfg.MaxFileBytes = 8
		svc, m := newUploadService(cfg)

		body, ct := buildMultipart(t, "PAT-001", []testPart{
			{"big.pdf", "application/pdf", []byte("way more than eight bytes")},
			{"ok.png", "image/png", []byte("tiny")},
		})

		expectIdentity(m, clinician())
		m.store.On("Upload", mock.Anything, "PAT-001", "ok.png", []byte("tiny"), "image/png").
			Return(storage.UploadResult{Key: "PAT-001/1-ab-ok.png", URL: "https://s/ok.png", SanitizedName: "ok.png"}, nil)
		m.docs.On("Create", mock.Anything, mock.Anything).Return(&model.Document{ID: "d1"}, nil)
		m.audit.On("Record", mock.Anything, mock.MatchedBy(func(ev audit.Event) bool {
			return ev.Kind == audit.KindUploadCompleted
		})).Return(nil)

		res, err := svc.Upload(ctx, UploadRequest{Body: body, ContentType: ct, Token: "token"})

		require.NoError(t, err)
		assert.Len(t, res.Files, 1)
		assert.Equal(t, "ok.png", res.Files[0].Filename)
		assert.Equal(t, []string{"big.pdf"}, res.Warnings.OversizedFiles)
		m.store.AssertNumberOfCalls(t, "Upload", 1)
	})

	t.Run("files over per-request cap are skipped", func(t *testing.T) {
		cfg := defaultUploadConfig()
		cfg.MaxFilesPerRequest = 1
		svc, m := newUploadService(cfg)

		body, ct := buildMultipart(t, "PAT-001", []testPart{
			{"a.pdf", "application/pdf", []byte("one")},
			{"b.pdf", "application/pdf", []byte("two")},
		})

		expectIdentity(m, clinician())
		m.store.On("Upload", mock.Anything, "PAT-001", "a.pdf", []byte("one"), "application/pdf").
			Return(storage.UploadResult{Key: "PAT-001/1-ab-a.pdf", URL: "https://s/a.pdf", SanitizedName: "a.pdf"}, nil)
		m.docs.On("Create", mock.Anything, mock.Anything).Return(&model.Document{ID: "d1"}, nil)
		m.audit.On("Record", mock.Anything, mock.Anything).Return(nil)

		res, err := svc.Upload(ctx, UploadRequest{Body: body, ContentType: ct, Token: "token"})

		require.NoError(t, err)
		assert.Len(t, res.Files, 1)
		assert.True(t, res.Warnings.MaxFilesExceeded)
		m.store.AssertNumberOfCalls(t, "Upload", 1)
	})
}

func TestUpload_Authorization(t *testing.T) {
	ctx := context.Background()

	t.Run("unresolvable token", func(t *testing.T) {
		svc, m := newUploadService(defaultUploadConfig())
		body, ct := buildMultipart(t, "PAT-001", []testPart{{"a.pdf", "application/pdf", []byte("pdf")}})

		m.resolver.On("Resolve", mock.Anything, "token").Return(nil, auth.ErrTokenInvalid)

		_, err := svc.Upload(ctx, UploadRequest{Body: body, ContentType: ct, Token: "token"})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("patient uploading to another record is denied and audited once", func(t *testing.T) {
		svc, m := newUploadService(defaultUploadConfig())
		body, ct := buildMultipart(t, "B", []testPart{{"a.pdf", "application/pdf", []byte("pdf")}})

		expectIdentity(m, &auth.Identity{UserID: "ext-2", Role: model.RolePatient, PatientID: "A"})
		m.audit.On("Record", mock.Anything, mock.MatchedBy(func(ev audit.Event) bool {
			return ev.Kind == audit.KindUploadDenied && ev.PatientID == "B"
		})).Return(nil).Once()

		_, err := svc.Upload(ctx, UploadRequest{Body: body, ContentType: ct, Token: "token"})

		assert.ErrorIs(t, err, ErrForbidden)
		m.audit.AssertNumberOfCalls(t, "Record", 1)
		m.store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("patient uploading to own record passes", func(t *testing.T) {
		svc, m := newUploadService(defaultUploadConfig())
		body, ct := buildMultipart(t, "A", []testPart{{"a.pdf", "application/pdf", []byte("pdf")}})

		expectIdentity(m, &auth.Identity{UserID: "ext-2", Role: model.RolePatient, PatientID: "A"})
		m.store.On("Upload", mock.Anything, "A", "a.pdf", []byte("pdf"), "application/pdf").
			Return(storage.UploadResult{Key: "A/1-ab-a.pdf", URL: "https://s/a.pdf", SanitizedName: "a.pdf"}, nil)
		m.docs.On("Create", mock.Anything, mock.Anything).Return(&model.Document{ID: "d1"}, nil)
		m.audit.On("Record", mock.Anything, mock.Anything).Return(nil)

		res, err := svc.Upload(ctx, UploadRequest{Body: body, ContentType: ct, Token: "token"})

		require.NoError(t, err)
		assert.Len(t, res.Files, 1)
	})
}

func TestUpload_PartialFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("one storage failure out of three does not abort the rest", func(t *testing.T) {
		svc, m := newUploadService(defaultUploadConfig())
		body, ct := buildMultipart(t, "PAT-001", []testPart{
			{"a.pdf", "application/pdf", []byte("aa")},
			{"b.pdf", "application/pdf", []byte("bb")},
			{"c.pdf", "application/pdf", []byte("cc")},
		})

		expectIdentity(m, clinician())
		m.store.On("Upload", mock.Anything, "PAT-001", "a.pdf", mock.Anything, "application/pdf").
			Return(storage.UploadResult{Key: "PAT-001/1-a.pdf", URL: "u1", SanitizedName: "a.pdf"}, nil)
		m.store.On("Upload", mock.Anything, "PAT-001", "b.pdf", mock.Anything, "application/pdf").
			Return(storage.UploadResult{}, errors.New("blob service down"))
		m.store.On("Upload", mock.Anything, "PAT-001", "c.pdf", mock.Anything, "application/pdf").
			Return(storage.UploadResult{Key: "PAT-001/3-c.pdf", URL: "u3", SanitizedName: "c.pdf"}, nil)
		m.docs.On("Create", mock.Anything, mock.Anything).Return(&model.Document{ID: "d"}, nil)
		m.audit.On("Record", mock.Anything, mock.MatchedBy(func(ev audit.Event) bool {
			return ev.Kind == audit.KindUploadCompleted
		})).Return(nil)

		res, err := svc.Upload(ctx, UploadRequest{Body: body, ContentType: ct, Token: "token"})

		require.NoError(t, err)
		assert.Len(t, res.Files, 2)
		assert.Equal(t, "a.pdf", res.Files[0].Filename)
		assert.Equal(t, "c.pdf", res.Files[1].Filename)
	})

	t.Run("all files failing rejects the request", func(t *testing.T) {
		svc, m := newUploadService(defaultUploadConfig())
		body, ct := buildMultipart(t, "PAT-001", []testPart{
			{"a.pdf", "application/pdf", []byte("aa")},
			{"b.pdf", "application/pdf", []byte("bb")},
		})

		expectIdentity(m, clinician())
		m.store.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(storage.UploadResult{}, errors.New("blob service down"))

		_, err := svc.Upload(ctx, UploadRequest{Body: body, ContentType: ct, Token: "token"})

		assert.ErrorIs(t, err, ErrAllFilesFailed)
		m.audit.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	})

	t.Run("row insert failure deletes the blob and continues", func(t *testing.T) {
		svc, m := newUploadService(defaultUploadConfig())
		body, ct := buildMultipart(t, "PAT-001", []testPart{
			{"a.pdf", "application/pdf", []byte("aa")},
			{"b.pdf", "application/pdf", []byte("bb")},
		})

		expectIdentity(m, clinician())
		m.store.On("Upload", mock.Anything, "PAT-001", "a.pdf", mock.Anything, "application/pdf").
			Return(storage.UploadResult{Key: "PAT-001/1-a.pdf", URL: "u1", SanitizedName: "a.pdf"}, nil)
		m.store.On("Upload", mock.Anything, "PAT-001", "b.pdf", mock.Anything, "application/pdf").
			Return(storage.UploadResult{Key: "PAT-001/2-b.pdf", URL: "u2", SanitizedName: "b.pdf"}, nil)
		m.docs.On("Create", mock.Anything, mock.MatchedBy(func(d *model.Document) bool {
			return d.FileName == "a.pdf"
		})).Return(nil, errors.New("insert failed"))
		m.docs.On("Create", mock.Anything, mock.MatchedBy(func(d *model.Document) bool {
			return d.FileName == "b.pdf"
		})).Return(&model.Document{ID: "d2"}, nil)
		m.store.On("Delete", mock.Anything, "PAT-001/1-a.pdf").Return(nil).Once()
		m.audit.On("Record", mock.Anything, mock.Anything).Return(nil)

		res, err := svc.Upload(ctx, UploadRequest{Body: body, ContentType: ct, Token: "token"})

		require.NoError(t, err)
		assert.Len(t, res.Files, 1)
		assert.Equal(t, "b.pdf", res.Files[0].Filename)
		m.store.AssertExpectations(t)
	})
}

func TestUpload_RecordsDocumentRow(t *testing.T) {
	svc, m := newUploadService(defaultUploadConfig())
	ctx := context.Background()

	body, ct := buildMultipart(t, "PAT-001", []testPart{{"scan.png", "image/png", []byte("png-bytes")}})

	expectIdentity(m, clinician())
	m.store.On("Upload", mock.Anything, "PAT-001", "scan.png", []byte("png-bytes"), "image/png").
		Return(storage.UploadResult{Key: "PAT-001/1-ab-scan.png", URL: "https://s/scan.png", SanitizedName: "scan.png"}, nil)
	m.docs.On("Create", mock.Anything, mock.MatchedBy(func(d *model.Document) bool {
		return d.PatientID == "PAT-001" &&
			d.UserID == "user-uuid" &&
			d.FileName == "scan.png" &&
			d.FileType == "image/png" &&
			d.FileSize == int64(len("png-bytes")) &&
			d.BlobPath == "PAT-001/1-ab-scan.png" &&
			d.BlobContainer == testContainer &&
			d.UploadedBy == "ext-1"
	})).Return(&model.Document{ID: "d1"}, nil)
	m.audit.On("Record", mock.Anything, mock.Anything).Return(nil)

	res, err := svc.Upload(ctx, UploadRequest{Body: body, ContentType: ct, Token: "token"})

	require.NoError(t, err)
	assert.Equal(t, "doc@example.com", res.UploadedBy)
	m.docs.AssertExpectations(t)
}
