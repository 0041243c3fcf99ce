package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"patientdocs/internal/storage"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Upload(ctx context.Context, patientID, fileName string, data []byte, mediaType string) (storage.UploadResult, error) {
	args := m.Called(ctx, patientID, fileName, data, mediaType)
	return args.Get(0).(storage.UploadResult), args.Error(1)
}

func (m *MockStorage) Download(ctx context.Context, keyOrURL string) ([]byte, error) {
	args := m.Called(ctx, keyOrURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorage) ListByPatient(ctx context.Context, patientID string) ([]storage.Entry, error) {
	args := m.Called(ctx, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.Entry), args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, keyOrURL string) error {
	args := m.Called(ctx, keyOrURL)
	return args.Error(0)
}

func (m *MockStorage) PresignGet(ctx context.Context, keyOrURL string, validity time.Duration) (string, error) {
	args := m.Called(ctx, keyOrURL, validity)
	return args.String(0), args.Error(1)
}
