package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"patientdocs/internal/service"
)

type MockFileService struct {
	mock.Mock
}

func (m *MockFileService) Upload(ctx context.Context, req service.UploadRequest) (*service.UploadResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func (m *MockFileService) ListPatientFiles(ctx context.Context, token, patientID string) (*service.ListResult, error) {
	args := m.Called(ctx, token, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListResult), args.Error(1)
}
