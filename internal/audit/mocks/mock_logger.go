package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"patientdocs/internal/audit"
)

type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Record(ctx context.Context, ev audit.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}
