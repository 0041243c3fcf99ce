package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"patientdocs/internal/auth"
)

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, token string) (*auth.Identity, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Identity), args.Error(1)
}
