package gateway

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of the Client interface for testing.
type MockClient struct {
	mock.Mock
}

// BlogInfo is the mock implementation of the BlogInfo method.
func (m *MockClient) BlogInfo(ctx context.Context, name string) (BlogInfoResult, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(BlogInfoResult), args.Error(1)
}

// Posts is the mock implementation of the Posts method.
func (m *MockClient) Posts(ctx context.Context, name string, limit, offset int) (PostsResult, error) {
	args := m.Called(ctx, name, limit, offset)
	return args.Get(0).(PostsResult), args.Error(1)
}
