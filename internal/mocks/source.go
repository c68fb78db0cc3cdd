package mocks

import (
	"context"

	"github.com/brettbedarf/memfs/adapters"
	"github.com/stretchr/testify/mock"
)

// MockSourceProvider implements adapters.SourceProvider for testing
type MockSourceProvider struct {
	mock.Mock
}

func (m *MockSourceProvider) NewSource(raw []byte) (adapters.Source, error) {
	args := m.Called(raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(adapters.Source), args.Error(1)
}

// MockSource implements adapters.Source for testing
type MockSource struct {
	mock.Mock
}

func (m *MockSource) Fetch(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

var (
	_ adapters.SourceProvider = (*MockSourceProvider)(nil)
	_ adapters.Source         = (*MockSource)(nil)
)
