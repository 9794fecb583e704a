package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mock types ---

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Provider() BackendProvider {
	args := m.Called()
	return args.Get(0).(BackendProvider)
}

func (m *MockBackend) Synthesize(ctx context.Context, req *Request, outputPath string) (*ResponseMetadata, error) {
	args := m.Called(ctx, req, outputPath)
	if meta, ok := args.Get(0).(*ResponseMetadata); ok {
		return meta, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Tests ---

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	mockBackend := new(MockBackend)
	mockBackend.On("Provider").Return(BackendProviderCommand)

	require.NoError(t, reg.Register(mockBackend))

	got, ok := reg.Get(BackendProviderCommand)
	assert.True(t, ok)
	assert.Equal(t, mockBackend, got)

	// Ensure a missing backend returns false
	_, ok = reg.Get(BackendProviderOpenAI)
	assert.False(t, ok)

	mockBackend.AssertExpectations(t)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewRegistry()

	b1 := new(MockBackend)
	b2 := new(MockBackend)
	b1.On("Provider").Return(BackendProviderOpenAI)
	b2.On("Provider").Return(BackendProviderOpenAI)

	require.NoError(t, reg.Register(b1))
	assert.ErrorIs(t, reg.Register(b2), ErrAlreadyRegistered)

	got, err := reg.MustGet(BackendProviderOpenAI)
	require.NoError(t, err)
	assert.Same(t, b1, got)
}

func TestRegistry_MustGetMissing(t *testing.T) {
	_, err := NewRegistry().MustGet(BackendProviderCommand)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_Close(t *testing.T) {
	reg := NewRegistry()

	b1 := new(MockBackend)
	b2 := new(MockBackend)
	b1.On("Provider").Return(BackendProviderCommand)
	b2.On("Provider").Return(BackendProviderOpenAI)

	// Normal close
	b1.On("Close").Return(nil).Once()
	b2.On("Close").Return(nil).Once()

	require.NoError(t, reg.Register(b1))
	require.NoError(t, reg.Register(b2))

	err := reg.Close()
	assert.NoError(t, err)

	b1.AssertExpectations(t)
	b2.AssertExpectations(t)
}

func TestRegistry_CloseErrorPropagation(t *testing.T) {
	reg := NewRegistry()

	b1 := new(MockBackend)
	b2 := new(MockBackend)

	b1.On("Provider").Return(BackendProviderCommand)
	b2.On("Provider").Return(BackendProviderOpenAI)

	b1.On("Close").Return(errors.New("close failed")).Once()
	b2.On("Close").Return(nil).Once()

	require.NoError(t, reg.Register(b1))
	require.NoError(t, reg.Register(b2))

	err := reg.Close()
	assert.EqualError(t, err, "close failed")

	b1.AssertExpectations(t)
	b2.AssertExpectations(t)
}
