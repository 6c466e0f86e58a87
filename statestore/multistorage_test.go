package statestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/tee-module-provisioner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockStateBackend implements interfaces.StateBackend for testing
type MockStateBackend struct {
	mock.Mock
	name string
}

func (m *MockStateBackend) FetchState(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStateBackend) StoreState(ctx context.Context, data []byte) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

func (m *MockStateBackend) FetchArtifact(ctx context.Context, id interfaces.ArtifactID) ([]byte, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStateBackend) StoreArtifact(ctx context.Context, data []byte) (interfaces.ArtifactID, error) {
	args := m.Called(ctx, data)
	return args.Get(0).(interfaces.ArtifactID), args.Error(1)
}

func (m *MockStateBackend) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockStateBackend) Name() string {
	return m.name
}

func (m *MockStateBackend) LocationURI() string {
	return "mock:"
}

func TestMultiBackend_Available(t *testing.T) {
	tests := []struct {
		name     string
		backends []bool
		expected bool
	}{
		{
			name:     "all backends available",
			backends: []bool{true, true, true},
			expected: true,
		},
		{
			name:     "some backends available",
			backends: []bool{false, true, false},
			expected: true,
		},
		{
			name:     "no backends available",
			backends: []bool{false, false, false},
			expected: false,
		},
		{
			name:     "no backends",
			backends: []bool{},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var backends []interfaces.StateBackend
			for i, available := range tt.backends {
				mockBackend := &MockStateBackend{name: fmt.Sprintf("mock-A%x", i)}
				mockBackend.On("Available", mock.Anything).Return(available).Maybe()
				backends = append(backends, mockBackend)
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			multi := NewMultiBackend(backends, logger)

			result := multi.Available(context.Background())
			assert.Equal(t, tt.expected, result)

			for _, backend := range backends {
				mockBackend := backend.(*MockStateBackend)
				mockBackend.AssertExpectations(t)
			}
		})
	}
}

func TestMultiBackend_FetchState(t *testing.T) {
	testData := []byte("nodes: []\nmodules: []\n")
	testErr := errors.New("test error")

	tests := []struct {
		name          string
		setupMocks    func() []interfaces.StateBackend
		expectedData  []byte
		expectedError bool
		wantNotFound  bool
	}{
		{
			name: "first backend successful",
			setupMocks: func() []interfaces.StateBackend {
				mock1 := &MockStateBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("FetchState", mock.Anything).Return(testData, nil)

				mock2 := &MockStateBackend{name: "mock-B"}
				// This mock should not be called as the first one succeeds

				return []interfaces.StateBackend{mock1, mock2}
			},
			expectedData: testData,
		},
		{
			name: "first backend fails, second succeeds",
			setupMocks: func() []interfaces.StateBackend {
				mock1 := &MockStateBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("FetchState", mock.Anything).Return(nil, testErr)

				mock2 := &MockStateBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("FetchState", mock.Anything).Return(testData, nil)

				return []interfaces.StateBackend{mock1, mock2}
			},
			expectedData: testData,
		},
		{
			name: "all backends fail",
			setupMocks: func() []interfaces.StateBackend {
				mock1 := &MockStateBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("FetchState", mock.Anything).Return(nil, testErr)

				mock2 := &MockStateBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("FetchState", mock.Anything).Return(nil, testErr)

				return []interfaces.StateBackend{mock1, mock2}
			},
			expectedError: true,
		},
		{
			name: "no state anywhere yields the sentinel",
			setupMocks: func() []interfaces.StateBackend {
				mock1 := &MockStateBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("FetchState", mock.Anything).Return(nil, interfaces.ErrStateNotFound)

				mock2 := &MockStateBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("FetchState", mock.Anything).Return(nil, interfaces.ErrStateNotFound)

				return []interfaces.StateBackend{mock1, mock2}
			},
			expectedError: true,
			wantNotFound:  true,
		},
		{
			name: "unreachable backend masks the sentinel",
			setupMocks: func() []interfaces.StateBackend {
				// mock-A might hold state, so the aggregate must not claim none exists
				mock1 := &MockStateBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockStateBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("FetchState", mock.Anything).Return(nil, interfaces.ErrStateNotFound)

				return []interfaces.StateBackend{mock1, mock2}
			},
			expectedError: true,
		},
		{
			name: "unavailable backends are skipped",
			setupMocks: func() []interfaces.StateBackend {
				mock1 := &MockStateBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)
				// FetchState should not be called

				mock2 := &MockStateBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("FetchState", mock.Anything).Return(testData, nil)

				return []interfaces.StateBackend{mock1, mock2}
			},
			expectedData: testData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends := tt.setupMocks()
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			multi := NewMultiBackend(backends, logger)

			data, err := multi.FetchState(context.Background())

			if tt.expectedError {
				assert.Error(t, err)
				if tt.wantNotFound {
					assert.ErrorIs(t, err, interfaces.ErrStateNotFound)
				} else {
					assert.NotErrorIs(t, err, interfaces.ErrStateNotFound)
				}
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedData, data)

			for _, backend := range backends {
				mockBackend := backend.(*MockStateBackend)
				mockBackend.AssertExpectations(t)
			}
		})
	}
}

func TestMultiBackend_StoreState(t *testing.T) {
	testData := []byte("nodes: []\nmodules: []\n")
	testErr := errors.New("test error")

	tests := []struct {
		name          string
		setupMocks    func() []interfaces.StateBackend
		expectedError bool
	}{
		{
			name: "all backends successful",
			setupMocks: func() []interfaces.StateBackend {
				mock1 := &MockStateBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("StoreState", mock.Anything, testData).Return(nil)

				mock2 := &MockStateBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("StoreState", mock.Anything, testData).Return(nil)

				return []interfaces.StateBackend{mock1, mock2}
			},
			expectedError: false,
		},
		{
			name: "some backends fail",
			setupMocks: func() []interfaces.StateBackend {
				mock1 := &MockStateBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("StoreState", mock.Anything, testData).Return(nil)

				mock2 := &MockStateBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("StoreState", mock.Anything, testData).Return(testErr)

				return []interfaces.StateBackend{mock1, mock2}
			},
			expectedError: false,
		},
		{
			name: "all backends fail",
			setupMocks: func() []interfaces.StateBackend {
				mock1 := &MockStateBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("StoreState", mock.Anything, testData).Return(testErr)

				mock2 := &MockStateBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("StoreState", mock.Anything, testData).Return(testErr)

				return []interfaces.StateBackend{mock1, mock2}
			},
			expectedError: true,
		},
		{
			name: "unavailable backends are skipped",
			setupMocks: func() []interfaces.StateBackend {
				mock1 := &MockStateBackend{name: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)
				// StoreState should not be called

				mock2 := &MockStateBackend{name: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("StoreState", mock.Anything, testData).Return(nil)

				return []interfaces.StateBackend{mock1, mock2}
			},
			expectedError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends := tt.setupMocks()
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			multi := NewMultiBackend(backends, logger)

			err := multi.StoreState(context.Background(), testData)

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			for _, backend := range backends {
				mockBackend := backend.(*MockStateBackend)
				mockBackend.AssertExpectations(t)
			}
		})
	}
}

func TestMultiBackend_FetchArtifact(t *testing.T) {
	testData := []byte("artifact bytes")
	testID := interfaces.ComputeArtifactID(testData)

	t.Run("falls back to the second backend", func(t *testing.T) {
		mock1 := &MockStateBackend{name: "mock-A"}
		mock1.On("Available", mock.Anything).Return(true)
		mock1.On("FetchArtifact", mock.Anything, testID).Return(nil, interfaces.ErrArtifactNotFound)

		mock2 := &MockStateBackend{name: "mock-B"}
		mock2.On("Available", mock.Anything).Return(true)
		mock2.On("FetchArtifact", mock.Anything, testID).Return(testData, nil)

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		multi := NewMultiBackend([]interfaces.StateBackend{mock1, mock2}, logger)

		data, err := multi.FetchArtifact(context.Background(), testID)
		assert.NoError(t, err)
		assert.Equal(t, testData, data)

		mock1.AssertExpectations(t)
		mock2.AssertExpectations(t)
	})

	t.Run("missing everywhere yields the sentinel", func(t *testing.T) {
		mock1 := &MockStateBackend{name: "mock-A"}
		mock1.On("Available", mock.Anything).Return(true)
		mock1.On("FetchArtifact", mock.Anything, testID).Return(nil, interfaces.ErrArtifactNotFound)

		mock2 := &MockStateBackend{name: "mock-B"}
		mock2.On("Available", mock.Anything).Return(true)
		mock2.On("FetchArtifact", mock.Anything, testID).Return(nil, interfaces.ErrArtifactNotFound)

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		multi := NewMultiBackend([]interfaces.StateBackend{mock1, mock2}, logger)

		_, err := multi.FetchArtifact(context.Background(), testID)
		assert.ErrorIs(t, err, interfaces.ErrArtifactNotFound)
	})
}

func TestMultiBackend_StoreArtifact(t *testing.T) {
	testData := []byte("artifact bytes")
	testID := interfaces.ComputeArtifactID(testData)
	testErr := errors.New("test error")

	t.Run("stores to every available backend", func(t *testing.T) {
		mock1 := &MockStateBackend{name: "mock-A"}
		mock1.On("Available", mock.Anything).Return(true)
		mock1.On("StoreArtifact", mock.Anything, testData).Return(testID, nil)

		mock2 := &MockStateBackend{name: "mock-B"}
		mock2.On("Available", mock.Anything).Return(true)
		mock2.On("StoreArtifact", mock.Anything, testData).Return(testID, nil)

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		multi := NewMultiBackend([]interfaces.StateBackend{mock1, mock2}, logger)

		id, err := multi.StoreArtifact(context.Background(), testData)
		assert.NoError(t, err)
		assert.Equal(t, testID, id)

		mock1.AssertExpectations(t)
		mock2.AssertExpectations(t)
	})

	t.Run("one successful backend is enough", func(t *testing.T) {
		mock1 := &MockStateBackend{name: "mock-A"}
		mock1.On("Available", mock.Anything).Return(true)
		mock1.On("StoreArtifact", mock.Anything, testData).Return(interfaces.ArtifactID{}, testErr)

		mock2 := &MockStateBackend{name: "mock-B"}
		mock2.On("Available", mock.Anything).Return(true)
		mock2.On("StoreArtifact", mock.Anything, testData).Return(testID, nil)

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		multi := NewMultiBackend([]interfaces.StateBackend{mock1, mock2}, logger)

		id, err := multi.StoreArtifact(context.Background(), testData)
		assert.NoError(t, err)
		assert.Equal(t, testID, id)
	})
}
