package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/secsift/secsift/src/models"
)

// MockModelCaller implements models.ModelCaller
type MockModelCaller struct {
	mock.Mock
}

func (m *MockModelCaller) Call(ctx context.Context, req *models.ModelCallRequest) (*models.ModelCallResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ModelCallResponse), args.Error(1)
}

// MockCache implements models.CacheStore
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) (*models.AnalyzeResponse, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AnalyzeResponse), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, response *models.AnalyzeResponse) error {
	args := m.Called(ctx, key, response)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockHistory implements models.HistoryStore
type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) Save(ctx context.Context, record *models.AnalysisRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockHistory) Get(ctx context.Context, runID string) (*models.AnalysisRecord, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AnalysisRecord), args.Error(1)
}

func (m *MockHistory) List(ctx context.Context) ([]*models.AnalysisRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AnalysisRecord), args.Error(1)
}

func (m *MockHistory) Delete(ctx context.Context, runID string) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}
