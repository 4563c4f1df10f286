package mocks

import (
	"context"

	"neon-storyboard-server/modules/common/gemini"

	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock type for the gemini.Gateway type
type MockGateway struct {
	mock.Mock
}

// GenerateContent provides a mock function with given fields: ctx, req
func (_m *MockGateway) GenerateContent(ctx context.Context, req gemini.ContentRequest) (*gemini.ContentResponse, error) {
	ret := _m.Called(ctx, req)

	var r0 *gemini.ContentResponse
	if rf, ok := ret.Get(0).(func(context.Context, gemini.ContentRequest) *gemini.ContentResponse); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*gemini.ContentResponse)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, gemini.ContentRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// GenerateVideos provides a mock function with given fields: ctx, req
func (_m *MockGateway) GenerateVideos(ctx context.Context, req gemini.VideoRequest) (*gemini.VideoOperation, error) {
	ret := _m.Called(ctx, req)

	var r0 *gemini.VideoOperation
	if rf, ok := ret.Get(0).(func(context.Context, gemini.VideoRequest) *gemini.VideoOperation); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*gemini.VideoOperation)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, gemini.VideoRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// GetVideosOperation provides a mock function with given fields: ctx, op
func (_m *MockGateway) GetVideosOperation(ctx context.Context, op *gemini.VideoOperation) (*gemini.VideoOperation, error) {
	ret := _m.Called(ctx, op)

	var r0 *gemini.VideoOperation
	if rf, ok := ret.Get(0).(func(context.Context, *gemini.VideoOperation) *gemini.VideoOperation); ok {
		r0 = rf(ctx, op)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*gemini.VideoOperation)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, *gemini.VideoOperation) error); ok {
		r1 = rf(ctx, op)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// NewMockGateway creates a new instance of MockGateway. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockGateway(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockGateway {
	m := &MockGateway{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Factory returns a gemini.Factory that hands out m for every key and records
// the keys it was asked for.
func (_m *MockGateway) Factory(keys *[]string) gemini.Factory {
	return func(_ context.Context, apiKey string) (gemini.Gateway, error) {
		if keys != nil {
			*keys = append(*keys, apiKey)
		}
		return _m, nil
	}
}

var _ gemini.Gateway = (*MockGateway)(nil)
